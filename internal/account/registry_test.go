package account

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryCreatesLazily(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Get(1)
	assert.False(t, ok)

	require.NoError(t, r.Update(1, func(a *Account) error { return nil }))
	snap, ok := r.Get(1)
	require.True(t, ok)
	assert.Equal(t, uint16(1), snap.ClientID)
	assert.True(t, snap.Total.IsZero())
	assert.Equal(t, 1, r.Len())
}

func TestRegistryUpdatePropagatesError(t *testing.T) {
	r := NewRegistry()
	boom := errors.New("boom")
	err := r.Update(2, func(a *Account) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, r.Len())
}

func TestRegistrySnapshotsSorted(t *testing.T) {
	r := NewRegistry()
	for _, id := range []uint16{42, 7, 65535, 0} {
		require.NoError(t, r.Update(id, func(a *Account) error { return a.Credit(d("1")) }))
	}

	snaps := r.Snapshots()
	require.Len(t, snaps, 4)
	ids := []uint16{snaps[0].ClientID, snaps[1].ClientID, snaps[2].ClientID, snaps[3].ClientID}
	assert.Equal(t, []uint16{0, 7, 42, 65535}, ids)
}

func TestRegistryConcurrentUpdates(t *testing.T) {
	r := NewRegistry()
	const workers = 16
	const perWorker = 100

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			client := uint16(i % 4)
			for j := 0; j < perWorker; j++ {
				if err := r.Update(client, func(a *Account) error { return a.Credit(d("0.01")) }); err != nil {
					t.Errorf("credit client %d: %v", client, err)
				}
			}
		}(i)
	}
	wg.Wait()

	for _, snap := range r.Snapshots() {
		assert.True(t, snap.Total.Equal(d("4")), "client %d total %s", snap.ClientID, snap.Total)
	}
}
