package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
)

// BearerToken rejects requests whose bearer token does not match the bcrypt
// hash. An empty hash disables the check.
func BearerToken(hash string) fiber.Handler {
	if hash == "" {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	hashed := []byte(hash)

	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if len(authz) < len("Bearer ") || !strings.EqualFold(authz[:len("Bearer ")], "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		token := strings.TrimSpace(authz[len("Bearer "):])
		if token == "" {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		if err := bcrypt.CompareHashAndPassword(hashed, []byte(token)); err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}
		return c.Next()
	}
}

// HashToken returns the bcrypt hash to configure as api_token_hash for token.
func HashToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
