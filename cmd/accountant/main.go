package main

import (
	"os"

	"github.com/congo-pay/accountant/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
