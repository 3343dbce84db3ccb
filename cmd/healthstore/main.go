// Command healthstore manages an encrypted store of personal health records.
package main

import (
	"context"
	"os"

	"github.com/roach88/healthstore/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background(), os.Args[1:]))
}
