// Command esh is a POSIX-style job-control shell.
package main

import (
	"os"

	"github.com/esh-shell/esh/internal/shell/cli"
)

func main() {
	os.Exit(cli.Run())
}
