// Command shell is an interactive Unix job-control shell.
package main

import (
	"os"

	"github.com/ThomasStachovsky/linux-shell/internal/shell/cli"
)

func main() {
	os.Exit(cli.Run())
}
