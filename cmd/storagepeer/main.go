// Command storagepeer runs a storage peer.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/storagepeer/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
