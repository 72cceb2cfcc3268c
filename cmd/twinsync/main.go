// Command twinsync bridges a microscopic traffic simulator and a 3D
// driving simulator, mirroring vehicles and traffic lights between them
// every tick.
package main

import (
	"fmt"
	"os"

	"github.com/twinsync/twinsync/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "twinsync: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
