// Command aliasmig migrates the schema of alias-addressed search indices
// without downtime.
package main

import (
	"os"

	"github.com/kilupskalvis/aliasmig/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
