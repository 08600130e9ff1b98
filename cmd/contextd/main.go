// Command contextd is the CLI entrypoint for the context indexing and
// retrieval engine.
package main

import (
	"os"

	"github.com/databao-dev/contextd/cmd/contextd/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
