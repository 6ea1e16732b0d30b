// Command tinkerblog serves and builds a markdown blog with highlighted and
// live code blocks.
package main

import (
	"fmt"
	"os"

	"github.com/livetemplate/tinkerblog/cmd/tinkerblog/commands"
)

var version = "0.1.0-dev"

func main() {
	if err := commands.NewRootCommand(version).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
