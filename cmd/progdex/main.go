// Command progdex indexes an academic-program catalog into a vector store and
// answers semantic queries over it from the command line.
package main

import (
	"fmt"
	"os"

	"github.com/progdex/progdex/cmd/progdex/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
