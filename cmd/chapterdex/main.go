// Command chapterdex builds a searchable index over a directory of
// textbook chapter PDFs and serves passage retrieval with page citations.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/54b3r/chapterdex/cmd/chapterdex/commands"
)

func main() {
	if err := commands.NewRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
