// Command docqa is the entry point for the document question-answering
// assistant. It provides a CLI interface (via Cobra) and an optional HTTP
// server exposing the query/upload API.
package main

import (
	"fmt"
	"os"

	"github.com/quilldocs/docqa-go/cmd/docqa/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
