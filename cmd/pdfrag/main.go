// Command pdfrag answers questions about PDF documents with retrieval
// augmented generation. It runs one-shot or interactively from the terminal
// and can serve the same pipeline over HTTP.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/pdfrag-go/cmd/pdfrag/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
