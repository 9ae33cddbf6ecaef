// Command screener is the entry point for the resume screening assistant.
// It provides a CLI interface (via Cobra) for job description management and
// one-shot questions, plus an HTTP server with a streaming chat API.
package main

import (
	"fmt"
	"os"

	"github.com/recruitops/screener-go/cmd/screener/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
