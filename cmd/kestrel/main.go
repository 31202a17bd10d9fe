// Command kestrel is an interactive AI coding session for a project
// directory: it plans a request into tasks, asks a model for concrete file
// edits, previews each edit as a unified diff, and applies it after
// confirmation.
package main

import (
	"os"

	"github.com/kestrelhq/kestrel/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
