// Command librarian ingests GitHub repositories and crawled websites
// into local libraries and serves hybrid word+vector search over them.
package main

import (
	"fmt"
	"os"

	"github.com/go-librarian/librarian/cmd/librarian/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
