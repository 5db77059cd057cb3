// Command postmail sends email through a Postal HTTP API or an SMTP server,
// and can run a local SMTP relay in front of either.
package main

import (
	"fmt"
	"os"

	"github.com/shineum/postmail/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
