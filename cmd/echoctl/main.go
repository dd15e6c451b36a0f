// Command echoctl signs in to an Echo server, browses saved reports and runs scripted practice
// sessions, locally or against a server.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "echoctl: %v\n", err)
		os.Exit(1)
	}
}
