// cmd/agentctl is the operator CLI for the posting pipeline.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(openRuntime).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
