// Command joshua-agent runs one stateless agent process: pulling one
// ensemble at a time from the active (or sanity) index, sandboxing its
// test script, and reporting the result back into the KV store.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
