// Command execctx-demo runs a workload across a thread pool and an event
// executor, reports which executor every task observed, and optionally serves
// Prometheus metrics while it runs.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// A missing .env is fine; flags and the environment still apply.
	_ = godotenv.Load()

	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
