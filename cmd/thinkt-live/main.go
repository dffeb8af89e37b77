// thinkt-live streams AI coding assistant sessions to clients as they are
// written.
//
// Usage:
//
//	thinkt-live serve
//	thinkt-live replay session.jsonl --render
//	thinkt-live tail http://localhost:7434/v1/sessions/<id>/events
package main

import (
	"os"

	"github.com/wethinkt/thinkt-live/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
