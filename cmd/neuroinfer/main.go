// Command neuroinfer serves EEG model inference over HTTP and offers
// offline tools for converting and generating BDF recordings.
//
// Usage:
//
//	neuroinfer serve [--addr :8000] [--model model.onnx] [--users users.yaml]
//	neuroinfer convert FILE [--window 2s]
//	neuroinfer predict FILE [--model model.onnx]
//	neuroinfer synth OUT [--seconds 60] [--artifact 10]
package main

import (
	"fmt"
	"os"

	"neuroinfer/cmd/neuroinfer/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
