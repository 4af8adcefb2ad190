// Inkframe - battery-powered e-ink picture frame.
//
// In battery mode the process is started on every RTC alarm: it reports the
// battery level, applies any queued commands, sets the next alarm and powers
// the device off. In continuous mode it stays up and keeps listening.
package main

import (
	"os"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
