package server

import (
	"io"
	"log"
	"os"
)

var (
	errorLog = log.New(os.Stderr, "ERROR: ", log.Ldate|log.Ltime|log.Lmicroseconds)
	debugLog = log.New(io.Discard, "DEBUG: ", log.Ldate|log.Ltime|log.Lmicroseconds)
)

// EnableDebugLogging routes debug output (per-frame traces) to stderr
func EnableDebugLogging() {
	debugLog.SetOutput(os.Stderr)
}
