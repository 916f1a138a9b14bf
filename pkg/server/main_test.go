package server

import (
	"io"
	"log"
	"os"
	"testing"
)

func TestMain(m *testing.M) {
	// Keep test output readable
	errorLog.SetOutput(io.Discard)
	debugLog.SetOutput(io.Discard)
	log.SetOutput(io.Discard)

	os.Exit(m.Run())
}
