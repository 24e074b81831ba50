package server

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain verifies that every session's goroutines — acceptLoop's
// per-connection serve() and the eventLog worker pool — actually exit once
// the test that spawned them tears its listener/server down.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
