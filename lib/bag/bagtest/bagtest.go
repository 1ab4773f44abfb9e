// Package bagtest provides a scripted stand-in for the rosbag binary.
package bagtest

import (
	_ "embed"
	"os"
	"path/filepath"
	"testing"
)

//go:embed mock_rosbag.sh
var mockScript []byte

// Env names understood by the mock binary.
const (
	EnvStdinFile  = "MOCK_ROSBAG_STDIN"
	EnvExitAfter  = "MOCK_ROSBAG_EXIT_AFTER"
	EnvExitCode   = "MOCK_ROSBAG_EXIT_CODE"
	EnvIgnoreTerm = "MOCK_ROSBAG_IGNORE_TERM"
)

// MockRosbag writes the mock binary into a temp dir and returns its path.
func MockRosbag(tb testing.TB) string {
	tb.Helper()
	path := filepath.Join(tb.TempDir(), "rosbag")
	if err := os.WriteFile(path, mockScript, 0o755); err != nil {
		tb.Fatalf("writing mock rosbag: %v", err)
	}
	return path
}

// ReadFile returns the contents of path, or "" if it cannot be read yet.
// It is safe to call from require.Eventually conditions.
func ReadFile(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(b)
}
