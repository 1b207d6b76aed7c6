package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/oklog/ulid/v2"
)

// TouchNotifySignal writes a fresh revision to the signal file so watchers in
// other processes can detect that the audit log changed. It creates the parent
// dir and file if needed and returns the revision written. Revisions are
// ULIDs, monotonic within a process.
func TouchNotifySignal(signalPath string) (string, error) {
	if signalPath == "" {
		return "", nil
	}
	dir := filepath.Dir(signalPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create signal file dir: %w", err)
	}
	rev := ulid.Make().String()
	if err := os.WriteFile(signalPath, []byte(rev), 0644); err != nil {
		return "", fmt.Errorf("write signal file: %w", err)
	}
	return rev, nil
}

// ReadNotifySignal returns the revision stored in the signal file, or "" when
// the file does not exist yet.
func ReadNotifySignal(signalPath string) string {
	data, err := os.ReadFile(signalPath)
	if err != nil {
		return ""
	}
	return string(data)
}
