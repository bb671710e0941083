package fat32_test

import (
	"os"
	"testing"
)

// openTestFile opens path read-write and registers it (and the file on
// disk) for cleanup at the end of t.
func openTestFile(t *testing.T, path string) *os.File {
	t.Helper()
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("opening test image: %v", err)
	}
	t.Cleanup(func() {
		f.Close()
		os.Remove(path)
	})
	return f
}
