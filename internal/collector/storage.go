package collector

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// flushTimestampLayout names storage files to second resolution so that
// flushes within the same second append to the same file.
const flushTimestampLayout = "20060102_150405"

// Storage file format: preferences_20251102_143000.jsonl
var storageFileRegex = regexp.MustCompile(`^preferences_\d{8}_\d{6}\.jsonl$`)

// FlushFilename returns the storage filename for a flush at the given time
func FlushFilename(t time.Time) string {
	return fmt.Sprintf("preferences_%s.jsonl", t.UTC().Format(flushTimestampLayout))
}

// IsStorageFile reports whether name matches the collector's storage file
// naming scheme.
func IsStorageFile(name string) bool {
	return storageFileRegex.MatchString(name)
}

// ValidateStorageDir validates a caller-supplied storage directory path.
// It rejects path traversal components and empty paths so CLI input cannot
// escape the working tree through a relative storage override.
func ValidateStorageDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("storage directory cannot be empty")
	}

	if !filepath.IsAbs(dir) {
		for _, part := range strings.Split(filepath.ToSlash(filepath.Clean(dir)), "/") {
			if part == ".." {
				return fmt.Errorf("invalid storage directory: contains '..'")
			}
		}
	}

	return nil
}
