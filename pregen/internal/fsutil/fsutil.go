// Package fsutil holds small filesystem helpers shared by the pre-generation
// driver and the CLI.
package fsutil

import (
	"log/slog"
	"os"
	"path/filepath"
	"slices"
)

// ClearDir removes every entry of the directory at path, except entries whose
// name is listed in keep. Files and symlinks are unlinked, directories are
// removed recursively. Individual deletion failures are logged and skipped so
// that one undeletable entry does not abort the whole sweep. A missing
// directory is not an error.
func ClearDir(log *slog.Logger, path string, keep ...string) error {
	if log == nil {
		log = slog.Default()
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if slices.Contains(keep, entry.Name()) {
			continue
		}
		p := filepath.Join(path, entry.Name())
		if err := os.RemoveAll(p); err != nil {
			log.Error("failed to delete entry", "path", p, "err", err)
		}
	}
	return nil
}
