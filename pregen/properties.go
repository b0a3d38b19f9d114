package pregen

import (
	"fmt"
	"os"
)

// writeSeedProperty overwrites the server configuration file at path with a
// single level-seed entry. The file is replaced, not merged: the seed is the
// only setting the driver cares about and the server rewrites the rest on
// startup anyway.
func writeSeedProperty(path string, seed int64) error {
	contents := fmt.Sprintf("level-seed=%d\n", seed)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		return fmt.Errorf("write server.properties: %w", err)
	}
	return nil
}
