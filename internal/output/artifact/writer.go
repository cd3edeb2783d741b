package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"ctiflow/internal/logger"
)

// WriteJSONL publishes records to path as JSON lines. The records are
// written to a temporary file in the same directory and renamed into place,
// so readers never observe a partially written artifact.
func WriteJSONL[T any](path string, records []T) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if tmpName != "" {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	enc := json.NewEncoder(tmp)
	for _, record := range records {
		if err := enc.Encode(record); err != nil {
			return fmt.Errorf("failed to encode record: %w", err)
		}
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to publish artifact: %w", err)
	}
	tmpName = ""

	logger.Debugf("Published artifact: %s records=%d", path, len(records))
	return nil
}
