package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"poemhub/internal/infra/persistence/memory"
)

// loadSnapshot seeds store from path. A missing file leaves the store empty.
func loadSnapshot(store *memory.Store, path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read memory snapshot: %w", err)
	}
	var snap memory.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decode memory snapshot %s: %w", path, err)
	}
	store.ImportState(snap)
	return nil
}

// saveSnapshot writes the store contents to path, replacing it atomically.
func saveSnapshot(store *memory.Store, path string) error {
	data, err := json.MarshalIndent(store.ExportState(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode memory snapshot: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write memory snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("write memory snapshot: %w", err)
	}
	return nil
}
