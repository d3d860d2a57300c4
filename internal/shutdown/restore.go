package shutdown

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// RestoreState is the one-shot snapshot written at shutdown so the next
// daemon start can offer to bring the same modules back up.
type RestoreState struct {
	Timestamp        time.Time `json:"timestamp"`
	RunningModuleIDs []string  `json:"running_module_ids"`
}

// WriteRestore persists the restore snapshot atomically. With no running
// modules there is nothing to restore: no snapshot is written and any stale
// one from an earlier run is removed.
func WriteRestore(path string, moduleIDs []string) error {
	if len(moduleIDs) == 0 {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove stale restore state: %w", err)
		}
		return nil
	}
	state := RestoreState{
		Timestamp:        time.Now().UTC(),
		RunningModuleIDs: moduleIDs,
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal restore state: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create restore directory: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write restore state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit restore state: %w", err)
	}
	return nil
}

// ConsumeRestore reads and deletes the restore snapshot. The file is
// one-shot: a second call reports no snapshot. A malformed file is deleted
// and reported as absent.
func ConsumeRestore(path string) (RestoreState, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return RestoreState{}, false, nil
		}
		return RestoreState{}, false, fmt.Errorf("read restore state: %w", err)
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return RestoreState{}, false, fmt.Errorf("remove restore state: %w", err)
	}

	var state RestoreState
	if err := json.Unmarshal(data, &state); err != nil {
		return RestoreState{}, false, nil
	}
	return state, true, nil
}
