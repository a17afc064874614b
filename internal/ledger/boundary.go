package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Boundary marks the point after which orders count toward the displayed
// metrics. Orders created at or before ResetAt are excluded from display
// and revenue without being deleted from the store.
type Boundary struct {
	ResetAt time.Time `json:"resetAt"`
}

// BoundaryStore persists the reset boundary across reloads. It is local to
// the viewing client, never shared.
type BoundaryStore interface {
	Load() (Boundary, error)
	Save(Boundary) error
}

// FileBoundaryStore keeps the boundary in a JSON file under a local state
// directory.
type FileBoundaryStore struct {
	path string
}

func NewFileBoundaryStore(stateDir string) *FileBoundaryStore {
	return &FileBoundaryStore{path: filepath.Join(stateDir, "reset_boundary.json")}
}

// Load reads the persisted boundary. A missing file means no reset has
// ever happened and yields the zero boundary.
func (s *FileBoundaryStore) Load() (Boundary, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Boundary{}, nil
	}
	if err != nil {
		return Boundary{}, fmt.Errorf("failed to read boundary file: %w", err)
	}

	var boundary Boundary
	if err := json.Unmarshal(data, &boundary); err != nil {
		return Boundary{}, fmt.Errorf("failed to decode boundary file: %w", err)
	}
	return boundary, nil
}

// Save overwrites the persisted boundary, creating the state directory on
// first use.
func (s *FileBoundaryStore) Save(boundary Boundary) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create state dir: %w", err)
	}

	data, err := json.Marshal(boundary)
	if err != nil {
		return fmt.Errorf("failed to encode boundary: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write boundary file: %w", err)
	}
	return nil
}
