package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/chen-001/gallery-app-clean/internal/utils"
)

// FileBackend keeps the history as one pretty-printed JSON array.
type FileBackend struct {
	path string
}

// NewFileBackend returns a backend persisting to path.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Path returns the history file location.
func (b *FileBackend) Path() string { return b.path }

// LoadAll reads the history file. An absent file is an empty history.
func (b *FileBackend) LoadAll(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(b.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []Record{}, nil
		}
		return nil, fmt.Errorf("read history: %w", err)
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse history %s: %w", b.path, err)
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

// SaveAll replaces the history file atomically.
func (b *FileBackend) SaveAll(ctx context.Context, records []Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := utils.EnsureDir(filepath.Dir(b.path)); err != nil {
		return fmt.Errorf("ensure dir: %w", err)
	}
	if records == nil {
		records = []Record{}
	}
	data, err := utils.PrettyJSON(records)
	if err != nil {
		return err
	}
	return utils.SafeWriteFile(b.path, data)
}
