package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"coffeeshop/internal/sale"
)

// File appends every record as one line of compact JSON.
//
// Two workers pointed at the same path interleave their lines in no defined
// order; give each worker its own file when that matters.
type File struct {
	path string
	file *os.File
}

// NewFile opens (or creates) path for appending, creating the parent
// directory tree if it doesn't already exist.
func NewFile(path string) (*File, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open output file %s: %w", path, err)
	}
	return &File{path: path, file: f}, nil
}

func (s *File) Name() string { return "file" }

// Write appends the record followed by a newline in a single write call.
func (s *File) Write(_ context.Context, rec *sale.Record) error {
	line, err := rec.Marshal()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFileIO, err)
	}
	line = append(line, '\n')
	if _, err := s.file.Write(line); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrFileIO, s.path, err)
	}
	return nil
}

func (s *File) Close() error {
	return s.file.Close()
}
