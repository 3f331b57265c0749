// File: internal/mapping/file.go
package mapping

import (
	"context"
	"fmt"
	"os"

	"github.com/mitchellh/go-homedir"
)

// FileSource reads a mapping document from disk on every lookup, so edits
// to the file are picked up without a restart.
type FileSource struct {
	path string
}

// NewFileSource creates a FileSource. A leading ~ in path is expanded.
func NewFileSource(path string) (*FileSource, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("failed to expand mapping path '%s': %w", path, err)
	}
	return &FileSource{path: expanded}, nil
}

func (f *FileSource) Lookup(ctx context.Context, targetText string) Result {
	if err := ctx.Err(); err != nil {
		return ErrorResult(err)
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return ErrorResult(fmt.Errorf("failed to read mapping file '%s': %w", f.path, err))
	}
	mappings, err := ParseDocument(data)
	if err != nil {
		return ErrorResult(err)
	}
	return find(mappings, targetText)
}
