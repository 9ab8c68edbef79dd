// Package source fetches the encrypted config blob from wherever the
// out-of-band encryption workflow left it.
package source

import (
	"context"
	"fmt"
	"os"

	"github.com/vitudev/secretboot/internal/blob"
	apperrors "github.com/vitudev/secretboot/internal/errors"
)

// BlobSource retrieves the encrypted config blob envelope.
type BlobSource interface {
	Fetch(ctx context.Context) (*blob.Envelope, error)
}

// FileSource reads the envelope from a fixed filesystem path.
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) Fetch(ctx context.Context) (*blob.Envelope, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot read encrypted config at %s: %w", apperrors.ErrConfiguration, s.path, err)
	}
	return blob.Parse(data)
}
