package bootstrap

import (
	"fmt"
	"os"
	"path/filepath"

	apperrors "github.com/vitudev/secretboot/internal/errors"
)

// writeAtomic writes data to path via a temp file in the same directory and
// a rename, so a failure part-way never leaves a truncated or garbage config
// behind. The file is created owner-read/write only.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: cannot create temp file in %s: %w", apperrors.ErrIO, dir, err)
	}
	tmpName := tmp.Name()

	// Any failure from here on must remove the temp file.
	cleanup := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}

	if err := tmp.Chmod(0o600); err != nil {
		return cleanup(fmt.Errorf("%w: cannot chmod %s: %w", apperrors.ErrIO, tmpName, err))
	}
	if _, err := tmp.Write(data); err != nil {
		return cleanup(fmt.Errorf("%w: cannot write %s: %w", apperrors.ErrIO, tmpName, err))
	}
	if err := tmp.Sync(); err != nil {
		return cleanup(fmt.Errorf("%w: cannot sync %s: %w", apperrors.ErrIO, tmpName, err))
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: cannot close %s: %w", apperrors.ErrIO, tmpName, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: cannot rename %s to %s: %w", apperrors.ErrIO, tmpName, path, err)
	}

	return nil
}
