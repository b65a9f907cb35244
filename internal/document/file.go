package document

import (
	"context"
	"errors"

	"opensig/internal/crypt"
	"opensig/internal/discover"
	"opensig/internal/registry"
)

// File is a Document whose hash is derived from a file's raw bytes. The
// file is hashed lazily, on the first Verify, and the hash is cached for
// the lifetime of the instance: later edits to the file do not change what
// this Document refers to.
type File struct {
	*Document
	path string
}

// NewFile creates a file-backed Document. The file is not touched until the
// first Verify call.
func NewFile(chainID uint64, path string, reg registry.Registry) *File {
	return &File{
		Document: New(chainID, reg),
		path:     path,
	}
}

// Path returns the backing file path.
func (f *File) Path() string { return f.path }

// Verify hashes the file if it has not been hashed yet, then behaves
// exactly like Document.Verify. A failed read leaves the Document unbound,
// so a later Verify retries the hash.
func (f *File) Verify(ctx context.Context) ([]discover.Event, error) {
	if _, ok := f.Hash(); !ok {
		hash, err := crypt.HashFile(f.path)
		if err != nil {
			return nil, err
		}
		// Two concurrent first Verifies may both hash; whichever SetHash
		// loses the race is binding the same file, so the winner's hash
		// stands.
		if err := f.SetHash(hash); err != nil && !errors.Is(err, ErrHashAlreadySet) {
			return nil, err
		}
	}
	return f.Document.Verify(ctx)
}
