// Package storage persists artifact bytes through a FileStore and artifact
// metadata in a SQLite index.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
)

// FileStore is a minimal interface for file-oriented storage.
//
// Paths are forward-slash separated and relative to the store root.
// Implementations must be safe for concurrent use.
type FileStore interface {
	// Read opens the named file for reading. A missing file yields an error
	// wrapping os.ErrNotExist.
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// Write opens the named file for writing, truncating it if it exists.
	// The caller must close the writer to flush data.
	Write(ctx context.Context, path string) (io.WriteCloser, error)

	// Delete removes the named file. Missing files are not an error.
	Delete(ctx context.Context, path string) error

	Exists(ctx context.Context, path string) (bool, error)
}

// ArtifactKey returns the store path of an artifact: <stage>/<id>.wav
func ArtifactKey(stage, id string) string {
	return path.Join(stage, id+".wav")
}

// Put writes data to key and closes the writer.
func Put(ctx context.Context, fs FileStore, key string, r io.Reader) (int64, error) {
	w, err := fs.Write(ctx, key)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(w, r)
	if err != nil {
		w.Close()
		return n, err
	}
	return n, w.Close()
}

// Describe names where fs keeps its files, for status output.
func Describe(fs FileStore) string {
	switch s := fs.(type) {
	case *Local:
		return s.Root()
	case *S3Store:
		return "s3://" + path.Join(s.bucket, s.prefix)
	}
	return fmt.Sprintf("%T", fs)
}
