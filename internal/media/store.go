// Package media archives item images to a pluggable backing store.
package media

import (
	"context"
	"io"
)

// MediaStore persists downloaded media under a name and returns the path to
// record on the item. Put is idempotent: storing the same name twice is safe.
type MediaStore interface {
	// Put stores the content read from r under name and returns the
	// store-specific path (relative filesystem path, or an s3:// URL).
	Put(ctx context.Context, name string, r io.Reader) (string, error)
}
