// Package storage provides artifact archiving for completed jobs. Provider
// artifact URLs expire; archiving copies the artifact to a location we
// control and returns a stable locator.
package storage

import (
	"context"
	"io"
)

// Archiver copies a completed job's artifact to durable storage.
type Archiver interface {
	// Archive stores the artifact bytes under the given key and returns
	// the stable locator to hand to the user.
	Archive(ctx context.Context, key string, data io.Reader) (url string, err error)
}
