package client

import (
	"context"
	"io"
)

// ClipStorage materialises rendered clips into playable URLs
type ClipStorage interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
}
