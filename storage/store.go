package storage

import "context"

// ListingStore is the narrow contract the backup service needs from a
// destination: write one object, enumerate existing keys under a prefix.
type ListingStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	ListKeys(ctx context.Context, prefix string) ([]string, error)
}
