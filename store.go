package keyfold

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/keyfold/identity-go/internal/vault"
)

// ErrBlobNotFound must be returned by BlobStore.Get for missing keys.
var ErrBlobNotFound = errors.New("blob not found")

// BlobStore persists encrypted vault blobs keyed by opaque strings. An
// implementation sees only ciphertext: blobs are sealed before Put and
// authenticated after Get, so the store needs no trust beyond availability.
// Applications back it with whatever durable storage they have.
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, blob []byte) error
	Delete(ctx context.Context, key string) error
}

// blobStoreAdapter bridges a caller-supplied BlobStore to the internal
// vault store.
type blobStoreAdapter struct {
	inner BlobStore
}

func (a *blobStoreAdapter) Get(ctx context.Context, key string) (*vault.Blob, error) {
	data, err := a.inner.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return nil, vault.ErrNotFound
		}
		return nil, err
	}
	var blob vault.Blob
	if err := json.Unmarshal(data, &blob); err != nil {
		// A blob that does not even parse is handled like any other
		// corruption.
		return nil, fmt.Errorf("%w: malformed stored blob", vault.ErrDecryptionFailed)
	}
	return &blob, nil
}

func (a *blobStoreAdapter) Put(ctx context.Context, key string, blob *vault.Blob) error {
	data, err := json.Marshal(blob)
	if err != nil {
		return fmt.Errorf("encode blob: %w", err)
	}
	return a.inner.Put(ctx, key, data)
}

func (a *blobStoreAdapter) Delete(ctx context.Context, key string) error {
	return a.inner.Delete(ctx, key)
}
