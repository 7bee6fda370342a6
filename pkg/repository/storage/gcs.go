package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/mnemosyne/pkg/utils/safe"
)

// GCS stores attachment blobs in a Google Cloud Storage bucket. The returned
// reference is the object key, kept alongside the turn's attachment metadata.
type GCS struct {
	client *storage.Client
	bucket string
	prefix string
}

// GCSOption is a functional option for GCS configuration
type GCSOption func(*GCS)

// WithObjectPrefix sets a key prefix for all stored objects. Useful to share
// a bucket between environments.
func WithObjectPrefix(prefix string) GCSOption {
	return func(g *GCS) {
		g.prefix = prefix
	}
}

// NewGCS creates an attachment store on the given bucket. Credentials come
// from Application Default Credentials.
func NewGCS(ctx context.Context, bucket string, opts ...GCSOption) (*GCS, error) {
	if bucket == "" {
		return nil, goerr.New("bucket name is required")
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage client")
	}

	g := &GCS{
		client: client,
		bucket: bucket,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Put uploads a blob and returns its object key. Keys embed a UUID v7 so the
// same file name never collides.
func (g *GCS) Put(ctx context.Context, name, contentType string, data []byte) (string, error) {
	key := fmt.Sprintf("attachments/%s/%s", uuid.Must(uuid.NewV7()).String(), path.Base(name))
	if g.prefix != "" {
		key = g.prefix + "/" + key
	}

	w := g.client.Bucket(g.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		safe.Close(ctx, w)
		return "", goerr.Wrap(err, "failed to write object", goerr.V("key", key))
	}
	if err := w.Close(); err != nil {
		return "", goerr.Wrap(err, "failed to finalize object", goerr.V("key", key))
	}

	return key, nil
}

// Get downloads the blob for a reference returned by Put.
func (g *GCS) Get(ctx context.Context, ref string) ([]byte, error) {
	r, err := g.client.Bucket(g.bucket).Object(ref).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, goerr.Wrap(ErrNotFound, "no such object", goerr.V("key", ref))
		}
		return nil, goerr.Wrap(err, "failed to open object", goerr.V("key", ref))
	}
	defer safe.Close(ctx, r)

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read object", goerr.V("key", ref))
	}
	return data, nil
}

// Close releases the underlying client.
func (g *GCS) Close() error {
	return g.client.Close()
}
