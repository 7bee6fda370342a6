package interfaces

import "context"

// AttachmentStore persists inbound attachment blobs and hands back an opaque
// reference. Window entries carry the reference instead of the raw bytes.
type AttachmentStore interface {
	// Put stores a blob and returns its storage reference
	Put(ctx context.Context, name string, contentType string, data []byte) (string, error)

	// Get retrieves a blob by the reference Put returned
	Get(ctx context.Context, ref string) ([]byte, error)
}
