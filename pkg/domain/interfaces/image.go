package interfaces

import "context"

// ImageGenerator produces an image from a text prompt. Implementations hide
// the backing model; callers only care about the bytes and their MIME type.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) (data []byte, mimeType string, err error)
}
