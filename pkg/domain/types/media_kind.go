package types

// MediaKind represents the declared media type of a message attachment
type MediaKind string

const (
	MediaKindImage    MediaKind = "image"
	MediaKindDocument MediaKind = "document"
	MediaKindOther    MediaKind = "other"
)

// IsValid checks if the media kind is valid
func (k MediaKind) IsValid() bool {
	switch k {
	case MediaKindImage, MediaKindDocument, MediaKindOther:
		return true
	default:
		return false
	}
}

// String returns the string representation of the media kind
func (k MediaKind) String() string {
	return string(k)
}

// MediaKindFromMime maps a MIME type to a MediaKind. Image types map to
// MediaKindImage, PDF and plain text map to MediaKindDocument, everything
// else maps to MediaKindOther.
func MediaKindFromMime(mime string) MediaKind {
	switch {
	case len(mime) >= 6 && mime[:6] == "image/":
		return MediaKindImage
	case mime == "application/pdf" || mime == "text/plain" || mime == "text/markdown":
		return MediaKindDocument
	default:
		return MediaKindOther
	}
}
