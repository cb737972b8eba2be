package domain

import (
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// ImageID correlates every artifact produced from one uploaded file.
type ImageID string

func (id ImageID) String() string {
	return string(id)
}

// NewImageID returns a fresh random identifier.
func NewImageID() ImageID {
	return ImageID(uuid.NewString())
}

// ParseImageID accepts only canonical UUID text, so identifiers taken from a
// URL can never carry path separators into a storage key.
func ParseImageID(raw string) (ImageID, error) {
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid image id %q: %w", raw, err)
	}
	if parsed.String() != raw {
		return "", fmt.Errorf("invalid image id %q: not in canonical form", raw)
	}
	return ImageID(parsed.String()), nil
}

// IDGenerator hands out identifiers for accepted uploads.
type IDGenerator interface {
	NewID() ImageID
}

type UUIDGenerator struct{}

func (UUIDGenerator) NewID() ImageID {
	return NewImageID()
}

// UploadedFile is one part of a multipart upload. Content is read at most
// once by the pipeline.
type UploadedFile struct {
	Filename string
	Size     int64
	Content  io.Reader
}

// MetadataDocument maps a group name to its tags.
type MetadataDocument map[string]map[string]string

// Set stores a tag, creating the group on first use.
func (d MetadataDocument) Set(group, tag, value string) {
	g, ok := d[group]
	if !ok {
		g = make(map[string]string)
		d[group] = g
	}
	g[tag] = value
}

type UploadResult struct {
	IDs []ImageID
}

// ImageStream is a stored resized image ready to be sent to a client.
type ImageStream struct {
	Reader      io.ReadCloser
	ContentType string
	ETag        string
	Size        int64
}

// UploadedEvent is published once per accepted file after its batch succeeds.
type UploadedEvent struct {
	ID         ImageID   `json:"id"`
	Filename   string    `json:"filename"`
	Sizes      []string  `json:"sizes"`
	UploadedAt time.Time `json:"uploaded_at"`
}
