package service

import (
	"context"
	"image"
	"io"

	"github.com/itchan-dev/imagehost/internal/domain"
)

// ArtifactStore persists the files produced for an image.
type ArtifactStore interface {
	// Put stores the content under key. Readers never observe a partially
	// written artifact.
	Put(ctx context.Context, key domain.ArtifactKey, content io.Reader) error

	// Open returns the artifact content. A missing artifact yields an error
	// wrapping errors.ErrNotFound.
	Open(ctx context.Context, key domain.ArtifactKey) (io.ReadCloser, error)

	// Delete removes the artifact. Deleting a missing artifact is not an error.
	Delete(ctx context.Context, key domain.ArtifactKey) error

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
}

type MetadataExtractor interface {
	Extract(filename string, data []byte) (domain.MetadataDocument, error)
	Marshal(doc domain.MetadataDocument) ([]byte, error)
}

type ImageCodec interface {
	Decode(data []byte) (image.Image, error)
	Encode(w io.Writer, img image.Image) error
	Resize(img image.Image, width, height int) (image.Image, error)
}

// EventPublisher announces completed uploads.
type EventPublisher interface {
	PublishUploaded(ctx context.Context, event domain.UploadedEvent) error
}
