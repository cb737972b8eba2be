package domain

import (
	"path"
	"strings"
)

// ArtifactClass names what is stored for an identifier. Its value doubles as
// the directory (or key prefix) all artifacts of that class share.
type ArtifactClass string

const (
	ClassOriginal ArtifactClass = "original"
	ClassMetadata ArtifactClass = "metadata"
)

const (
	ContentTypeWebP = "image/webp"
	ContentTypeJSON = "application/json"
)

// Resized returns the class holding images resized to s.
func Resized(s Size) ArtifactClass {
	return ArtifactClass(strings.ToLower(s.Name))
}

func (c ArtifactClass) Dir() string {
	return string(c)
}

func (c ArtifactClass) Ext() string {
	if c == ClassMetadata {
		return ".json"
	}
	return ".webp"
}

func (c ArtifactClass) ContentType() string {
	if c == ClassMetadata {
		return ContentTypeJSON
	}
	return ContentTypeWebP
}

// ArtifactKey addresses exactly one stored artifact.
type ArtifactKey struct {
	ID    ImageID
	Class ArtifactClass
}

// Path is the slash-separated location of the artifact relative to the
// storage root: class first, then identifier.
func (k ArtifactKey) Path() string {
	return path.Join(k.Class.Dir(), string(k.ID)+k.Class.Ext())
}

func (k ArtifactKey) ContentType() string {
	return k.Class.ContentType()
}
