// Package metadata extracts the structured metadata document stored next to
// every uploaded image.
package metadata

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"path/filepath"

	"github.com/rwcarlsen/goexif/exif"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
	_ "golang.org/x/image/webp"

	"github.com/itchan-dev/imagehost/internal/domain"
	"github.com/itchan-dev/imagehost/internal/errors"
)

const (
	groupFileType = "File Type"
	groupFile     = "File"
	groupImage    = "Image"

	schemaFile = "schema/metadata.schema.json"
	schemaID   = "inmemory://metadata-document"
)

//go:embed schema/*.json
var schemaFS embed.FS

type fileType struct {
	name string
	mime string
	ext  string
}

var fileTypes = map[string]fileType{
	"jpeg": {name: "JPEG", mime: "image/jpeg", ext: "jpg"},
	"png":  {name: "PNG", mime: "image/png", ext: "png"},
	"webp": {name: "WebP", mime: "image/webp", ext: "webp"},
}

type Extractor struct {
	schema *jsonschema.Schema
}

// New compiles the embedded document schema.
func New() (*Extractor, error) {
	raw, err := schemaFS.ReadFile(schemaFile)
	if err != nil {
		return nil, fmt.Errorf("load metadata schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaID, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add metadata schema: %w", err)
	}
	compiled, err := compiler.Compile(schemaID)
	if err != nil {
		return nil, fmt.Errorf("compile metadata schema: %w", err)
	}
	return &Extractor{schema: compiled}, nil
}

// Extract parses data for header and EXIF tags. Missing EXIF is fine; a
// present but broken EXIF block, or data that is not a supported image,
// fails with errors.ErrMetadataParse.
func (e *Extractor) Extract(filename string, data []byte) (domain.MetadataDocument, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: file format could not be determined: %w", errors.ErrMetadataParse, err)
	}

	doc := domain.MetadataDocument{}
	if ft, ok := fileTypes[format]; ok {
		doc.Set(groupFileType, "Detected File Type Name", ft.name)
		doc.Set(groupFileType, "Detected MIME Type", ft.mime)
		doc.Set(groupFileType, "Expected File Name Extension", ft.ext)
	}
	doc.Set(groupFile, "File Name", filepath.Base(filename))
	doc.Set(groupFile, "File Size", fmt.Sprintf("%d bytes", len(data)))
	doc.Set(groupImage, "Image Width", fmt.Sprintf("%d pixels", cfg.Width))
	doc.Set(groupImage, "Image Height", fmt.Sprintf("%d pixels", cfg.Height))
	doc.Set(groupImage, "Color Model", colorModelName(cfg.ColorModel))

	if raw := findExif(format, data); raw != nil {
		x, err := exif.Decode(bytes.NewReader(raw))
		if err != nil && (x == nil || exif.IsCriticalError(err)) {
			return nil, fmt.Errorf("%w: exif: %w", errors.ErrMetadataParse, err)
		}
		if err := x.Walk(&tagWalker{doc: doc}); err != nil {
			return nil, fmt.Errorf("%w: walk exif: %w", errors.ErrMetadataParse, err)
		}
	}

	return doc, nil
}

// Marshal validates doc against the document schema and renders it as
// indented JSON.
func (e *Extractor) Marshal(doc domain.MetadataDocument) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("normalize metadata: %w", err)
	}
	if err := e.schema.Validate(generic); err != nil {
		return nil, fmt.Errorf("%w: schema validation failed: %w", errors.ErrMetadataParse, err)
	}
	return data, nil
}

func colorModelName(m color.Model) string {
	if _, ok := m.(color.Palette); ok {
		return "Paletted"
	}
	switch m {
	case color.YCbCrModel:
		return "YCbCr"
	case color.NYCbCrAModel:
		return "YCbCr with alpha"
	case color.CMYKModel:
		return "CMYK"
	case color.GrayModel:
		return "Gray"
	case color.Gray16Model:
		return "Gray 16-bit"
	case color.RGBAModel:
		return "RGBA"
	case color.RGBA64Model:
		return "RGBA 64-bit"
	case color.NRGBAModel:
		return "NRGBA"
	case color.NRGBA64Model:
		return "NRGBA 64-bit"
	case color.AlphaModel, color.Alpha16Model:
		return "Alpha"
	default:
		return "Unknown"
	}
}
