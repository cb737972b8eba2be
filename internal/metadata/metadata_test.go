package metadata

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itchan-dev/imagehost/internal/domain"
	"github.com/itchan-dev/imagehost/internal/errors"
)

func newExtractor(t *testing.T) *Extractor {
	t.Helper()
	e, err := New()
	require.NoError(t, err)
	return e
}

func sampleJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

// tiffWithCamera builds a little-endian TIFF structure holding Make and Model.
func tiffWithCamera(maker, model string) []byte {
	makeVal := append([]byte(maker), 0)
	modelVal := append([]byte(model), 0)

	const entries = 2
	dataStart := 8 + 2 + entries*12 + 4

	var buf bytes.Buffer
	le := binary.LittleEndian
	buf.WriteString("II")
	binary.Write(&buf, le, uint16(42))
	binary.Write(&buf, le, uint32(8))
	binary.Write(&buf, le, uint16(entries))
	// Make
	binary.Write(&buf, le, uint16(0x010F))
	binary.Write(&buf, le, uint16(2))
	binary.Write(&buf, le, uint32(len(makeVal)))
	binary.Write(&buf, le, uint32(dataStart))
	// Model
	binary.Write(&buf, le, uint16(0x0110))
	binary.Write(&buf, le, uint16(2))
	binary.Write(&buf, le, uint32(len(modelVal)))
	binary.Write(&buf, le, uint32(dataStart+len(makeVal)))
	binary.Write(&buf, le, uint32(0))
	buf.Write(makeVal)
	buf.Write(modelVal)
	return buf.Bytes()
}

// withAPP1 inserts an Exif APP1 segment right after the SOI marker.
func withAPP1(jpg, tiff []byte) []byte {
	payload := append([]byte("Exif\x00\x00"), tiff...)
	segment := []byte{0xFF, 0xE1, 0, 0}
	binary.BigEndian.PutUint16(segment[2:], uint16(len(payload)+2))
	segment = append(segment, payload...)

	out := append([]byte{}, jpg[:2]...)
	out = append(out, segment...)
	return append(out, jpg[2:]...)
}

// withEXIf inserts an eXIf chunk right after IHDR.
func withEXIf(pngData, tiff []byte) []byte {
	const ihdrEnd = 8 + 4 + 4 + 13 + 4
	chunk := binary.BigEndian.AppendUint32(nil, uint32(len(tiff)))
	chunk = append(chunk, "eXIf"...)
	chunk = append(chunk, tiff...)
	chunk = binary.BigEndian.AppendUint32(chunk, crc32.ChecksumIEEE(chunk[4:]))

	out := append([]byte{}, pngData[:ihdrEnd]...)
	out = append(out, chunk...)
	return append(out, pngData[ihdrEnd:]...)
}

func samplePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func TestExtract(t *testing.T) {
	e := newExtractor(t)

	t.Run("jpeg without exif", func(t *testing.T) {
		data := sampleJPEG(t, 40, 30)
		doc, err := e.Extract("photo.jpg", data)
		require.NoError(t, err)

		assert.Equal(t, "JPEG", doc[groupFileType]["Detected File Type Name"])
		assert.Equal(t, "image/jpeg", doc[groupFileType]["Detected MIME Type"])
		assert.Equal(t, "jpg", doc[groupFileType]["Expected File Name Extension"])
		assert.Equal(t, "photo.jpg", doc[groupFile]["File Name"])
		assert.Equal(t, "40 pixels", doc[groupImage]["Image Width"])
		assert.Equal(t, "30 pixels", doc[groupImage]["Image Height"])
		assert.Equal(t, "YCbCr", doc[groupImage]["Color Model"])
		assert.NotContains(t, doc, groupIFD0)
	})

	t.Run("jpeg with exif", func(t *testing.T) {
		data := withAPP1(sampleJPEG(t, 16, 16), tiffWithCamera("Acme", "Cam 1"))
		doc, err := e.Extract("camera.jpeg", data)
		require.NoError(t, err)

		require.Contains(t, doc, groupIFD0)
		assert.Equal(t, "Acme", doc[groupIFD0]["Make"])
		assert.Equal(t, "Cam 1", doc[groupIFD0]["Model"])
		assert.Equal(t, "16 pixels", doc[groupImage]["Image Width"])
	})

	t.Run("file size reported in bytes", func(t *testing.T) {
		data := sampleJPEG(t, 8, 8)
		doc, err := e.Extract("a.jpg", data)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("%d bytes", len(data)), doc[groupFile]["File Size"])
	})

	t.Run("png", func(t *testing.T) {
		img := image.NewGray(image.Rect(0, 0, 5, 3))
		img.Set(1, 1, color.Gray{Y: 10})
		var buf bytes.Buffer
		require.NoError(t, png.Encode(&buf, img))

		doc, err := e.Extract("dir/scan.png", buf.Bytes())
		require.NoError(t, err)
		assert.Equal(t, "PNG", doc[groupFileType]["Detected File Type Name"])
		assert.Equal(t, "scan.png", doc[groupFile]["File Name"])
		assert.Equal(t, "Gray", doc[groupImage]["Color Model"])
	})

	t.Run("png with exif chunk", func(t *testing.T) {
		data := withEXIf(samplePNG(t, 4, 3), tiffWithCamera("Acme", "Cam 2"))
		doc, err := e.Extract("scan.png", data)
		require.NoError(t, err)

		require.Contains(t, doc, groupIFD0)
		assert.Equal(t, "Acme", doc[groupIFD0]["Make"])
		assert.Equal(t, "Cam 2", doc[groupIFD0]["Model"])
		assert.Equal(t, "4 pixels", doc[groupImage]["Image Width"])
	})

	t.Run("broken exif block", func(t *testing.T) {
		broken := []byte("II*\x00\x00\x10\x00\x00")
		_, err := e.Extract("bad.jpg", withAPP1(sampleJPEG(t, 8, 8), broken))
		require.Error(t, err)
		assert.True(t, stderrors.Is(err, errors.ErrMetadataParse))
	})

	t.Run("not an image", func(t *testing.T) {
		_, err := e.Extract("notes.jpg", []byte("plain text pretending to be a jpeg"))
		require.Error(t, err)
		assert.True(t, stderrors.Is(err, errors.ErrMetadataParse))
	})
}

func TestFindExif(t *testing.T) {
	tiff := tiffWithCamera("A", "B")

	t.Run("jpeg app1", func(t *testing.T) {
		assert.Equal(t, tiff, findExif("jpeg", withAPP1(sampleJPEG(t, 4, 4), tiff)))
	})

	t.Run("jpeg without app1", func(t *testing.T) {
		assert.Nil(t, findExif("jpeg", sampleJPEG(t, 4, 4)))
	})

	t.Run("webp exif chunk", func(t *testing.T) {
		var buf bytes.Buffer
		buf.WriteString("RIFF")
		binary.Write(&buf, binary.LittleEndian, uint32(0))
		buf.WriteString("WEBP")
		buf.WriteString("EXIF")
		binary.Write(&buf, binary.LittleEndian, uint32(len(tiff)))
		buf.Write(tiff)
		assert.Equal(t, tiff, findExif("webp", buf.Bytes()))
	})

	t.Run("png exif chunk", func(t *testing.T) {
		assert.Equal(t, tiff, findExif("png", withEXIf(samplePNG(t, 4, 3), tiff)))
	})

	t.Run("png without exif chunk", func(t *testing.T) {
		assert.Nil(t, findExif("png", samplePNG(t, 4, 3)))
	})

	t.Run("unknown format", func(t *testing.T) {
		assert.Nil(t, findExif("gif", []byte("GIF89a")))
	})
}

func TestMarshal(t *testing.T) {
	e := newExtractor(t)

	t.Run("indented json", func(t *testing.T) {
		doc := domain.MetadataDocument{}
		doc.Set(groupFile, "File Name", "a.jpg")

		data, err := e.Marshal(doc)
		require.NoError(t, err)
		assert.Contains(t, string(data), "\n  \"File\": {\n    \"File Name\": \"a.jpg\"")

		var back map[string]map[string]string
		require.NoError(t, json.Unmarshal(data, &back))
		assert.Equal(t, "a.jpg", back[groupFile]["File Name"])
	})

	t.Run("empty group rejected", func(t *testing.T) {
		doc := domain.MetadataDocument{groupFile: {}}
		_, err := e.Marshal(doc)
		require.Error(t, err)
		assert.True(t, stderrors.Is(err, errors.ErrMetadataParse))
	})
}
