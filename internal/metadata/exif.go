package metadata

import (
	"bytes"
	"encoding/binary"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"

	"github.com/itchan-dev/imagehost/internal/domain"
)

const (
	groupIFD0    = "Exif IFD0"
	groupSubIFD  = "Exif SubIFD"
	groupGPS     = "GPS"
	groupInterop = "Interoperability"
	groupThumb   = "Exif Thumbnail"
)

var exifHeader = []byte("Exif\x00\x00")

// ifd0Fields lists the tags goexif reports from the primary image directory.
var ifd0Fields = map[exif.FieldName]bool{
	exif.ImageWidth:                true,
	exif.ImageLength:               true,
	exif.BitsPerSample:             true,
	exif.Compression:               true,
	exif.PhotometricInterpretation: true,
	exif.Orientation:               true,
	exif.SamplesPerPixel:           true,
	exif.PlanarConfiguration:       true,
	exif.YCbCrSubSampling:          true,
	exif.YCbCrPositioning:          true,
	exif.XResolution:               true,
	exif.YResolution:               true,
	exif.ResolutionUnit:            true,
	exif.DateTime:                  true,
	exif.ImageDescription:          true,
	exif.Make:                      true,
	exif.Model:                     true,
	exif.Software:                  true,
	exif.Artist:                    true,
	exif.Copyright:                 true,
	exif.ExifIFDPointer:            true,
	exif.GPSInfoIFDPointer:         true,
}

// skippedFields hold opaque vendor blobs that do not render as text.
var skippedFields = map[exif.FieldName]bool{
	exif.MakerNote: true,
}

// findExif returns the TIFF structure embedded in a JPEG APP1 segment, a PNG
// eXIf chunk or a WebP EXIF chunk. It returns nil when there is none.
func findExif(format string, data []byte) []byte {
	var payload []byte
	switch format {
	case "jpeg":
		payload = jpegExif(data)
	case "png":
		payload = pngExif(data)
	case "webp":
		payload = webpExif(data)
	}
	payload = bytes.TrimPrefix(payload, exifHeader)
	if len(payload) < 8 {
		return nil
	}
	return payload
}

func jpegExif(data []byte) []byte {
	if len(data) < 4 || data[0] != 0xFF || data[1] != 0xD8 {
		return nil
	}
	i := 2
	for i+4 <= len(data) {
		if data[i] != 0xFF {
			return nil
		}
		marker := data[i+1]
		// start of scan or end of image: no more metadata segments
		if marker == 0xDA || marker == 0xD9 {
			return nil
		}
		length := int(binary.BigEndian.Uint16(data[i+2 : i+4]))
		end := i + 2 + length
		if length < 2 || end > len(data) {
			return nil
		}
		segment := data[i+4 : end]
		if marker == 0xE1 && bytes.HasPrefix(segment, exifHeader) {
			return segment
		}
		i = end
	}
	return nil
}

func pngExif(data []byte) []byte {
	const signatureLen = 8
	i := signatureLen
	for i+8 <= len(data) {
		length := int(binary.BigEndian.Uint32(data[i : i+4]))
		chunkType := string(data[i+4 : i+8])
		start := i + 8
		end := start + length
		if length < 0 || end+4 > len(data) {
			return nil
		}
		switch chunkType {
		case "eXIf":
			return data[start:end]
		case "IEND":
			return nil
		}
		i = end + 4
	}
	return nil
}

func webpExif(data []byte) []byte {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WEBP" {
		return nil
	}
	i := 12
	for i+8 <= len(data) {
		fourCC := string(data[i : i+4])
		size := int(binary.LittleEndian.Uint32(data[i+4 : i+8]))
		start := i + 8
		end := start + size
		if size < 0 || end > len(data) {
			return nil
		}
		if fourCC == "EXIF" {
			return data[start:end]
		}
		// chunks are padded to an even size
		i = end + size%2
	}
	return nil
}

type tagWalker struct {
	doc domain.MetadataDocument
}

func (w *tagWalker) Walk(name exif.FieldName, tag *tiff.Tag) error {
	if skippedFields[name] {
		return nil
	}
	w.doc.Set(exifGroup(name), string(name), describeTag(tag))
	return nil
}

func exifGroup(name exif.FieldName) string {
	n := string(name)
	switch {
	case ifd0Fields[name]:
		return groupIFD0
	case strings.HasPrefix(n, "GPS"):
		return groupGPS
	case strings.HasPrefix(n, "Thumb"):
		return groupThumb
	case name == exif.InteroperabilityIndex:
		return groupInterop
	default:
		return groupSubIFD
	}
}

func describeTag(tag *tiff.Tag) string {
	if tag.Format() == tiff.StringVal {
		if s, err := tag.StringVal(); err == nil {
			return strings.TrimRight(s, "\x00 ")
		}
	}
	return tag.String()
}
