// Package codec decodes uploaded images, resizes them and encodes WebP.
package codec

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"

	"github.com/HugoSmits86/nativewebp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/itchan-dev/imagehost/internal/errors"
)

// MaxDimension is the largest side a WebP bitstream can describe.
const MaxDimension = 16383

// WebP decodes JPEG, PNG and WebP input and writes lossless WebP.
type WebP struct {
	// MaxDecodedBytes caps width*height*4 of an input image and of every
	// resized output.
	MaxDecodedBytes int64
}

func New(maxDecodedBytes int64) *WebP {
	return &WebP{MaxDecodedBytes: maxDecodedBytes}
}

// Decode checks the header dimensions before allocating pixels, since a
// crafted header can claim 65535x65535 and make image.Decode allocate ~16GB.
func (c *WebP) Decode(data []byte) (image.Image, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: read dimensions: %w", errors.ErrDecodeFailure, err)
	}
	if err := c.checkDimensions(cfg.Width, cfg.Height); err != nil {
		return nil, fmt.Errorf("%w: %s image: %w", errors.ErrDecodeFailure, format, err)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", errors.ErrDecodeFailure, format, err)
	}
	return img, nil
}

// Encode writes img as lossless WebP. Images the format cannot hold are
// rejected up front, and encoder panics come back as errors since Encode
// runs on resize worker goroutines.
func (c *WebP) Encode(w io.Writer, img image.Image) (err error) {
	size := img.Bounds().Size()
	if size.X > MaxDimension || size.Y > MaxDimension {
		return fmt.Errorf("%w: %dx%d exceeds the webp limit of %d pixels per side",
			errors.ErrDecodeFailure, size.X, size.Y, MaxDimension)
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: webp encoder panicked: %v", errors.ErrDecodeFailure, rec)
		}
	}()
	if err := nativewebp.Encode(w, img, &nativewebp.Options{}); err != nil {
		return fmt.Errorf("%w: encode webp: %w", errors.ErrDecodeFailure, err)
	}
	return nil
}

// Resize scales img to width x height. A zero height is derived from width
// preserving aspect ratio and vice versa; both zero copies img as is.
// Targets the encoder cannot hold, or larger than MaxDecodedBytes, fail
// before any pixel buffer is allocated.
// img is only read, so concurrent calls on the same source are safe.
func (c *WebP) Resize(img image.Image, width, height int) (image.Image, error) {
	src := img.Bounds()
	width, height = TargetDimensions(src.Dx(), src.Dy(), width, height)
	if err := c.checkDimensions(width, height); err != nil {
		return nil, fmt.Errorf("%w: resize %dx%d: %w", errors.ErrDecodeFailure, src.Dx(), src.Dy(), err)
	}
	return Resize(img, width, height), nil
}

func (c *WebP) checkDimensions(width, height int) error {
	if width > MaxDimension || height > MaxDimension {
		return fmt.Errorf("%dx%d exceeds the webp limit of %d pixels per side", width, height, MaxDimension)
	}
	if c.MaxDecodedBytes > 0 && int64(width)*int64(height)*4 > c.MaxDecodedBytes {
		return fmt.Errorf("%dx%d exceeds decoded size limit of %d bytes", width, height, c.MaxDecodedBytes)
	}
	return nil
}

func Resize(img image.Image, width, height int) image.Image {
	src := img.Bounds()
	width, height = TargetDimensions(src.Dx(), src.Dy(), width, height)

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	if width == src.Dx() && height == src.Dy() {
		draw.Copy(dst, image.Point{}, img, src, draw.Src, nil)
		return dst
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, src, draw.Src, nil)
	return dst
}

// TargetDimensions resolves the zero sentinels of a resize request.
func TargetDimensions(srcWidth, srcHeight, width, height int) (int, int) {
	switch {
	case width == 0 && height == 0:
		return srcWidth, srcHeight
	case height == 0:
		height = proportional(srcHeight, width, srcWidth)
	case width == 0:
		width = proportional(srcWidth, height, srcHeight)
	}
	return width, height
}

func proportional(side, target, reference int) int {
	if reference == 0 {
		return 1
	}
	v := int(math.Round(float64(side) * float64(target) / float64(reference)))
	if v < 1 {
		return 1
	}
	return v
}
