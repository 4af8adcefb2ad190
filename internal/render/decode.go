package render

import (
	"bytes"
	"fmt"
	"image"

	// Registered decoders.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// DefaultMaxPixels bounds decoded images to roughly a quarter gigabyte of
// RGBA, the same limit Pillow applies by default.
const DefaultMaxPixels int64 = 89_478_485

// Decode decodes JPEG, PNG, GIF (first frame), BMP or WebP data and reports
// the detected format.
//
// The header is read first; an image declaring more than maxPixels pixels is
// rejected before any pixel buffer is allocated. maxPixels <= 0 means
// DefaultMaxPixels.
func Decode(data []byte, maxPixels int64) (image.Image, string, error) {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrDecodeFailed, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, "", fmt.Errorf("%w: empty image %dx%d", ErrDecodeFailed, cfg.Width, cfg.Height)
	}
	if int64(cfg.Width)*int64(cfg.Height) > maxPixels {
		return nil, "", fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrDecodeFailed, cfg.Width, cfg.Height, maxPixels)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrDecodeFailed, err)
	}
	return img, format, nil
}
