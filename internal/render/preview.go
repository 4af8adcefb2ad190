package render

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"image"
	"image/jpeg"
)

// Preview encodes a JPEG thumbnail of img, width pixels wide, as base64.
// This is the payload published on the preview topic.
func Preview(img image.Image, width, quality int) ([]byte, error) {
	thumb := scaleToWidth(img, width)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("render: encoding preview: %w", err)
	}

	out := make([]byte, base64.StdEncoding.EncodedLen(buf.Len()))
	base64.StdEncoding.Encode(out, buf.Bytes())
	return out, nil
}

// Digest fingerprints the rendered frame: its size, its pixels and the
// options that shaped it. Two commands producing the same frame share a digest.
func Digest(img image.Image, resized bool) string {
	rgba := toRGBA(img)
	b := rgba.Bounds()

	h := sha256.New()
	var hdr [9]byte
	binary.BigEndian.PutUint32(hdr[0:4], uint32(b.Dx()))
	binary.BigEndian.PutUint32(hdr[4:8], uint32(b.Dy()))
	if resized {
		hdr[8] = 1
	}
	h.Write(hdr[:])

	rowBytes := b.Dx() * 4
	for y := 0; y < b.Dy(); y++ {
		off := y * rgba.Stride
		h.Write(rgba.Pix[off : off+rowBytes])
	}
	return hex.EncodeToString(h.Sum(nil))
}
