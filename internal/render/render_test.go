package render

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/inkframe/internal/infrastructure/config"
)

// solid returns a w x h image filled with c.
func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// framed returns a w x h image with a border-pixel frame of c around a
// checkerboard interior.
func framed(w, h, border int, c color.Color) *image.RGBA {
	img := solid(w, h, c)
	for y := border; y < h-border; y++ {
		for x := border; x < w-border; x++ {
			if (x+y)%2 == 0 {
				img.Set(x, y, color.Black)
			} else {
				img.Set(x, y, color.White)
			}
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

func TestAutoCropBorders(t *testing.T) {
	red := color.RGBA{R: 200, A: 255}

	tests := []struct {
		name        string
		img         image.Image
		wantCropped bool
		wantSize    image.Point
	}{
		{
			name:        "coloured frame is trimmed",
			img:         framed(60, 40, 10, red),
			wantCropped: true,
			wantSize:    image.Pt(40, 20),
		},
		{
			name:        "thin frame is kept",
			img:         framed(60, 40, 3, red),
			wantCropped: false,
			wantSize:    image.Pt(60, 40),
		},
		{
			name:        "uniform image is kept",
			img:         solid(30, 30, color.White),
			wantCropped: false,
			wantSize:    image.Pt(30, 30),
		},
		{
			name:        "no border",
			img:         framed(20, 20, 0, red),
			wantCropped: false,
			wantSize:    image.Pt(20, 20),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, cropped := AutoCropBorders(tt.img)
			if cropped != tt.wantCropped {
				t.Errorf("cropped = %v, want %v", cropped, tt.wantCropped)
			}
			if got := out.Bounds().Size(); got != tt.wantSize {
				t.Errorf("size = %v, want %v", got, tt.wantSize)
			}
		})
	}
}

func TestCover(t *testing.T) {
	tests := []struct {
		name string
		src  image.Image
	}{
		{"wide source", solid(400, 100, color.White)},
		{"tall source", solid(100, 400, color.White)},
		{"small source", solid(10, 6, color.White)},
		{"offset bounds", solid(300, 300, color.White).SubImage(image.Rect(50, 50, 250, 150))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Cover(tt.src, 80, 48)
			if got := out.Bounds(); got != image.Rect(0, 0, 80, 48) {
				t.Errorf("bounds = %v, want 80x48 at origin", got)
			}
			r, g, b, _ := out.At(40, 24).RGBA()
			if r>>8 < 250 || g>>8 < 250 || b>>8 < 250 {
				t.Errorf("centre pixel = (%d,%d,%d), want white", r>>8, g>>8, b>>8)
			}
		})
	}
}

func TestCover_CropsCentre(t *testing.T) {
	// Left and right thirds black, middle white; covering a square panel
	// keeps only the middle.
	src := solid(300, 100, color.Black)
	for y := 0; y < 100; y++ {
		for x := 100; x < 200; x++ {
			src.Set(x, y, color.White)
		}
	}

	out := Cover(src, 50, 50)
	for _, x := range []int{5, 25, 45} {
		r, _, _, _ := out.At(x, 25).RGBA()
		if r>>8 < 200 {
			t.Errorf("pixel %d = %d, want white from the centre band", x, r>>8)
		}
	}
}

func TestDigest(t *testing.T) {
	a := solid(10, 10, color.White)
	b := solid(10, 10, color.White)
	c := solid(10, 10, color.Black)

	if Digest(a, true) != Digest(b, true) {
		t.Error("identical frames should share a digest")
	}
	if Digest(a, true) == Digest(c, true) {
		t.Error("different pixels should change the digest")
	}
	if Digest(a, true) == Digest(a, false) {
		t.Error("resize option should change the digest")
	}
	if Digest(a, true) != Digest(a.SubImage(a.Bounds()), true) {
		t.Error("digest should not depend on image representation")
	}
}

func TestPreview(t *testing.T) {
	out, err := Preview(solid(800, 480, color.White), 200, 75)
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}

	raw, err := base64.StdEncoding.DecodeString(string(out))
	if err != nil {
		t.Fatalf("preview is not base64: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("preview is not JPEG: %v", err)
	}
	if got := img.Bounds().Size(); got != image.Pt(200, 120) {
		t.Errorf("preview size = %v, want 200x120", got)
	}
}

func TestPreview_NoUpscale(t *testing.T) {
	out, err := Preview(solid(50, 30, color.White), 200, 75)
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}
	raw, _ := base64.StdEncoding.DecodeString(string(out))
	img, err := jpeg.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("jpeg.Decode: %v", err)
	}
	if got := img.Bounds().Size(); got != image.Pt(50, 30) {
		t.Errorf("preview size = %v, want 50x30", got)
	}
}

func TestDecode(t *testing.T) {
	img, format, err := Decode(encodePNG(t, solid(4, 4, color.White)), 0)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if format != "png" {
		t.Errorf("format = %q, want png", format)
	}
	if img.Bounds().Dx() != 4 {
		t.Errorf("width = %d, want 4", img.Bounds().Dx())
	}

	_, _, err = Decode([]byte("definitely not an image"), 0)
	if !errors.Is(err, ErrDecodeFailed) {
		t.Errorf("Decode(garbage) error = %v, want ErrDecodeFailed", err)
	}
}

// pngHeader returns the signature and IHDR chunk of an 8-bit RGBA PNG
// declaring w x h, with no pixel data behind it.
func pngHeader(w, h uint32) []byte {
	var b bytes.Buffer
	b.WriteString("\x89PNG\r\n\x1a\n")

	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], w)
	binary.BigEndian.PutUint32(ihdr[4:], h)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 6 // RGBA

	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(ihdr)))
	b.Write(n[:])
	crc := crc32.NewIEEE()
	chunk := append([]byte("IHDR"), ihdr...)
	b.Write(chunk)
	_, _ = crc.Write(chunk)
	binary.BigEndian.PutUint32(n[:], crc.Sum32())
	b.Write(n[:])
	return b.Bytes()
}

func TestDecode_PixelLimit(t *testing.T) {
	// 40000x40000 RGBA would need 6.4GB; rejected from the header alone.
	_, _, err := Decode(pngHeader(40000, 40000), 0)
	if !errors.Is(err, ErrDecodeFailed) {
		t.Fatalf("Decode(oversized) error = %v, want ErrDecodeFailed", err)
	}
	if !strings.Contains(err.Error(), "exceeds") {
		t.Errorf("error %q should name the pixel limit", err)
	}

	small := encodePNG(t, solid(4, 4, color.White))
	if _, _, err := Decode(small, 15); !errors.Is(err, ErrDecodeFailed) {
		t.Errorf("Decode(16px, limit 15) error = %v, want ErrDecodeFailed", err)
	}
	if _, _, err := Decode(small, 16); err != nil {
		t.Errorf("Decode(16px, limit 16) error = %v", err)
	}
}

func TestFetcher_Fetch(t *testing.T) {
	payload := encodePNG(t, solid(4, 4, color.White))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(payload)
		case "/big":
			_, _ = w.Write(bytes.Repeat([]byte{0}, 2048))
		case "/slow":
			time.Sleep(200 * time.Millisecond)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewFetcher(100*time.Millisecond, 1024)
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		got, err := f.Fetch(ctx, srv.URL+"/ok.png")
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if !bytes.Equal(got, payload) {
			t.Error("Fetch() returned different bytes")
		}
	})

	failures := map[string]string{
		"not found":    srv.URL + "/missing",
		"too large":    srv.URL + "/big",
		"timeout":      srv.URL + "/slow",
		"bad scheme":   "ftp://example.com/a.png",
		"unparseable":  "://nope",
		"missing host": "http:///a.png",
	}
	for name, url := range failures {
		t.Run(name, func(t *testing.T) {
			_, err := f.Fetch(ctx, url)
			if !errors.Is(err, ErrFetchFailed) {
				t.Errorf("Fetch(%q) error = %v, want ErrFetchFailed", url, err)
			}
		})
	}
}

func TestPipeline_Prepare(t *testing.T) {
	red := color.RGBA{R: 200, A: 255}
	payload := encodePNG(t, framed(120, 60, 10, red))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	fetcher := NewFetcher(time.Second, 0)

	t.Run("resize and crop", func(t *testing.T) {
		p := NewPipeline(config.ImageConfig{AutoCropBorders: true}, fetcher, nil)
		res, err := p.Prepare(context.Background(), Request{URL: srv.URL, Resize: true}, 80, 48)
		if err != nil {
			t.Fatalf("Prepare() error = %v", err)
		}
		if !res.Cropped {
			t.Error("Cropped = false, want true")
		}
		if res.Format != "png" || res.SourceWidth != 120 || res.SourceHeight != 60 {
			t.Errorf("source = %s %dx%d", res.Format, res.SourceWidth, res.SourceHeight)
		}
		if got := res.Image.Bounds().Size(); got != image.Pt(80, 48) {
			t.Errorf("size = %v, want 80x48", got)
		}
		if len(res.Digest) != 64 {
			t.Errorf("Digest = %q, want hex sha256", res.Digest)
		}
	})

	t.Run("as is", func(t *testing.T) {
		p := NewPipeline(config.ImageConfig{}, fetcher, nil)
		res, err := p.Prepare(context.Background(), Request{URL: srv.URL}, 80, 48)
		if err != nil {
			t.Fatalf("Prepare() error = %v", err)
		}
		if res.Cropped {
			t.Error("Cropped = true with auto-crop disabled")
		}
		if got := res.Image.Bounds().Size(); got != image.Pt(120, 60) {
			t.Errorf("size = %v, want source size", got)
		}
	})

	t.Run("fetch error", func(t *testing.T) {
		p := NewPipeline(config.ImageConfig{}, fetcher, nil)
		_, err := p.Prepare(context.Background(), Request{URL: "http://127.0.0.1:1/x"}, 80, 48)
		if !errors.Is(err, ErrFetchFailed) {
			t.Errorf("error = %v, want ErrFetchFailed", err)
		}
	})

	t.Run("oversized image", func(t *testing.T) {
		bomb := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write(pngHeader(40000, 40000))
		}))
		defer bomb.Close()

		p := NewPipeline(config.ImageConfig{MaxPixels: DefaultMaxPixels}, fetcher, nil)
		_, err := p.Prepare(context.Background(), Request{URL: bomb.URL, Resize: true}, 80, 48)
		if !errors.Is(err, ErrDecodeFailed) {
			t.Errorf("error = %v, want ErrDecodeFailed", err)
		}
	})

	t.Run("decode error", func(t *testing.T) {
		bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(strings.Repeat("x", 64)))
		}))
		defer bad.Close()

		p := NewPipeline(config.ImageConfig{}, fetcher, nil)
		_, err := p.Prepare(context.Background(), Request{URL: bad.URL}, 80, 48)
		if !errors.Is(err, ErrDecodeFailed) {
			t.Errorf("error = %v, want ErrDecodeFailed", err)
		}
	})
}
