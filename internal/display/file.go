package display

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"sync"
)

// File is a panel backed by a PNG framebuffer on disk. Useful on a desk
// without the hardware, or to serve the current frame elsewhere.
type File struct {
	model         string
	width, height int
	path          string
	logger        Logger

	mu          sync.Mutex
	initialized bool
}

// NewFile creates a file-backed panel writing to path.
func NewFile(model string, width, height int, path string, logger Logger) *File {
	if logger == nil {
		logger = noopLogger{}
	}
	if model == "" {
		model = "file"
	}
	return &File{model: model, width: width, height: height, path: path, logger: logger}
}

func (f *File) Init(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0o750); err != nil {
		return fmt.Errorf("display: creating framebuffer directory: %w", err)
	}
	f.initialized = true
	f.logger.Info("file display initialized", "path", f.path)
	return nil
}

func (f *File) Show(_ context.Context, img image.Image) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.initialized {
		return ErrNotInitialized
	}
	return f.write(img)
}

func (f *File) Clear(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.initialized {
		return ErrNotInitialized
	}

	blank := image.NewRGBA(image.Rect(0, 0, f.width, f.height))
	draw.Draw(blank, blank.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	return f.write(blank)
}

func (f *File) Sleep(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.initialized {
		return ErrNotInitialized
	}
	f.initialized = false
	return nil
}

func (f *File) Size() (int, int) { return f.width, f.height }

func (f *File) Model() string { return f.model }

// Path returns the framebuffer file path.
func (f *File) Path() string { return f.path }

// write replaces the framebuffer atomically so readers never see a partial PNG.
func (f *File) write(img image.Image) error {
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".frame-*.png")
	if err != nil {
		return fmt.Errorf("display: creating temp frame: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // Gone after rename

	if err := png.Encode(tmp, img); err != nil {
		tmp.Close() //nolint:errcheck // Error path
		return fmt.Errorf("display: encoding frame: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("display: writing frame: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("display: replacing frame: %w", err)
	}

	f.logger.Debug("frame written", "path", f.path)
	return nil
}
