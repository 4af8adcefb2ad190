package display

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/nerrad567/inkframe/internal/infrastructure/config"
)

// ErrNotInitialized is returned when a panel is used before Init or after Sleep.
var ErrNotInitialized = errors.New("display: not initialized")

// Display is an e-ink panel.
//
// Implementations are not required to be safe for concurrent use; the
// handler registry serialises every render.
type Display interface {
	// Init wakes the panel and prepares it for drawing.
	Init(ctx context.Context) error
	// Show draws img. img should already match Size().
	Show(ctx context.Context, img image.Image) error
	// Clear blanks the panel to white.
	Clear(ctx context.Context) error
	// Sleep puts the panel into its low power state. Init must be called
	// again before the next Show.
	Sleep(ctx context.Context) error
	// Size returns the panel resolution in pixels.
	Size() (width, height int)
	// Model names the panel.
	Model() string
}

// Logger interface for optional logging support.
type Logger interface {
	Info(msg string, args ...any)
	Debug(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Debug(string, ...any) {}

// New builds the driver named by cfg.Driver.
//
// Drivers:
//   - "mock": logs every operation and keeps the last frame in memory (dry runs)
//   - "file": writes each frame to cfg.OutputPath as PNG
func New(cfg config.DisplayConfig, logger Logger) (Display, error) {
	if logger == nil {
		logger = noopLogger{}
	}
	if cfg.Width < 1 || cfg.Height < 1 {
		return nil, fmt.Errorf("display: invalid size %dx%d", cfg.Width, cfg.Height)
	}

	switch cfg.Driver {
	case "mock", "":
		return NewMock(cfg.Model, cfg.Width, cfg.Height, logger), nil
	case "file":
		if cfg.OutputPath == "" {
			return nil, fmt.Errorf("display: file driver needs output_path")
		}
		return NewFile(cfg.Model, cfg.Width, cfg.Height, cfg.OutputPath, logger), nil
	default:
		return nil, fmt.Errorf("display: unknown driver %q", cfg.Driver)
	}
}
