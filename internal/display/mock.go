package display

import (
	"context"
	"image"
	"sync"
)

// Mock is a dry-run panel. It logs operations and remembers the last frame.
type Mock struct {
	model         string
	width, height int
	logger        Logger

	mu          sync.Mutex
	initialized bool
	last        image.Image
	shows       int
	clears      int
	sleeps      int
}

// NewMock creates a mock panel.
func NewMock(model string, width, height int, logger Logger) *Mock {
	if logger == nil {
		logger = noopLogger{}
	}
	if model == "" {
		model = "mock"
	}
	return &Mock{model: model, width: width, height: height, logger: logger}
}

func (m *Mock) Init(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.initialized = true
	m.logger.Info("dry run: display initialized", "model", m.model)
	return nil
}

func (m *Mock) Show(_ context.Context, img image.Image) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return ErrNotInitialized
	}

	b := img.Bounds()
	if b.Dx() != m.width || b.Dy() != m.height {
		m.logger.Debug("dry run: frame does not match panel size",
			"frame", b.Size().String(), "panel_width", m.width, "panel_height", m.height)
	}

	m.last = img
	m.shows++
	m.logger.Info("dry run: displaying image", "width", b.Dx(), "height", b.Dy())
	return nil
}

func (m *Mock) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return ErrNotInitialized
	}
	m.last = nil
	m.clears++
	m.logger.Info("dry run: clearing display")
	return nil
}

func (m *Mock) Sleep(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return ErrNotInitialized
	}
	m.initialized = false
	m.sleeps++
	m.logger.Info("dry run: display asleep")
	return nil
}

func (m *Mock) Size() (int, int) { return m.width, m.height }

func (m *Mock) Model() string { return m.model }

// Last returns the most recently shown frame (nil after Clear).
func (m *Mock) Last() image.Image {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Counts returns how many times Show, Clear and Sleep succeeded.
func (m *Mock) Counts() (shows, clears, sleeps int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shows, m.clears, m.sleeps
}
