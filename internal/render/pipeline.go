package render

import (
	"context"
	"fmt"
	"image"

	"github.com/nerrad567/inkframe/internal/infrastructure/config"
)

// Logger interface for optional logging support.
type Logger interface {
	Info(msg string, args ...any)
	Debug(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Debug(string, ...any) {}

// Request describes one image to prepare.
type Request struct {
	URL string
	// Resize covers the panel (scale and centre-crop). When false the
	// decoded image is shown as is.
	Resize bool
}

// Result is a frame ready to show.
type Result struct {
	Image  image.Image
	Digest string
	Format string

	SourceWidth  int
	SourceHeight int
	Cropped      bool
}

// Pipeline turns an image URL into a panel-sized frame:
// fetch, decode, optional border auto-crop, optional cover resize, digest.
type Pipeline struct {
	fetcher   *Fetcher
	autoCrop  bool
	maxPixels int64
	logger    Logger
}

// NewPipeline builds a pipeline from the image configuration.
func NewPipeline(cfg config.ImageConfig, fetcher *Fetcher, logger Logger) *Pipeline {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Pipeline{
		fetcher:   fetcher,
		autoCrop:  cfg.AutoCropBorders,
		maxPixels: cfg.MaxPixels,
		logger:    logger,
	}
}

// Prepare runs the pipeline for a panel of width x height.
func (p *Pipeline) Prepare(ctx context.Context, req Request, width, height int) (Result, error) {
	p.logger.Info("fetching image", "url", req.URL)

	data, err := p.fetcher.Fetch(ctx, req.URL)
	if err != nil {
		return Result{}, err
	}

	img, format, err := Decode(data, p.maxPixels)
	if err != nil {
		return Result{}, err
	}

	b := img.Bounds()
	res := Result{Format: format, SourceWidth: b.Dx(), SourceHeight: b.Dy()}
	p.logger.Debug("image decoded", "format", format, "width", b.Dx(), "height", b.Dy())

	if p.autoCrop {
		img, res.Cropped = AutoCropBorders(img)
		if res.Cropped {
			cb := img.Bounds()
			p.logger.Info("cropped borders",
				"from", fmt.Sprintf("%dx%d", b.Dx(), b.Dy()),
				"to", fmt.Sprintf("%dx%d", cb.Dx(), cb.Dy()))
		}
	}

	if req.Resize {
		img = Cover(img, width, height)
	}

	res.Image = img
	res.Digest = Digest(img, req.Resize)
	return res, nil
}
