package handler

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/inkframe/internal/display"
	"github.com/nerrad567/inkframe/internal/infrastructure/config"
	"github.com/nerrad567/inkframe/internal/infrastructure/metrics"
	"github.com/nerrad567/inkframe/internal/ledger"
	"github.com/nerrad567/inkframe/internal/render"
)

// ActionDisplayImage fetches an image and shows it on the panel.
const ActionDisplayImage = "display_image"

// Preparer turns a request into a panel-ready frame.
type Preparer interface {
	Prepare(ctx context.Context, req render.Request, width, height int) (render.Result, error)
}

// Ledger tracks the frame currently on each display.
type Ledger interface {
	IsShowing(ctx context.Context, displayID, digest string) (bool, error)
	Record(ctx context.Context, r *ledger.Render) error
	Forget(ctx context.Context, displayID string) error
}

// RenderRecorder counts render results.
type RenderRecorder interface {
	RecordRender(result string)
}

// ImageOptions configures an ImageHandler.
type ImageOptions struct {
	// DisplayID keys the ledger.
	DisplayID string
	Preview   config.PreviewConfig
	Ledger    Ledger
	Recorder  RenderRecorder
	Logger    Logger
}

// ImageHandler handles display_image commands:
//
//	{"action": "display_image", "data": {"url": "...", "resize": true, "clear_first": false}}
//
// The frame digest is checked against the ledger first; a frame already on
// the panel is not redrawn.
type ImageHandler struct {
	pipeline Preparer
	panel    display.Display
	opts     ImageOptions
	logger   Logger
}

// NewImageHandler creates the image handler.
func NewImageHandler(pipeline Preparer, panel display.Display, opts ImageOptions) *ImageHandler {
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &ImageHandler{pipeline: pipeline, panel: panel, opts: opts, logger: logger}
}

func (h *ImageHandler) Name() string { return "image" }

func (h *ImageHandler) Accepts(action string) bool {
	return action == ActionDisplayImage
}

// Handle fetches, prepares and shows the image.
func (h *ImageHandler) Handle(ctx context.Context, data map[string]any) error {
	url, err := stringField(data, "url")
	if err != nil {
		return err
	}
	resize, err := boolField(data, "resize", true)
	if err != nil {
		return err
	}
	clearFirst, err := boolField(data, "clear_first", false)
	if err != nil {
		return err
	}

	width, height := h.panel.Size()
	res, err := h.pipeline.Prepare(ctx, render.Request{URL: url, Resize: resize}, width, height)
	if err != nil {
		h.record(metrics.RenderFailed)
		return err
	}

	if h.alreadyShowing(ctx, res.Digest) {
		h.logger.Info("image already on display, skipping", "url", url, "digest", res.Digest)
		h.record(metrics.RenderSkipped)
		return nil
	}

	if err := h.show(ctx, res, clearFirst); err != nil {
		h.record(metrics.RenderFailed)
		h.forget(ctx)
		return err
	}
	h.record(metrics.RenderApplied)
	h.logger.Info("image displayed", "url", url, "digest", res.Digest, "cropped", res.Cropped)

	if h.opts.Ledger != nil {
		if err := h.opts.Ledger.Record(ctx, &ledger.Render{
			DisplayID:     h.opts.DisplayID,
			ContentDigest: res.Digest,
			SourceURL:     url,
		}); err != nil {
			h.logger.Warn("failed to record render", "error", err)
		}
	}

	h.publishPreview(ctx, res)
	return nil
}

func (h *ImageHandler) alreadyShowing(ctx context.Context, digest string) bool {
	if h.opts.Ledger == nil {
		return false
	}
	showing, err := h.opts.Ledger.IsShowing(ctx, h.opts.DisplayID, digest)
	if err != nil {
		h.logger.Warn("ledger lookup failed, rendering anyway", "error", err)
		return false
	}
	return showing
}

// forget drops the ledger entry after a failed draw; the panel may be blank
// or half-refreshed, so the previous frame must not count as showing.
func (h *ImageHandler) forget(ctx context.Context) {
	if h.opts.Ledger == nil {
		return
	}
	if err := h.opts.Ledger.Forget(ctx, h.opts.DisplayID); err != nil {
		h.logger.Warn("failed to clear render record", "error", err)
	}
}

// show drives the panel through init, optional clear, draw and sleep.
func (h *ImageHandler) show(ctx context.Context, res render.Result, clearFirst bool) error {
	if err := h.panel.Init(ctx); err != nil {
		return fmt.Errorf("initializing display: %w", err)
	}
	if clearFirst {
		if err := h.panel.Clear(ctx); err != nil {
			return fmt.Errorf("clearing display: %w", err)
		}
	}
	if err := h.panel.Show(ctx, res.Image); err != nil {
		return fmt.Errorf("showing image: %w", err)
	}
	if err := h.panel.Sleep(ctx); err != nil && !errors.Is(err, display.ErrNotInitialized) {
		h.logger.Warn("display sleep failed", "error", err)
	}
	return nil
}

func (h *ImageHandler) publishPreview(ctx context.Context, res render.Result) {
	if !h.opts.Preview.Enabled {
		return
	}
	pub, ok := PublisherFromContext(ctx)
	if !ok {
		h.logger.Debug("no publisher for preview")
		return
	}

	payload, err := render.Preview(res.Image, h.opts.Preview.Width, h.opts.Preview.Quality)
	if err != nil {
		h.logger.Warn("failed to build preview", "error", err)
		return
	}
	if err := pub.Publish(h.opts.Preview.Topic, payload, 1, true); err != nil {
		h.logger.Warn("failed to publish preview", "topic", h.opts.Preview.Topic, "error", err)
		return
	}
	h.logger.Debug("preview published", "topic", h.opts.Preview.Topic, "bytes", len(payload))
}

func (h *ImageHandler) record(result string) {
	if h.opts.Recorder != nil {
		h.opts.Recorder.RecordRender(result)
	}
}
