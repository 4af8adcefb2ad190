package handler

import (
	"context"

	"github.com/nerrad567/inkframe/internal/mode"
)

// ActionEnterContinuous switches the frame to continuous mode.
const ActionEnterContinuous = "enter_continuous_mode"

// SystemHandler handles mode control commands.
type SystemHandler struct {
	state  *mode.State
	logger Logger
}

// NewSystemHandler creates a handler that flips state.
func NewSystemHandler(state *mode.State, logger Logger) *SystemHandler {
	if logger == nil {
		logger = noopLogger{}
	}
	return &SystemHandler{state: state, logger: logger}
}

func (h *SystemHandler) Name() string { return "system" }

func (h *SystemHandler) Accepts(action string) bool {
	return action == ActionEnterContinuous
}

func (h *SystemHandler) Handle(_ context.Context, _ map[string]any) error {
	if h.state.EnterContinuous() {
		h.logger.Info("entering continuous mode")
	} else {
		h.logger.Debug("already in continuous mode")
	}
	return nil
}
