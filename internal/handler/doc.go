// Package handler turns channel commands into actions.
//
// A Registry holds Handlers in priority order and dispatches each Message to
// the first one that accepts its action. Two handlers are provided:
//
//   - SystemHandler: enter_continuous_mode
//   - ImageHandler: display_image (fetch, render, show, preview)
//
// Commands arrive at least once, so every handler is idempotent: entering
// continuous mode twice is a no-op, and an image whose frame digest is
// already on the panel is skipped.
package handler
