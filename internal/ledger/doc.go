// Package ledger records what each display is currently showing.
//
// The image handler consults it before rendering: a display_image command
// redelivered after a reconnect produces a frame whose digest is already on
// the panel, and that frame is not drawn again.
//
// Only the latest render per display is kept; this is not a history.
package ledger
