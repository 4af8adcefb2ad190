// Package render prepares images for the e-ink panel.
//
// The pipeline fetches an image over HTTP(S), decodes it (JPEG, PNG, GIF,
// BMP, WebP), optionally trims solid-colour borders, optionally scales it to
// cover the panel with a centre crop (Catmull-Rom), and fingerprints the
// resulting frame so repeated commands can be recognised.
//
// Preview produces the base64 JPEG thumbnail published after a render.
package render
