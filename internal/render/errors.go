package render

import "errors"

var (
	// ErrFetchFailed is returned when the image cannot be downloaded.
	ErrFetchFailed = errors.New("render: fetch failed")

	// ErrDecodeFailed is returned when the downloaded bytes are not a supported image.
	ErrDecodeFailed = errors.New("render: decode failed")
)
