// Package api serves the frame's local status API.
//
// It runs only in continuous mode, when the frame is awake long enough for
// anything to query it:
//
//	GET /api/v1/health   liveness plus a database check
//	GET /api/v1/status   mode, channel connectivity, current render
//	GET /metrics         Prometheus exposition
//
// The API is read-only; commands arrive over the message channel.
package api
