// Package metrics holds the frame's Prometheus collectors.
//
// In continuous mode they are scraped from the status API's /metrics route.
// A battery frame is never up long enough to be scraped, so each wake cycle
// pushes the registry to a pushgateway (metrics.pushgateway_url) just before
// shutdown.
package metrics
