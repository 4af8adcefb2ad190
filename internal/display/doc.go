// Package display defines the e-ink panel interface and the software
// drivers: a logging mock for dry runs and a PNG framebuffer file.
//
// Hardware panels (Waveshare SPI e-paper) implement the same interface
// outside this module.
package display
