// Package epd drives the Waveshare 7.3" F seven-color e-paper panel over
// SPI. On non-linux builds Open returns a stub that logs and discards
// frames, so the full refresh pipeline runs on development machines.
package epd

import "context"

// Panel geometry.
const (
	Width  = 800
	Height = 480
	// BufferSize is the packed frame size: two 4-bit pixels per byte.
	BufferSize = Width / 2 * Height
)

// whitePair is the packed byte for two white pixels, ink code 0x1 twice.
const whitePair = 0x11

// Panel is the display surface the refresh pipeline writes to.
type Panel interface {
	// Display pushes one packed frame and refreshes the panel. The
	// refresh takes on the order of 30 seconds on real hardware.
	Display(ctx context.Context, buf []byte) error
	// Clear floods the panel white.
	Clear(ctx context.Context) error
	// Sleep puts the panel into deep sleep; Display wakes it again.
	Sleep() error
	// Close releases the bus and pins.
	Close() error
}
