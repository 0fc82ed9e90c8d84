// Package convert quantizes rendered RGBA frames into the packed buffer
// the seven-color ACeP panel expects.
package convert

import (
	"fmt"
	"image"
)

// Panel ink codes for the 7.3" F panel. Two pixels share a byte, the left
// pixel in the high nibble.
const (
	InkBlack  byte = 0x0
	InkWhite  byte = 0x1
	InkGreen  byte = 0x2
	InkBlue   byte = 0x3
	InkRed    byte = 0x4
	InkYellow byte = 0x5
	InkOrange byte = 0x6
)

// palette holds the nominal RGB of each ink. Order matters: ties resolve
// to the earlier entry.
var palette = [...]struct {
	r, g, b uint8
	code    byte
}{
	{0x00, 0x00, 0x00, InkBlack},
	{0xFF, 0xFF, 0xFF, InkWhite},
	{0x00, 0xFF, 0x00, InkGreen},
	{0x00, 0x00, 0xFF, InkBlue},
	{0xFF, 0x00, 0x00, InkRed},
	{0xFF, 0xFF, 0x00, InkYellow},
	{0xFF, 0x80, 0x00, InkOrange},
}

// Pack converts img into the panel buffer: one 4-bit ink code per pixel,
// two per byte, row-major. Width must be even; the panel cannot address
// half a byte.
func Pack(img *image.RGBA) ([]byte, error) {
	if img == nil {
		return nil, fmt.Errorf("convert: nil image")
	}
	b := img.Bounds()
	w := b.Dx()
	h := b.Dy()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("convert: empty image %dx%d", w, h)
	}
	if w%2 != 0 {
		return nil, fmt.Errorf("convert: width %d is odd, panel packs two pixels per byte", w)
	}

	buf := make([]byte, w/2*h)

	// Walk the pixel slice directly; At() per pixel is too slow for a
	// full frame on a Pi Zero.
	for py := 0; py < h; py++ {
		rowOff := img.PixOffset(b.Min.X, b.Min.Y+py)
		outOff := py * (w / 2)
		for px := 0; px < w; px += 2 {
			i := rowOff + px*4
			left := classify(img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3])
			right := classify(img.Pix[i+4], img.Pix[i+5], img.Pix[i+6], img.Pix[i+7])
			buf[outOff+px/2] = left<<4 | right
		}
	}
	return buf, nil
}

// classify picks the nearest ink by squared RGB distance. Transparent
// pixels count as paper.
func classify(r, g, b, a uint8) byte {
	if a < 128 {
		return InkWhite
	}
	best := InkWhite
	bestDist := 1 << 30
	for _, p := range palette {
		dr := int(r) - int(p.r)
		dg := int(g) - int(p.g)
		db := int(b) - int(p.b)
		dist := dr*dr + dg*dg + db*db
		if dist < bestDist {
			bestDist = dist
			best = p.code
		}
	}
	return best
}
