// Package qrimg renders enrollment and attendance links as QR PNGs.
package qrimg

import qrcode "github.com/skip2/go-qrcode"

const (
	minSize     = 128
	maxSize     = 1024
	defaultSize = 256
)

// PNG encodes url as a QR code image. Size is clamped to a sane range; zero
// selects the default.
func PNG(url string, size int) ([]byte, error) {
	if size == 0 {
		size = defaultSize
	}
	if size < minSize {
		size = minSize
	}
	if size > maxSize {
		size = maxSize
	}
	return qrcode.Encode(url, qrcode.Medium, size)
}
