package qr

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

const defaultSize = 256

// Encoder renders QR code PNGs for attendance submission URLs.
type Encoder struct {
	size int
}

// NewEncoder builds an encoder. A non-positive size falls back to 256px.
func NewEncoder(size int) *Encoder {
	if size <= 0 {
		size = defaultSize
	}
	return &Encoder{size: size}
}

// EncodePNG returns the payload rendered as a PNG image. Medium error
// correction keeps the code scannable on projected screens.
func (e *Encoder) EncodePNG(payload string) ([]byte, error) {
	if payload == "" {
		return nil, fmt.Errorf("qr payload must not be empty")
	}
	png, err := qrcode.Encode(payload, qrcode.Medium, e.size)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}
