package qrcode

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

const size = 256

// AddressPNG renders the receiving address as a PNG QR code. The payload is
// the bare address so any TRON wallet can scan it.
func AddressPNG(address string) ([]byte, error) {
	png, err := qrcode.Encode(address, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr code: %w", err)
	}
	return png, nil
}
