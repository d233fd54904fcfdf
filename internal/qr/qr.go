// Package qr renders redemption claims as QR images for API responses.
package qr

import (
	"encoding/base64"
	"encoding/json"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/messmate/messmate/internal/domain/token"
)

const pngSize = 256

// DataURL encodes the claim as JSON inside a PNG QR code and returns it as a
// base64 data URL, ready for an <img src>.
func DataURL(c *token.Claim) (string, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	png, err := qrcode.Encode(string(raw), qrcode.Medium, pngSize)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
