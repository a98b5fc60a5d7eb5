// Package label renders equipment label artwork as PNG data URIs.
package label

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/code128"
	"github.com/boombuler/barcode/qr"
)

const pngPrefix = "data:image/png;base64,"

// QRDataURI encodes text as a QR code and returns it as a PNG data URI.
// Size is the square edge in pixels; non-positive values fall back to 256.
func QRDataURI(text string, size int) (string, error) {
	if text == "" {
		return "", fmt.Errorf("qr text must not be empty")
	}
	if size <= 0 {
		size = 256
	}

	code, err := qr.Encode(text, qr.M, qr.Auto)
	if err != nil {
		return "", fmt.Errorf("encode qr: %w", err)
	}
	scaled, err := barcode.Scale(code, size, size)
	if err != nil {
		return "", fmt.Errorf("scale qr: %w", err)
	}

	return encodePNG(scaled)
}

// Code128DataURI encodes text as a Code 128 barcode and returns it as a
// PNG data URI. Non-positive dimensions fall back to 300x80.
func Code128DataURI(text string, width, height int) (string, error) {
	if text == "" {
		return "", fmt.Errorf("barcode text must not be empty")
	}
	if width <= 0 {
		width = 300
	}
	if height <= 0 {
		height = 80
	}

	code, err := code128.Encode(text)
	if err != nil {
		return "", fmt.Errorf("encode code128: %w", err)
	}
	scaled, err := barcode.Scale(code, width, height)
	if err != nil {
		return "", fmt.Errorf("scale code128: %w", err)
	}

	return encodePNG(scaled)
}

func encodePNG(img barcode.Barcode) (string, error) {
	buf := &bytes.Buffer{}
	if err := png.Encode(buf, img); err != nil {
		return "", fmt.Errorf("render png: %w", err)
	}
	return pngPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
