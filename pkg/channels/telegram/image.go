package telegram

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
)

// maxDownloadBytes is the Bot API's download limit.
const maxDownloadBytes = 20 * 1024 * 1024

var errTooLarge = fmt.Errorf("file exceeds %d bytes", maxDownloadBytes)

func readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxDownloadBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxDownloadBytes {
		return nil, errTooLarge
	}
	return data, nil
}

// DecodeImage decodes JPEG or PNG data.
func DecodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}
