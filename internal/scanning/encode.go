package scanning

import (
	"encoding/base64"
	"fmt"
)

// DefaultMaxImageBytes bounds the raw image size accepted by the encoder (20MB)
const DefaultMaxImageBytes = 20 << 20

// Encoder turns raw image bytes into a transport-safe string
type Encoder struct {
	MaxBytes int
}

// NewEncoder creates an Encoder with the default size bound
func NewEncoder() *Encoder {
	return &Encoder{MaxBytes: DefaultMaxImageBytes}
}

// Encode base64-encodes the image data
func (e *Encoder) Encode(data []byte) (string, error) {
	if len(data) == 0 {
		return "", &EncodingError{Reason: "image data is empty"}
	}
	maxBytes := e.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxImageBytes
	}
	if len(data) > maxBytes {
		return "", &EncodingError{Reason: fmt.Sprintf("image is %d bytes, maximum is %d", len(data), maxBytes)}
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
