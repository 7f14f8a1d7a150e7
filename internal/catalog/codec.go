package catalog

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// encodeBand packs a band's pixels for storage as a blob.
func encodeBand(pixels []float64) ([]byte, error) {
	var buf bytes.Buffer
	if err := msgpack.NewEncoder(&buf).Encode(pixels); err != nil {
		return nil, fmt.Errorf("encoding band: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeBand(blob []byte) ([]float64, error) {
	var pixels []float64
	if err := msgpack.Unmarshal(blob, &pixels); err != nil {
		return nil, fmt.Errorf("decoding band: %w", err)
	}
	return pixels, nil
}
