// Package quantization implements vector compression for index footprint
// reduction: per-dimension scalar quantization and product quantization.
package quantization

import "errors"

// ErrNotTrained is returned by Encode/Decode before Train has run.
var ErrNotTrained = errors.New("quantizer not trained")

// Stats describes a quantizer's configuration and compression ratio.
type Stats struct {
	Type             string  `json:"type"`
	Dimensions       int     `json:"dimensions"`
	CompressionRatio float32 `json:"compression_ratio"`
	Trained          bool    `json:"trained"`
}

// Quantizer is the contract of spec §4.3: train from a sample, then
// encode/decode vectors to/from a compact byte code.
type Quantizer interface {
	Train(samples [][]float32) error
	Encode(vector []float32) ([]byte, error)
	Decode(code []byte) ([]float32, error)
	Dimensions() int
	Stats() Stats
	Close() error
}
