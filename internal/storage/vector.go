// internal/storage/vector.go
package storage

import "github.com/pgvector/pgvector-go"

// Embeddings are stored as float32 pgvector columns and compared in float64.
func toFloat64(v pgvector.Vector) []float64 {
	src := v.Slice()
	if len(src) == 0 {
		return nil
	}
	out := make([]float64, len(src))
	for i, f := range src {
		out[i] = float64(f)
	}
	return out
}

func toVector(v []float64) pgvector.Vector {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return pgvector.NewVector(out)
}
