package embedding

import (
	"context"
	"errors"
	"math"
)

// ErrNoOutput is returned when the inference server produced no vector for an
// input it accepted.
var ErrNoOutput = errors.New("embedding produced no output")

type Client interface {
	// GetEmbeddings returns one vector per input text, in input order.
	GetEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
	// ModelVersion identifies the embedding model serving this client.
	// Resolved once and reused for the process lifetime.
	ModelVersion(ctx context.Context) (string, error)
}

// CosineSimilarity computes the cosine similarity of two vectors.
// Returns 0 for mismatched lengths or zero vectors.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := 0; i < len(a); i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
