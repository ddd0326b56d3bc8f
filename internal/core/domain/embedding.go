package domain

import (
	"fmt"
	"math"
)

// EmbeddingContract pins the embedding model, its output dimension and the
// normalization convention. One value is built at startup and passed to every
// embed, index write and query; a vector that disagrees with it is rejected
// before it reaches the index.
type EmbeddingContract struct {
	ModelID   string `json:"model_id" yaml:"model_id"`
	Dimension int    `json:"dimension" yaml:"dimension"`
	Normalize bool   `json:"normalize" yaml:"normalize"`
}

func (c EmbeddingContract) Validate() error {
	if c.ModelID == "" {
		return WrapError(ErrInvalidInput, "embedding contract", fmt.Errorf("model id is empty"))
	}
	if c.Dimension <= 0 {
		return WrapError(ErrInvalidInput, "embedding contract", fmt.Errorf("dimension %d", c.Dimension))
	}
	return nil
}

// Check rejects vectors whose length disagrees with the contract.
func (c EmbeddingContract) Check(vec []float32) error {
	if len(vec) != c.Dimension {
		return WrapError(ErrContractViolation, "embedding contract",
			fmt.Errorf("vector dimension got=%d want=%d model=%s", len(vec), c.Dimension, c.ModelID))
	}
	return nil
}

// Apply returns vec adjusted to the contract's normalization convention.
// The input slice is never mutated.
func (c EmbeddingContract) Apply(vec []float32) []float32 {
	if !c.Normalize {
		return vec
	}
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}
