package domain

import "fmt"

// SearchFilter narrows retrieval to a candidate subset. Zero value means no
// filtering.
type SearchFilter struct {
	Status CandidateStatus `json:"status,omitempty"`
	Skill  string          `json:"skill,omitempty"`
}

// Hit is one result from a single retrieval branch, vector or lexical.
type Hit struct {
	CandidateID string  `json:"candidate_id"`
	Score       float64 `json:"score"`
	Snippet     string  `json:"snippet,omitempty"`
}

// RankedCandidate is a fused retrieval result. A rank of zero means the
// candidate was absent from that branch.
type RankedCandidate struct {
	CandidateID string  `json:"candidate_id"`
	FusedScore  float64 `json:"fused_score"`
	VectorRank  int     `json:"vector_rank,omitempty"`
	LexicalRank int     `json:"lexical_rank,omitempty"`
	Snippet     string  `json:"snippet,omitempty"`
}

// FusionParams tunes reciprocal rank fusion. Weights apply to the vector and
// lexical branches and must sum to one.
type FusionParams struct {
	VectorWeight  float64 `json:"vector_weight" yaml:"vector_weight"`
	LexicalWeight float64 `json:"lexical_weight" yaml:"lexical_weight"`
	K             int     `json:"k" yaml:"k"`
}

func DefaultFusionParams() FusionParams {
	return FusionParams{VectorWeight: 0.7, LexicalWeight: 0.3, K: 60}
}

func (p FusionParams) Validate() error {
	if p.K <= 0 {
		return WrapError(ErrInvalidInput, "fusion params", fmt.Errorf("k must be positive, got %d", p.K))
	}
	if p.VectorWeight < 0 || p.LexicalWeight < 0 {
		return WrapError(ErrInvalidInput, "fusion params", fmt.Errorf("weights must be non-negative"))
	}
	const eps = 1e-9
	if sum := p.VectorWeight + p.LexicalWeight; sum < 1-eps || sum > 1+eps {
		return WrapError(ErrInvalidInput, "fusion params", fmt.Errorf("weights must sum to 1, got %g", sum))
	}
	return nil
}

// Answer is the agent's final response. Degraded marks answers produced after
// the round ceiling without ever reaching an accept verdict.
type Answer struct {
	Text     string            `json:"text"`
	Sources  []RankedCandidate `json:"sources"`
	Verdict  Verdict           `json:"verdict"`
	Degraded bool              `json:"degraded"`
	Rounds   int               `json:"rounds"`
}
