package usecase

import (
	"sort"

	"github.com/talentsift/talentsift/internal/core/domain"
)

type fusedCandidate struct {
	vectorRank  int
	lexicalRank int
	snippet     string
	score       float64
}

// fuseWeightedRRF merges the two retrieval branches with weighted reciprocal
// rank fusion. Each branch contributes weight/(k+rank) with 1-based ranks; a
// candidate absent from a branch contributes zero for it. Output is ordered
// by descending fused score with ties broken by ascending candidate ID, so
// the same inputs always produce the same ranking.
func fuseWeightedRRF(vector, lexical []domain.Hit, params domain.FusionParams) []domain.RankedCandidate {
	if params.K <= 0 {
		params = domain.DefaultFusionParams()
	}

	acc := make(map[string]fusedCandidate, len(vector)+len(lexical))
	for i, hit := range vector {
		rank := i + 1
		c := acc[hit.CandidateID]
		c.vectorRank = rank
		c.score += params.VectorWeight / float64(params.K+rank)
		if c.snippet == "" {
			c.snippet = hit.Snippet
		}
		acc[hit.CandidateID] = c
	}
	for i, hit := range lexical {
		rank := i + 1
		c := acc[hit.CandidateID]
		c.lexicalRank = rank
		c.score += params.LexicalWeight / float64(params.K+rank)
		if c.snippet == "" {
			c.snippet = hit.Snippet
		}
		acc[hit.CandidateID] = c
	}

	out := make([]domain.RankedCandidate, 0, len(acc))
	for id, c := range acc {
		out = append(out, domain.RankedCandidate{
			CandidateID: id,
			FusedScore:  c.score,
			VectorRank:  c.vectorRank,
			LexicalRank: c.lexicalRank,
			Snippet:     c.snippet,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FusedScore != out[j].FusedScore {
			return out[i].FusedScore > out[j].FusedScore
		}
		return out[i].CandidateID < out[j].CandidateID
	})

	return out
}

func trimRanked(ranked []domain.RankedCandidate, limit int) []domain.RankedCandidate {
	if limit <= 0 || len(ranked) <= limit {
		return ranked
	}
	return ranked[:limit]
}
