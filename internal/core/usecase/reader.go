package usecase

import (
	"context"
	"fmt"

	"github.com/talentsift/talentsift/internal/core/domain"
	"github.com/talentsift/talentsift/internal/core/ports"
)

// ReaderUseCase serves candidate and run lookups, trying the result cache
// before the relational store. Cache misses and errors fall through silently.
type ReaderUseCase struct {
	candidates ports.CandidateRepository
	runs       ports.RunRepository
	cache      ports.ResultCache
}

func NewReaderUseCase(candidates ports.CandidateRepository, runs ports.RunRepository, cache ports.ResultCache) *ReaderUseCase {
	return &ReaderUseCase{candidates: candidates, runs: runs, cache: cache}
}

func (uc *ReaderUseCase) GetCandidate(ctx context.Context, id string) (*domain.Candidate, error) {
	if id == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get candidate", fmt.Errorf("empty id"))
	}
	if uc.cache != nil {
		if c, err := uc.cache.GetCandidate(ctx, id); err == nil && c != nil {
			return c, nil
		}
	}
	return uc.candidates.GetByID(ctx, id)
}

func (uc *ReaderUseCase) GetRun(ctx context.Context, id string) (*domain.PipelineRun, error) {
	if id == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get run", fmt.Errorf("empty id"))
	}
	if uc.cache != nil {
		if run, err := uc.cache.GetRun(ctx, id); err == nil && run != nil {
			// Cached terminal states are authoritative; running state may be
			// stale, fall through to the store.
			if run.State != domain.RunRunning {
				return run, nil
			}
		}
	}
	return uc.runs.GetByID(ctx, id)
}
