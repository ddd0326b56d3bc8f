package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/talentsift/talentsift/internal/core/domain"
	"github.com/talentsift/talentsift/internal/core/ports"
)

const defaultSearchLimit = 10

type SearchUseCase struct {
	embedder      ports.Embedder
	vectors       ports.VectorStore
	lexical       ports.LexicalIndex
	contract      domain.EmbeddingContract
	branchTimeout time.Duration
	logger        *slog.Logger
}

func NewSearchUseCase(
	embedder ports.Embedder,
	vectors ports.VectorStore,
	lexical ports.LexicalIndex,
	contract domain.EmbeddingContract,
	branchTimeout time.Duration,
	logger *slog.Logger,
) *SearchUseCase {
	if branchTimeout <= 0 {
		branchTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SearchUseCase{
		embedder:      embedder,
		vectors:       vectors,
		lexical:       lexical,
		contract:      contract,
		branchTimeout: branchTimeout,
		logger:        logger,
	}
}

// Search runs the vector and lexical branches concurrently and fuses them
// with weighted reciprocal rank fusion. A branch that fails or exceeds its
// timeout is dropped and the other branch carries the ranking alone; only
// both branches failing is an error.
func (uc *SearchUseCase) Search(
	ctx context.Context,
	query string,
	limit int,
	params domain.FusionParams,
) ([]domain.RankedCandidate, error) {
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search", fmt.Errorf("empty query"))
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if params.K == 0 && params.VectorWeight == 0 && params.LexicalWeight == 0 {
		params = domain.DefaultFusionParams()
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	vector, lexical, err := uc.retrieveBranches(ctx, query, limit, domain.SearchFilter{}, domain.StrategyHybrid)
	if err != nil {
		return nil, err
	}

	return trimRanked(fuseWeightedRRF(vector, lexical, params), limit), nil
}

// retrieveBranches fans out per strategy and collects whatever branches
// survive. Over-fetching per branch keeps fusion stable at the cut line.
func (uc *SearchUseCase) retrieveBranches(
	ctx context.Context,
	query string,
	limit int,
	filter domain.SearchFilter,
	strategy domain.Strategy,
) (vector, lexical []domain.Hit, err error) {
	fetch := limit * 2
	if fetch < defaultSearchLimit {
		fetch = defaultSearchLimit
	}

	type branchResult struct {
		hits []domain.Hit
		err  error
	}

	var vecCh, lexCh chan branchResult

	if strategy == domain.StrategyHybrid || strategy == domain.StrategyVectorOnly {
		vecCh = make(chan branchResult, 1)
		go func() {
			branchCtx, cancel := context.WithTimeout(ctx, uc.branchTimeout)
			defer cancel()
			hits, err := uc.searchVector(branchCtx, query, fetch, filter)
			vecCh <- branchResult{hits: hits, err: err}
		}()
	}
	if strategy == domain.StrategyHybrid || strategy == domain.StrategyLexicalOnly {
		lexCh = make(chan branchResult, 1)
		go func() {
			branchCtx, cancel := context.WithTimeout(ctx, uc.branchTimeout)
			defer cancel()
			hits, err := uc.lexical.Query(branchCtx, query, fetch, filter)
			lexCh <- branchResult{hits: hits, err: err}
		}()
	}

	var vecErr, lexErr error
	if vecCh != nil {
		res := <-vecCh
		vector, vecErr = res.hits, res.err
		if vecErr != nil {
			uc.logger.Warn("vector_branch_degraded", "error", vecErr)
			vector = nil
		}
	}
	if lexCh != nil {
		res := <-lexCh
		lexical, lexErr = res.hits, res.err
		if lexErr != nil {
			uc.logger.Warn("lexical_branch_degraded", "error", lexErr)
			lexical = nil
		}
	}

	switch strategy {
	case domain.StrategyVectorOnly:
		if vecErr != nil {
			return nil, nil, fmt.Errorf("vector branch: %w", vecErr)
		}
	case domain.StrategyLexicalOnly:
		if lexErr != nil {
			return nil, nil, fmt.Errorf("lexical branch: %w", lexErr)
		}
	default:
		if vecErr != nil && lexErr != nil {
			return nil, nil, domain.WrapError(domain.ErrTemporary, "search",
				fmt.Errorf("both branches failed: vector: %v; lexical: %v", vecErr, lexErr))
		}
	}

	return vector, lexical, nil
}

func (uc *SearchUseCase) searchVector(ctx context.Context, query string, limit int, filter domain.SearchFilter) ([]domain.Hit, error) {
	queryVector, err := uc.embedder.EmbedQuery(ctx, uc.contract, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := uc.vectors.Query(ctx, uc.contract, queryVector, limit, filter)
	if err != nil {
		return nil, fmt.Errorf("query vector index: %w", err)
	}
	return hits, nil
}
