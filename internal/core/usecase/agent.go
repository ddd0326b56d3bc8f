package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/talentsift/talentsift/internal/core/domain"
	"github.com/talentsift/talentsift/internal/core/ports"
)

// AgentLimits bounds the agentic query loop. The loop never runs more than
// MaxRounds retrieval rounds and always produces an answer, degraded if the
// quality bar was never met.
type AgentLimits struct {
	MaxRounds    int
	RoundTimeout time.Duration
	TopK         int
	MinResults   int
	MinTopScore  float64
}

func (l AgentLimits) normalize() AgentLimits {
	if l.MaxRounds <= 0 {
		l.MaxRounds = 3
	}
	if l.RoundTimeout <= 0 {
		l.RoundTimeout = 20 * time.Second
	}
	if l.TopK <= 0 {
		l.TopK = 5
	}
	if l.MinResults <= 0 {
		l.MinResults = 2
	}
	if l.MinTopScore <= 0 {
		l.MinTopScore = 0.005
	}
	return l
}

type AgentUseCase struct {
	search     *SearchUseCase
	candidates ports.CandidateRepository
	generator  ports.AnswerGenerator
	params     domain.FusionParams
	limits     AgentLimits
	logger     *slog.Logger
}

func NewAgentUseCase(
	search *SearchUseCase,
	candidates ports.CandidateRepository,
	generator ports.AnswerGenerator,
	params domain.FusionParams,
	limits AgentLimits,
	logger *slog.Logger,
) *AgentUseCase {
	if params.K == 0 {
		params = domain.DefaultFusionParams()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AgentUseCase{
		search:     search,
		candidates: candidates,
		generator:  generator,
		params:     params,
		limits:     limits.normalize(),
		logger:     logger,
	}
}

// strategyForRound rotates retrieval strategy when a round's results miss the
// quality bar: hybrid first, then each branch alone.
func strategyForRound(round int) domain.Strategy {
	switch (round - 1) % 3 {
	case 1:
		return domain.StrategyVectorOnly
	case 2:
		return domain.StrategyLexicalOnly
	default:
		return domain.StrategyHybrid
	}
}

// roundResult is one round's merged tool output: retrieval ranking, the
// structured listing of qualified candidates, and corpus stats.
type roundResult struct {
	ranked     []domain.RankedCandidate
	structured []domain.RankedCandidate
	stats      domain.CorpusStats
}

// Ask answers a question about the candidate corpus. Each round retrieves
// with the round's strategy while corpus stats and a structured listing of
// qualified candidates are gathered concurrently; a quality verdict decides
// between answering and retrying. Exhausting the round ceiling still yields
// an answer, marked degraded and backfilled from the structured listing when
// retrieval came up thin.
func (uc *AgentUseCase) Ask(ctx context.Context, question string) (*domain.Answer, error) {
	if question == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ask", fmt.Errorf("empty question"))
	}

	var (
		best       []domain.RankedCandidate
		bestScore  float64
		structured []domain.RankedCandidate
		stats      domain.CorpusStats
		rounds     int
	)

	for round := 1; round <= uc.limits.MaxRounds; round++ {
		rounds = round
		plan := domain.QueryPlan{Query: question, Round: round, Strategy: strategyForRound(round)}

		roundCtx, cancel := context.WithTimeout(ctx, uc.limits.RoundTimeout)
		res, err := uc.runRound(roundCtx, plan)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			uc.logger.Warn("agent_round_failed", "round", round, "strategy", plan.Strategy, "error", err)
			continue
		}
		if res.stats.Total > 0 {
			stats = res.stats
		}
		if len(res.structured) > 0 {
			structured = res.structured
		}

		plan.Verdict = uc.assess(res.ranked)
		uc.logger.Info("agent_round",
			"round", round,
			"strategy", plan.Strategy,
			"results", len(res.ranked),
			"verdict", plan.Verdict,
		)

		if len(res.ranked) > 0 && (best == nil || res.ranked[0].FusedScore > bestScore) {
			best = res.ranked
			bestScore = res.ranked[0].FusedScore
		}
		if plan.Verdict == domain.VerdictAccept {
			return uc.answer(ctx, question, res.ranked, stats, domain.VerdictAccept, round)
		}
	}

	// Round ceiling reached: answer from the best round seen, padded with
	// structured listing entries, rather than returning nothing.
	return uc.answer(ctx, question, backfillSources(best, structured, uc.limits.TopK), stats, domain.VerdictExhausted, rounds)
}

func (uc *AgentUseCase) runRound(ctx context.Context, plan domain.QueryPlan) (roundResult, error) {
	statsCh := make(chan domain.CorpusStats, 1)
	go func() {
		stats, err := uc.candidates.Stats(ctx)
		if err != nil {
			uc.logger.Warn("corpus_stats_failed", "error", err)
			statsCh <- domain.CorpusStats{}
			return
		}
		statsCh <- stats
	}()

	structuredCh := make(chan []domain.RankedCandidate, 1)
	go func() {
		listed, err := uc.candidates.List(ctx, domain.SearchFilter{Status: domain.StatusQualified}, uc.limits.TopK)
		if err != nil {
			uc.logger.Warn("structured_lookup_failed", "error", err)
			structuredCh <- nil
			return
		}
		structuredCh <- asStructuredSources(listed)
	}()

	vector, lexical, err := uc.search.retrieveBranches(ctx, plan.Query, uc.limits.TopK, domain.SearchFilter{}, plan.Strategy)
	res := roundResult{stats: <-statsCh, structured: <-structuredCh}
	if err != nil {
		return res, err
	}

	res.ranked = trimRanked(fuseWeightedRRF(vector, lexical, uc.params), uc.limits.TopK)
	return res, nil
}

// asStructuredSources converts listed candidates into zero-score sources.
// The justification stands in for a retrieval snippet.
func asStructuredSources(listed []domain.Candidate) []domain.RankedCandidate {
	out := make([]domain.RankedCandidate, 0, len(listed))
	for _, c := range listed {
		snippet := c.Justification
		if snippet == "" {
			snippet = c.Filename
		}
		out = append(out, domain.RankedCandidate{CandidateID: c.ID, Snippet: snippet})
	}
	return out
}

// backfillSources pads thin retrieval results with structured listing
// entries, skipping candidates retrieval already ranked.
func backfillSources(ranked, structured []domain.RankedCandidate, limit int) []domain.RankedCandidate {
	if len(ranked) >= limit || len(structured) == 0 {
		return ranked
	}
	seen := make(map[string]bool, len(ranked))
	for _, r := range ranked {
		seen[r.CandidateID] = true
	}
	out := ranked
	for _, s := range structured {
		if len(out) >= limit {
			break
		}
		if seen[s.CandidateID] {
			continue
		}
		out = append(out, s)
	}
	return out
}

func (uc *AgentUseCase) assess(ranked []domain.RankedCandidate) domain.Verdict {
	if len(ranked) >= uc.limits.MinResults && ranked[0].FusedScore >= uc.limits.MinTopScore {
		return domain.VerdictAccept
	}
	return domain.VerdictRetry
}

func (uc *AgentUseCase) answer(
	ctx context.Context,
	question string,
	sources []domain.RankedCandidate,
	stats domain.CorpusStats,
	verdict domain.Verdict,
	rounds int,
) (*domain.Answer, error) {
	degraded := verdict == domain.VerdictExhausted
	text, err := uc.generator.GenerateAnswer(ctx, question, sources, stats, degraded)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}
	return &domain.Answer{
		Text:     text,
		Sources:  sources,
		Verdict:  verdict,
		Degraded: degraded,
		Rounds:   rounds,
	}, nil
}
