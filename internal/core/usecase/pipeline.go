package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"time"

	"github.com/talentsift/talentsift/internal/core/domain"
	"github.com/talentsift/talentsift/internal/core/ports"
)

// PipelineConfig bounds stage retries. A stage that keeps failing after
// MaxStageAttempts moves the run to the failed state with the stage recorded.
type PipelineConfig struct {
	MaxStageAttempts int
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
	Multiplier       float64
}

func (c PipelineConfig) normalize() PipelineConfig {
	if c.MaxStageAttempts <= 0 {
		c.MaxStageAttempts = 3
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 100 * time.Millisecond
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = 400 * time.Millisecond
	}
	if c.Multiplier < 1.0 {
		c.Multiplier = 2.0
	}
	return c
}

type PipelineUseCase struct {
	runs       ports.RunRepository
	candidates ports.CandidateRepository
	storage    ports.ObjectStorage
	extractor  ports.TextExtractor
	fields     ports.FieldExtractor
	judge      ports.Judge
	embedder   ports.Embedder
	vectors    ports.VectorStore
	lexical    ports.LexicalIndex
	cache      ports.ResultCache
	queue      ports.MessageQueue
	contract   domain.EmbeddingContract
	cfg        PipelineConfig
	locks      *keyedMutex
	logger     *slog.Logger

	stageObserver func(stage domain.Stage)
}

func NewPipelineUseCase(
	runs ports.RunRepository,
	candidates ports.CandidateRepository,
	storage ports.ObjectStorage,
	extractor ports.TextExtractor,
	fields ports.FieldExtractor,
	judge ports.Judge,
	embedder ports.Embedder,
	vectors ports.VectorStore,
	lexical ports.LexicalIndex,
	cache ports.ResultCache,
	queue ports.MessageQueue,
	contract domain.EmbeddingContract,
	cfg PipelineConfig,
	logger *slog.Logger,
) *PipelineUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &PipelineUseCase{
		runs:       runs,
		candidates: candidates,
		storage:    storage,
		extractor:  extractor,
		fields:     fields,
		judge:      judge,
		embedder:   embedder,
		vectors:    vectors,
		lexical:    lexical,
		cache:      cache,
		queue:      queue,
		contract:   contract,
		cfg:        cfg.normalize(),
		locks:      newKeyedMutex(),
		logger:     logger,
	}
}

// SetStageObserver installs a per-attempt callback. Call before serving.
func (uc *PipelineUseCase) SetStageObserver(fn func(stage domain.Stage)) {
	uc.stageObserver = fn
}

// pipelineState carries one run's working set between stages.
type pipelineState struct {
	run         *domain.PipelineRun
	candidate   *domain.Candidate
	images      []domain.ExtractedImage
	duplicateOf string
}

// ProcessRun drives a run through parse_extract, filter, store and cache in
// order. Each stage gets a bounded number of attempts; duplicate content
// short-circuits the run to done. Work for one candidate is serialized, other
// candidates proceed in parallel.
func (uc *PipelineUseCase) ProcessRun(ctx context.Context, runID string) error {
	run, err := uc.runs.GetByID(ctx, runID)
	if err != nil {
		return fmt.Errorf("fetch run: %w", err)
	}
	if run.State != domain.RunRunning {
		return nil
	}

	unlock := uc.locks.Lock(run.CandidateID)
	defer unlock()

	candidate, err := uc.candidates.GetByID(ctx, run.CandidateID)
	if err != nil {
		return fmt.Errorf("fetch candidate: %w", err)
	}

	st := &pipelineState{run: run, candidate: candidate}
	for {
		stage := run.Stage
		if err := uc.executeStage(ctx, st); err != nil {
			if domain.IsKind(err, domain.ErrDuplicate) {
				return uc.finishDuplicate(ctx, st)
			}
			return uc.failRun(ctx, st, stage, err)
		}

		next, ok := domain.NextStage(stage)
		if !ok {
			return uc.finishRun(ctx, st)
		}
		run.Stage = next
		run.Attempts = 0
		if err := uc.runs.Update(ctx, run); err != nil {
			return fmt.Errorf("advance run to %s: %w", next, err)
		}
	}
}

// executeStage retries one stage up to the attempt ceiling, persisting the
// attempt counter so a crash mid-stage is visible. Only temporary failures
// retry; contract violations and invalid input fail straight away.
func (uc *PipelineUseCase) executeStage(ctx context.Context, st *pipelineState) error {
	backoff := uc.cfg.InitialBackoff
	var lastErr error

	for st.run.Attempts < uc.cfg.MaxStageAttempts {
		if err := ctx.Err(); err != nil {
			return domain.WrapError(domain.ErrTemporary, string(st.run.Stage), err)
		}

		st.run.Attempts++
		if uc.stageObserver != nil {
			uc.stageObserver(st.run.Stage)
		}
		if err := uc.runs.Update(ctx, st.run); err != nil {
			return fmt.Errorf("persist attempt: %w", err)
		}

		lastErr = uc.runStage(ctx, st)
		if lastErr == nil {
			return nil
		}
		if !retryableStageError(lastErr) {
			return lastErr
		}
		if st.run.Attempts >= uc.cfg.MaxStageAttempts {
			break
		}

		uc.logger.Warn("stage_retry",
			"run_id", st.run.ID,
			"candidate_id", st.candidate.ID,
			"stage", st.run.Stage,
			"attempt", st.run.Attempts,
			"error", lastErr,
		)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return domain.WrapError(domain.ErrTemporary, string(st.run.Stage), ctx.Err())
		case <-timer.C:
		}
		backoff = time.Duration(float64(backoff) * uc.cfg.Multiplier)
		if backoff > uc.cfg.MaxBackoff {
			backoff = uc.cfg.MaxBackoff
		}
	}

	return lastErr
}

func retryableStageError(err error) bool {
	if domain.IsKind(err, domain.ErrContractViolation) ||
		domain.IsKind(err, domain.ErrInvalidInput) ||
		domain.IsKind(err, domain.ErrDuplicate) {
		return false
	}
	return domain.IsKind(err, domain.ErrTemporary) || errors.Is(err, context.DeadlineExceeded)
}

func (uc *PipelineUseCase) runStage(ctx context.Context, st *pipelineState) error {
	switch st.run.Stage {
	case domain.StageParseExtract:
		return uc.stageParseExtract(ctx, st)
	case domain.StageFilter:
		return uc.stageFilter(ctx, st)
	case domain.StageStore:
		return uc.stageStore(ctx, st)
	case domain.StageCache:
		return uc.stageCache(ctx, st)
	default:
		return domain.WrapError(domain.ErrInvalidInput, "run stage", fmt.Errorf("unknown stage %q", st.run.Stage))
	}
}

func (uc *PipelineUseCase) stageParseExtract(ctx context.Context, st *pipelineState) error {
	body, err := uc.storage.Open(ctx, st.candidate.ResumeKey)
	if err != nil {
		return fmt.Errorf("open stored resume: %w", err)
	}
	defer body.Close()

	extraction, err := uc.extractor.Extract(ctx, st.candidate.Filename, st.candidate.MimeType, body)
	if err != nil {
		return fmt.Errorf("extract resume text: %w", err)
	}
	text := extraction.Text
	if text == "" {
		return domain.WrapError(domain.ErrInvalidInput, "extract resume text", errors.New("empty extracted text"))
	}

	hash := domain.ContentHash(text)
	existing, err := uc.candidates.FindByContentHash(ctx, hash)
	if err != nil && !domain.IsKind(err, domain.ErrNotFound) {
		return fmt.Errorf("dedup lookup: %w", err)
	}
	if existing != nil && existing.ID != st.candidate.ID && existing.Status != domain.StatusFailed {
		st.duplicateOf = existing.ID
		return domain.WrapError(domain.ErrDuplicate, "dedup lookup",
			fmt.Errorf("content already ingested as %s", existing.ID))
	}

	fields, err := uc.fields.ExtractFields(ctx, text)
	if err != nil {
		return fmt.Errorf("extract structured fields: %w", err)
	}
	if len(fields) == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "extract structured fields", errors.New("no fields extracted"))
	}

	st.candidate.RawText = text
	st.candidate.ContentHash = hash
	st.candidate.Fields = fields
	st.images = extraction.Images
	return nil
}

func (uc *PipelineUseCase) stageFilter(ctx context.Context, st *pipelineState) error {
	qualified := st.run.Condition.Evaluate(st.candidate.Fields)

	justification, err := uc.judge.Justify(ctx, st.candidate.Fields, st.run.Condition, qualified)
	if err != nil {
		return fmt.Errorf("justify verdict: %w", err)
	}

	if qualified {
		st.candidate.Status = domain.StatusQualified
	} else {
		st.candidate.Status = domain.StatusUnqualified
	}
	st.candidate.Justification = justification
	return nil
}

// stageStore persists the candidate to the relational store and both indexes.
// Every write is idempotent per candidate, so the stage retries as a whole.
func (uc *PipelineUseCase) stageStore(ctx context.Context, st *pipelineState) error {
	vectors, err := uc.embedder.Embed(ctx, uc.contract, []string{st.candidate.RawText})
	if err != nil {
		return fmt.Errorf("embed resume text: %w", err)
	}
	if len(vectors) != 1 {
		return domain.WrapError(domain.ErrInvalidInput, "embed resume text",
			fmt.Errorf("expected 1 vector, got %d", len(vectors)))
	}

	imageKeys, err := uc.storeImages(ctx, st)
	if err != nil {
		return fmt.Errorf("store resume images: %w", err)
	}
	st.candidate.ImageKeys = imageKeys

	st.candidate.UpdatedAt = time.Now().UTC()
	if err := uc.candidates.Upsert(ctx, st.candidate); err != nil {
		if domain.IsKind(err, domain.ErrDuplicate) {
			// Lost a concurrent race on content hash.
			if existing, lookupErr := uc.candidates.FindByContentHash(ctx, st.candidate.ContentHash); lookupErr == nil && existing.ID != st.candidate.ID {
				st.duplicateOf = existing.ID
			}
			return err
		}
		return fmt.Errorf("upsert candidate: %w", err)
	}

	if err := uc.vectors.Upsert(ctx, uc.contract, st.candidate, vectors[0]); err != nil {
		return fmt.Errorf("upsert candidate vector: %w", err)
	}
	if err := uc.lexical.Index(ctx, st.candidate); err != nil {
		return fmt.Errorf("index candidate lexically: %w", err)
	}
	return nil
}

// storeImages writes extracted images under deterministic keys so a stage
// retry overwrites rather than duplicates. Images only exist in memory for
// the run that extracted them; a run resumed after a crash redoes extraction.
func (uc *PipelineUseCase) storeImages(ctx context.Context, st *pipelineState) ([]string, error) {
	if len(st.images) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(st.images))
	for i, img := range st.images {
		key := fmt.Sprintf("candidates/%s/images/%d%s", st.candidate.ID, i+1, img.Extension)
		contentType := mime.TypeByExtension(img.Extension)
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		if err := uc.storage.Save(ctx, key, bytes.NewReader(img.Data), int64(len(img.Data)), contentType); err != nil {
			return nil, fmt.Errorf("save image %s: %w", key, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// stageCache is best-effort: cache or notification failures are logged and
// the run still completes.
func (uc *PipelineUseCase) stageCache(ctx context.Context, st *pipelineState) error {
	if err := uc.cache.SetCandidate(ctx, st.candidate); err != nil {
		uc.logger.Warn("cache_candidate_failed", "candidate_id", st.candidate.ID, "error", err)
	}
	if err := uc.cache.SetRun(ctx, st.run); err != nil {
		uc.logger.Warn("cache_run_failed", "run_id", st.run.ID, "error", err)
	}
	if err := uc.queue.PublishRunProgress(ctx, *st.run); err != nil {
		uc.logger.Warn("publish_run_progress_failed", "run_id", st.run.ID, "error", err)
	}
	return nil
}

func (uc *PipelineUseCase) finishRun(ctx context.Context, st *pipelineState) error {
	st.run.State = domain.RunDone
	st.run.FinishedAt = time.Now().UTC()
	if err := uc.runs.Update(ctx, st.run); err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

func (uc *PipelineUseCase) finishDuplicate(ctx context.Context, st *pipelineState) error {
	st.candidate.Status = domain.StatusDuplicate
	st.candidate.DuplicateOf = st.duplicateOf
	st.candidate.UpdatedAt = time.Now().UTC()
	if err := uc.candidates.Upsert(ctx, st.candidate); err != nil {
		return fmt.Errorf("mark candidate duplicate: %w", err)
	}

	st.run.State = domain.RunDone
	st.run.FinishedAt = time.Now().UTC()
	if err := uc.runs.Update(ctx, st.run); err != nil {
		return fmt.Errorf("finish duplicate run: %w", err)
	}

	uc.logger.Info("duplicate_resume_skipped",
		"run_id", st.run.ID,
		"candidate_id", st.candidate.ID,
		"duplicate_of", st.duplicateOf,
	)
	return nil
}

func (uc *PipelineUseCase) failRun(ctx context.Context, st *pipelineState, stage domain.Stage, cause error) error {
	st.run.State = domain.RunFailed
	st.run.ErrorStage = stage
	st.run.LastError = cause.Error()
	st.run.FinishedAt = time.Now().UTC()
	if err := uc.runs.Update(ctx, st.run); err != nil {
		return fmt.Errorf("%w; persist failed run: %v", cause, err)
	}
	if err := uc.candidates.UpdateStatus(ctx, st.candidate.ID, domain.StatusFailed, ""); err != nil {
		return fmt.Errorf("%w; mark candidate failed: %v", cause, err)
	}
	return cause
}
