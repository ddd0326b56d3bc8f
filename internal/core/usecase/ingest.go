package usecase

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/talentsift/talentsift/internal/core/domain"
	"github.com/talentsift/talentsift/internal/core/ports"
)

type IngestResumeUseCase struct {
	candidates ports.CandidateRepository
	runs       ports.RunRepository
	storage    ports.ObjectStorage
	queue      ports.MessageQueue
}

func NewIngestResumeUseCase(
	candidates ports.CandidateRepository,
	runs ports.RunRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
) *IngestResumeUseCase {
	return &IngestResumeUseCase{
		candidates: candidates,
		runs:       runs,
		storage:    storage,
		queue:      queue,
	}
}

// Upload stores the raw resume, creates the candidate shell and a pipeline
// run, and hands the run to the worker queue. Extraction and filtering happen
// asynchronously.
func (uc *IngestResumeUseCase) Upload(
	ctx context.Context,
	filename, mimeType string,
	body io.Reader,
	size int64,
	cond domain.Condition,
) (*domain.PipelineRun, error) {
	if err := cond.Validate(); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	resumeKey := fmt.Sprintf("resumes/%s_%s", id, sanitizeFilename(filename))
	now := time.Now().UTC()

	if err := uc.storage.Save(ctx, resumeKey, body, size, mimeType); err != nil {
		return nil, fmt.Errorf("save resume to object storage: %w", err)
	}

	candidate := &domain.Candidate{
		ID:        id,
		Filename:  filename,
		MimeType:  mimeType,
		ResumeKey: resumeKey,
		Status:    domain.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := uc.candidates.Create(ctx, candidate); err != nil {
		return nil, fmt.Errorf("create candidate: %w", err)
	}

	run := &domain.PipelineRun{
		ID:          uuid.NewString(),
		CandidateID: id,
		Stage:       domain.StageParseExtract,
		State:       domain.RunRunning,
		Condition:   cond,
		StartedAt:   now,
	}
	if err := uc.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("create pipeline run: %w", err)
	}

	if err := uc.queue.PublishResumeIngested(ctx, run.ID); err != nil {
		return nil, fmt.Errorf("publish ingestion event: %w", err)
	}

	return run, nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	// filepath.Base maps "" to "." and keeps "..", neither is a filename.
	if base == "." || base == ".." {
		base = ""
	}
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" {
		return "resume.bin"
	}
	return base
}
