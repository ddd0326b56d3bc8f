package ports

import (
	"context"
	"io"

	"github.com/talentsift/talentsift/internal/core/domain"
)

// ResumeIngestor is the inbound contract for resume upload orchestration.
type ResumeIngestor interface {
	Upload(ctx context.Context, filename, mimeType string, body io.Reader, size int64, cond domain.Condition) (*domain.PipelineRun, error)
}

// ResumeProcessor is the inbound contract for asynchronous pipeline execution.
type ResumeProcessor interface {
	ProcessRun(ctx context.Context, runID string) error
}

// CandidateSearcher is the inbound contract for hybrid retrieval.
type CandidateSearcher interface {
	Search(ctx context.Context, query string, limit int, params domain.FusionParams) ([]domain.RankedCandidate, error)
}

// QuestionAnswerer is the inbound contract for the agentic query loop.
type QuestionAnswerer interface {
	Ask(ctx context.Context, question string) (*domain.Answer, error)
}

// CandidateReader is the inbound read model for candidate and run state.
type CandidateReader interface {
	GetCandidate(ctx context.Context, id string) (*domain.Candidate, error)
	GetRun(ctx context.Context, id string) (*domain.PipelineRun, error)
}
