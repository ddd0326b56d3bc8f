package ports

import (
	"context"
	"io"

	"github.com/talentsift/talentsift/internal/core/domain"
)

// CandidateRepository persists and reads candidate state.
type CandidateRepository interface {
	Create(ctx context.Context, c *domain.Candidate) error
	Upsert(ctx context.Context, c *domain.Candidate) error
	GetByID(ctx context.Context, id string) (*domain.Candidate, error)
	FindByContentHash(ctx context.Context, hash string) (*domain.Candidate, error)
	UpdateStatus(ctx context.Context, id string, status domain.CandidateStatus, justification string) error
	List(ctx context.Context, filter domain.SearchFilter, limit int) ([]domain.Candidate, error)
	Stats(ctx context.Context) (domain.CorpusStats, error)
}

// RunRepository persists pipeline run progress.
type RunRepository interface {
	Create(ctx context.Context, run *domain.PipelineRun) error
	GetByID(ctx context.Context, id string) (*domain.PipelineRun, error)
	Update(ctx context.Context, run *domain.PipelineRun) error
}

// ObjectStorage stores source resumes and extracted artifacts.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader, size int64, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue publishes/consumes ingestion events.
type MessageQueue interface {
	PublishResumeIngested(ctx context.Context, runID string) error
	SubscribeResumeIngested(ctx context.Context, handler func(context.Context, string) error) error
	PublishRunProgress(ctx context.Context, run domain.PipelineRun) error
}

// TextExtractor extracts plain text and embedded images from a stored resume.
type TextExtractor interface {
	Extract(ctx context.Context, filename, mimeType string, data io.Reader) (domain.Extraction, error)
}

// FieldExtractor turns resume text into structured fields.
type FieldExtractor interface {
	ExtractFields(ctx context.Context, text string) (map[string]domain.Value, error)
}

// Judge produces a natural-language justification for an admissibility verdict.
type Judge interface {
	Justify(ctx context.Context, fields map[string]domain.Value, cond domain.Condition, qualified bool) (string, error)
}

// Embedder builds vectors for stored text and query text under the active
// contract.
type Embedder interface {
	Embed(ctx context.Context, contract domain.EmbeddingContract, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, contract domain.EmbeddingContract, text string) ([]float32, error)
}

// VectorStore indexes candidate vectors and performs semantic search. Upsert
// is idempotent per candidate and rejects vectors that violate the contract.
type VectorStore interface {
	Upsert(ctx context.Context, contract domain.EmbeddingContract, c *domain.Candidate, vector []float32) error
	Query(ctx context.Context, contract domain.EmbeddingContract, vector []float32, limit int, filter domain.SearchFilter) ([]domain.Hit, error)
	DeleteByCandidateID(ctx context.Context, id string) error
}

// LexicalIndex performs keyword retrieval over the same corpus. Index is
// incremental and idempotent per candidate.
type LexicalIndex interface {
	Index(ctx context.Context, c *domain.Candidate) error
	Query(ctx context.Context, text string, limit int, filter domain.SearchFilter) ([]domain.Hit, error)
}

// AnswerGenerator creates the final user-facing answer.
type AnswerGenerator interface {
	GenerateAnswer(ctx context.Context, question string, sources []domain.RankedCandidate, stats domain.CorpusStats, degraded bool) (string, error)
}

// ResultCache stores pipeline outcomes for cheap status polling. Failures
// here never fail the pipeline.
type ResultCache interface {
	SetCandidate(ctx context.Context, c *domain.Candidate) error
	GetCandidate(ctx context.Context, id string) (*domain.Candidate, error)
	SetRun(ctx context.Context, run *domain.PipelineRun) error
	GetRun(ctx context.Context, id string) (*domain.PipelineRun, error)
}
