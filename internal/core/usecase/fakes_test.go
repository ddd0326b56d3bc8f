package usecase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/talentsift/talentsift/internal/core/domain"
)

type candidateRepoFake struct {
	mu         sync.Mutex
	byID       map[string]*domain.Candidate
	byHash     map[string]*domain.Candidate
	uniqueHash bool
	upserts    int
	createErr  error
	upsertErr  error
	statusLog  []domain.CandidateStatus
	statsValue domain.CorpusStats
	statsErr   error
	listValue  []domain.Candidate
	listErr    error
}

func newCandidateRepoFake() *candidateRepoFake {
	return &candidateRepoFake{
		byID:   make(map[string]*domain.Candidate),
		byHash: make(map[string]*domain.Candidate),
	}
}

func (f *candidateRepoFake) Create(_ context.Context, c *domain.Candidate) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *c
	f.byID[c.ID] = &cp
	return nil
}

// indexableStatus mirrors the partial unique index on content_hash:
// duplicate and failed rows do not hold the hash.
func indexableStatus(s domain.CandidateStatus) bool {
	return s != domain.StatusDuplicate && s != domain.StatusFailed
}

func (f *candidateRepoFake) Upsert(_ context.Context, c *domain.Candidate) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uniqueHash && c.ContentHash != "" && indexableStatus(c.Status) {
		if existing, ok := f.byHash[c.ContentHash]; ok && existing.ID != c.ID && indexableStatus(existing.Status) {
			return domain.WrapError(domain.ErrDuplicate, "upsert candidate",
				fmt.Errorf("content_hash %s held by %s", c.ContentHash, existing.ID))
		}
	}
	f.upserts++
	cp := *c
	f.byID[c.ID] = &cp
	if c.ContentHash != "" && indexableStatus(c.Status) {
		f.byHash[c.ContentHash] = &cp
	}
	return nil
}

func (f *candidateRepoFake) GetByID(_ context.Context, id string) (*domain.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get candidate", fmt.Errorf("id %s", id))
	}
	cp := *c
	return &cp, nil
}

func (f *candidateRepoFake) FindByContentHash(_ context.Context, hash string) (*domain.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byHash[hash]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "find by hash", fmt.Errorf("hash %s", hash))
	}
	cp := *c
	return &cp, nil
}

func (f *candidateRepoFake) UpdateStatus(_ context.Context, id string, status domain.CandidateStatus, justification string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusLog = append(f.statusLog, status)
	if c, ok := f.byID[id]; ok {
		c.Status = status
		if justification != "" {
			c.Justification = justification
		}
	}
	return nil
}

func (f *candidateRepoFake) List(_ context.Context, _ domain.SearchFilter, _ int) ([]domain.Candidate, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.listValue, nil
}

func (f *candidateRepoFake) Stats(_ context.Context) (domain.CorpusStats, error) {
	if f.statsErr != nil {
		return domain.CorpusStats{}, f.statsErr
	}
	return f.statsValue, nil
}

type runRepoFake struct {
	mu      sync.Mutex
	byID    map[string]*domain.PipelineRun
	updates []domain.PipelineRun
}

func newRunRepoFake() *runRepoFake {
	return &runRepoFake{byID: make(map[string]*domain.PipelineRun)}
}

func (f *runRepoFake) Create(_ context.Context, run *domain.PipelineRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *run
	f.byID[run.ID] = &cp
	return nil
}

func (f *runRepoFake) GetByID(_ context.Context, id string) (*domain.PipelineRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.byID[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get run", fmt.Errorf("id %s", id))
	}
	cp := *run
	return &cp, nil
}

func (f *runRepoFake) Update(_ context.Context, run *domain.PipelineRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *run
	f.byID[run.ID] = &cp
	f.updates = append(f.updates, cp)
	return nil
}

type storageFake struct {
	mu      sync.Mutex
	blobs   map[string][]byte
	saveErr error
}

func newStorageFake() *storageFake {
	return &storageFake{blobs: make(map[string][]byte)}
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader, _ int64, _ string) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blobs[key] = b
	return nil
}

func (f *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.blobs[key]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "open object", fmt.Errorf("key %s", key))
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

type queueFake struct {
	mu        sync.Mutex
	published []string
	progress  []domain.PipelineRun
	pubErr    error
	progErr   error
}

func (f *queueFake) PublishResumeIngested(_ context.Context, runID string) error {
	if f.pubErr != nil {
		return f.pubErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, runID)
	return nil
}

func (f *queueFake) SubscribeResumeIngested(context.Context, func(context.Context, string) error) error {
	return nil
}

func (f *queueFake) PublishRunProgress(_ context.Context, run domain.PipelineRun) error {
	if f.progErr != nil {
		return f.progErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress = append(f.progress, run)
	return nil
}

type extractorFake struct {
	text   string
	images []domain.ExtractedImage
	err    error
}

func (f *extractorFake) Extract(_ context.Context, _, _ string, _ io.Reader) (domain.Extraction, error) {
	return domain.Extraction{Text: f.text, Images: f.images}, f.err
}

type fieldExtractorFake struct {
	mu     sync.Mutex
	fields map[string]domain.Value
	errs   []error
	calls  int
}

func (f *fieldExtractorFake) ExtractFields(context.Context, string) (map[string]domain.Value, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.fields, nil
}

type judgeFake struct {
	mu      sync.Mutex
	text    string
	errs    []error
	calls   int
	arrived chan struct{} // signalled on entry when set
	gate    chan struct{} // blocks Justify until closed when set
}

func (f *judgeFake) Justify(context.Context, map[string]domain.Value, domain.Condition, bool) (string, error) {
	if f.arrived != nil {
		f.arrived <- struct{}{}
	}
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return "", err
		}
	}
	return f.text, nil
}

type embedderFake struct {
	mu     sync.Mutex
	vector []float32
	err    error
	calls  int
}

func (f *embedderFake) Embed(_ context.Context, contract domain.EmbeddingContract, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vector
	}
	return out, nil
}

func (f *embedderFake) EmbedQuery(_ context.Context, _ domain.EmbeddingContract, _ string) ([]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

type vectorStoreFake struct {
	mu         sync.Mutex
	upserts    map[string][]float32
	hits       []domain.Hit
	upsertErrs []error
	queryErr   error
	queryDelay chan struct{}
	contract   domain.EmbeddingContract
	checkDim   bool
}

func newVectorStoreFake() *vectorStoreFake {
	return &vectorStoreFake{upserts: make(map[string][]float32)}
}

func (f *vectorStoreFake) Upsert(_ context.Context, contract domain.EmbeddingContract, c *domain.Candidate, vector []float32) error {
	if len(f.upsertErrs) > 0 {
		err := f.upsertErrs[0]
		f.upsertErrs = f.upsertErrs[1:]
		if err != nil {
			return err
		}
	}
	if f.checkDim {
		if err := contract.Check(vector); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts[c.ID] = vector
	return nil
}

func (f *vectorStoreFake) Query(ctx context.Context, _ domain.EmbeddingContract, _ []float32, _ int, _ domain.SearchFilter) ([]domain.Hit, error) {
	if f.queryDelay != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-f.queryDelay:
		}
	}
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.hits, nil
}

func (f *vectorStoreFake) DeleteByCandidateID(context.Context, string) error { return nil }

type lexicalIndexFake struct {
	mu       sync.Mutex
	indexed  []string
	hits     []domain.Hit
	indexErr error
	queryErr error
}

func (f *lexicalIndexFake) Index(_ context.Context, c *domain.Candidate) error {
	if f.indexErr != nil {
		return f.indexErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, c.ID)
	return nil
}

func (f *lexicalIndexFake) Query(_ context.Context, _ string, _ int, _ domain.SearchFilter) ([]domain.Hit, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.hits, nil
}

type cacheFake struct {
	mu         sync.Mutex
	candidates map[string]*domain.Candidate
	runs       map[string]*domain.PipelineRun
	setErr     error
}

func newCacheFake() *cacheFake {
	return &cacheFake{
		candidates: make(map[string]*domain.Candidate),
		runs:       make(map[string]*domain.PipelineRun),
	}
}

func (f *cacheFake) SetCandidate(_ context.Context, c *domain.Candidate) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *c
	f.candidates[c.ID] = &cp
	return nil
}

func (f *cacheFake) GetCandidate(_ context.Context, id string) (*domain.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.candidates[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "cache get candidate", fmt.Errorf("id %s", id))
	}
	cp := *c
	return &cp, nil
}

func (f *cacheFake) SetRun(_ context.Context, run *domain.PipelineRun) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *run
	f.runs[run.ID] = &cp
	return nil
}

func (f *cacheFake) GetRun(_ context.Context, id string) (*domain.PipelineRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "cache get run", fmt.Errorf("id %s", id))
	}
	cp := *run
	return &cp, nil
}

type generatorFake struct {
	text         string
	err          error
	lastDegraded bool
	lastStats    domain.CorpusStats
	calls        int
}

func (f *generatorFake) GenerateAnswer(_ context.Context, _ string, _ []domain.RankedCandidate, stats domain.CorpusStats, degraded bool) (string, error) {
	f.calls++
	f.lastDegraded = degraded
	f.lastStats = stats
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}
