package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/talentsift/talentsift/internal/core/domain"
	"github.com/talentsift/talentsift/internal/infrastructure/chunking"
	"github.com/talentsift/talentsift/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	genModel   string
	httpClient *http.Client
	executor   *resilience.Executor
}

// New builds a client for one ollama endpoint. The generation model is fixed
// per deployment; the embedding model always comes from the contract so a
// contract swap cannot silently reuse stale vectors.
func New(baseURL, genModel string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		executor:   executor,
	}
}

// FieldExtractor pulls structured fields out of raw resume text.
type FieldExtractor struct {
	client *Client
}

func NewFieldExtractor(client *Client) *FieldExtractor {
	return &FieldExtractor{client: client}
}

func (f *FieldExtractor) ExtractFields(ctx context.Context, text string) (map[string]domain.Value, error) {
	respText, err := f.client.generateJSON(ctx, "extract_fields", buildFieldExtractionPrompt(text))
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(extractJSONObject(respText)), &raw); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "parse extracted fields", err)
	}
	// Nulls and nested objects in the model output are dropped, not errors.
	return domain.FieldsFromAny(raw), nil
}

// Judge writes the human-readable justification for an admissibility verdict.
// The verdict itself is decided by condition evaluation, never by the model.
type Judge struct {
	client *Client
}

func NewJudge(client *Client) *Judge {
	return &Judge{client: client}
}

func (j *Judge) Justify(ctx context.Context, fields map[string]domain.Value, cond domain.Condition, qualified bool) (string, error) {
	return j.client.generateText(ctx, "justify", buildJustificationPrompt(fields, cond, qualified))
}

type Embedder struct {
	client   *Client
	splitter *chunking.Splitter
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{
		client:   client,
		splitter: chunking.NewSplitter(2000, 200),
	}
}

// Embed requests vectors from the model the contract names and verifies every
// returned vector against the contract dimension before handing it out. Text
// longer than the splitter window is embedded in chunks and mean-pooled back
// into one vector, so a ten-page resume still yields a single contract vector.
func (e *Embedder) Embed(ctx context.Context, contract domain.EmbeddingContract, texts []string) ([][]float32, error) {
	if err := contract.Validate(); err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return nil, nil
	}

	var inputs []string
	counts := make([]int, len(texts))
	for i, text := range texts {
		chunks := e.splitter.Split(text)
		if len(chunks) == 0 {
			chunks = []string{text}
		}
		counts[i] = len(chunks)
		inputs = append(inputs, chunks...)
	}

	request := map[string]any{
		"model": contract.ModelID,
		"input": inputs,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.postJSON(ctx, "/api/embed", request, &response, "embed"); err != nil {
		return nil, err
	}
	if len(response.Embeddings) != len(inputs) {
		return nil, fmt.Errorf("embed returned %d vectors for %d inputs", len(response.Embeddings), len(inputs))
	}
	for _, vec := range response.Embeddings {
		if err := contract.Check(vec); err != nil {
			return nil, err
		}
	}

	out := make([][]float32, len(texts))
	offset := 0
	for i, n := range counts {
		out[i] = meanPool(response.Embeddings[offset : offset+n])
		offset += n
	}
	return out, nil
}

func meanPool(vectors [][]float32) []float32 {
	if len(vectors) == 1 {
		return vectors[0]
	}
	pooled := make([]float32, len(vectors[0]))
	for _, vec := range vectors {
		for i, v := range vec {
			pooled[i] += v
		}
	}
	n := float32(len(vectors))
	for i := range pooled {
		pooled[i] /= n
	}
	return pooled
}

func (e *Embedder) EmbedQuery(ctx context.Context, contract domain.EmbeddingContract, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, contract, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) GenerateAnswer(
	ctx context.Context,
	question string,
	sources []domain.RankedCandidate,
	stats domain.CorpusStats,
	degraded bool,
) (string, error) {
	return g.client.generateText(ctx, "answer", buildAnswerPrompt(question, sources, stats, degraded))
}

func (c *Client) generateJSON(ctx context.Context, operation, prompt string) (string, error) {
	reqBody := map[string]any{
		"model":  c.genModel,
		"prompt": prompt,
		"stream": false,
		"format": "json",
	}
	return c.generate(ctx, operation, reqBody)
}

func (c *Client) generateText(ctx context.Context, operation, prompt string) (string, error) {
	reqBody := map[string]any{
		"model":  c.genModel,
		"prompt": prompt,
		"stream": false,
	}
	return c.generate(ctx, operation, reqBody)
}

func (c *Client) generate(ctx context.Context, operation string, reqBody map[string]any) (string, error) {
	var response struct {
		Response string `json:"response"`
	}
	if err := c.postJSON(ctx, "/api/generate", reqBody, &response, operation); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
