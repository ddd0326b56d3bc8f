package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/talentsift/talentsift/internal/core/domain"
)

func TestFieldExtractorParsesModelJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"response":"{\"name\":\"Jane\",\"skills\":[\"go\",\"sql\"],\"years_experience\":7}"}`))
	}))
	defer server.Close()

	extractor := NewFieldExtractor(New(server.URL, "gen", nil))
	fields, err := extractor.ExtractFields(context.Background(), "resume text")
	if err != nil {
		t.Fatalf("ExtractFields() error = %v", err)
	}
	if got := fields["name"]; got.Kind != domain.KindString || got.Str != "Jane" {
		t.Fatalf("name = %+v", got)
	}
	if got := fields["years_experience"]; got.Kind != domain.KindNumber || got.Num != 7 {
		t.Fatalf("years_experience = %+v", got)
	}
}

func TestFieldExtractorRejectsNonJSONResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response":"sorry, cannot parse"}`))
	}))
	defer server.Close()

	extractor := NewFieldExtractor(New(server.URL, "gen", nil))
	_, err := extractor.ExtractFields(context.Background(), "resume text")
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestJudgePromptCarriesConditionAndVerdict(t *testing.T) {
	var capturedPrompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		capturedPrompt, _ = payload["prompt"].(string)
		_, _ = w.Write([]byte(`{"response":"Candidate lists 7 years of Go."}`))
	}))
	defer server.Close()

	judge := NewJudge(New(server.URL, "gen", nil))
	cond := domain.Condition{Op: domain.OpContains, Field: "skills", Value: "go"}
	text, err := judge.Justify(context.Background(), map[string]domain.Value{"skills": domain.ListValue("go")}, cond, true)
	if err != nil {
		t.Fatalf("Justify() error = %v", err)
	}
	if text == "" {
		t.Fatalf("expected justification text")
	}
	if !strings.Contains(capturedPrompt, "skills contains go") {
		t.Fatalf("expected condition in prompt, got %s", capturedPrompt)
	}
	if !strings.Contains(capturedPrompt, "found qualified") {
		t.Fatalf("expected verdict in prompt, got %s", capturedPrompt)
	}
}

func TestEmbedUsesContractModelAndChecksDimension(t *testing.T) {
	var capturedModel string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			http.NotFound(w, r)
			return
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		capturedModel, _ = payload["model"].(string)
		_, _ = w.Write([]byte(`{"embeddings":[[0.1,0.2,0.3]]}`))
	}))
	defer server.Close()

	embedder := NewEmbedder(New(server.URL, "gen", nil))

	contract := domain.EmbeddingContract{ModelID: "contract-model", Dimension: 3, Normalize: true}
	vectors, err := embedder.Embed(context.Background(), contract, []string{"hello"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vectors) != 1 || len(vectors[0]) != 3 {
		t.Fatalf("unexpected vectors %v", vectors)
	}
	if capturedModel != "contract-model" {
		t.Fatalf("model = %q, want contract model", capturedModel)
	}

	narrow := domain.EmbeddingContract{ModelID: "contract-model", Dimension: 2, Normalize: true}
	_, err = embedder.Embed(context.Background(), narrow, []string{"hello"})
	if !errors.Is(err, domain.ErrContractViolation) {
		t.Fatalf("expected contract violation, got %v", err)
	}
}

func TestGeneratorBuildsContextPrompt(t *testing.T) {
	var capturedPrompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		capturedPrompt, _ = payload["prompt"].(string)
		_, _ = w.Write([]byte(`{"response":"ok"}`))
	}))
	defer server.Close()

	gen := NewGenerator(New(server.URL, "gen", nil))
	sources := []domain.RankedCandidate{{CandidateID: "cand-1", FusedScore: 0.02, Snippet: "golang developer"}}
	stats := domain.CorpusStats{Total: 12, ByStatus: map[string]int{"qualified": 9}}

	_, err := gen.GenerateAnswer(context.Background(), "who knows go?", sources, stats, true)
	if err != nil {
		t.Fatalf("GenerateAnswer() error = %v", err)
	}
	for _, want := range []string{"who knows go?", "golang developer", "12 candidates", "9 qualified", "below target"} {
		if !strings.Contains(capturedPrompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, capturedPrompt)
		}
	}
}

func TestEmbedMeanPoolsLongTextChunks(t *testing.T) {
	var inputCount int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		inputCount = len(payload.Input)

		embeddings := make([][]float32, inputCount)
		for i := range embeddings {
			embeddings[i] = []float32{float32(i), float32(i), float32(i)}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": embeddings})
	}))
	defer server.Close()

	embedder := NewEmbedder(New(server.URL, "gen", nil))
	contract := domain.EmbeddingContract{ModelID: "m", Dimension: 3, Normalize: true}

	long := strings.Repeat("golang kubernetes postgres ", 200)
	vectors, err := embedder.Embed(context.Background(), contract, []string{long})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if inputCount < 2 {
		t.Fatalf("expected long text to split into chunks, got %d inputs", inputCount)
	}
	if len(vectors) != 1 || len(vectors[0]) != 3 {
		t.Fatalf("expected one pooled vector, got %v", vectors)
	}
	// Mean of chunk vectors [0..n-1] at every component.
	want := float32(inputCount-1) / 2
	if vectors[0][0] != want {
		t.Fatalf("pooled component = %f, want %f", vectors[0][0], want)
	}
}

func TestEmbedIncludesHTTPBodyInErrorAndMapsTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	embedder := NewEmbedder(New(server.URL, "gen", nil))
	contract := domain.EmbeddingContract{ModelID: "m", Dimension: 3, Normalize: true}
	_, err := embedder.Embed(context.Background(), contract, []string{"hello"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("expected response body in error, got %v", err)
	}
	if !errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("expected 502 to map to temporary, got %v", err)
	}
}
