package qdrant

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/talentsift/talentsift/internal/core/domain"
)

func testContract() domain.EmbeddingContract {
	return domain.EmbeddingContract{ModelID: "test-embed", Dimension: 2, Normalize: true}
}

func TestUpsertEnsuresCollectionOnce(t *testing.T) {
	var ensureCalls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/collections/candidates":
			atomic.AddInt32(&ensureCalls, 1)
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/candidates/points",
			r.Method == http.MethodPut && r.URL.Path == "/collections/candidates/points/vectors":
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	contract := testContract()
	client := New(server.URL, "candidates", contract)
	cand := &domain.Candidate{ID: "cand-1", Filename: "a.pdf", RawText: "golang developer"}

	if err := client.Upsert(context.Background(), contract, cand, []float32{0.1, 0.2}); err != nil {
		t.Fatalf("first Upsert() error = %v", err)
	}
	if err := client.Lexical().Index(context.Background(), cand); err != nil {
		t.Fatalf("Index() error = %v", err)
	}
	if got := atomic.LoadInt32(&ensureCalls); got != 1 {
		t.Fatalf("expected ensure collection called once, got %d", got)
	}
}

func TestUpsertRejectsContractViolationBeforeAnyRequest(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	contract := testContract()
	client := New(server.URL, "candidates", contract)
	cand := &domain.Candidate{ID: "cand-1"}

	err := client.Upsert(context.Background(), contract, cand, []float32{0.1, 0.2, 0.3})
	if !errors.Is(err, domain.ErrContractViolation) {
		t.Fatalf("expected contract violation, got %v", err)
	}
	if got := atomic.LoadInt32(&requests); got != 0 {
		t.Fatalf("expected no HTTP requests, got %d", got)
	}
}

func TestUpsertRejectsForeignContract(t *testing.T) {
	client := New("http://unused", "candidates", testContract())
	other := domain.EmbeddingContract{ModelID: "other", Dimension: 2, Normalize: true}
	err := client.Upsert(context.Background(), other, &domain.Candidate{ID: "c"}, []float32{0.1, 0.2})
	if !errors.Is(err, domain.ErrContractViolation) {
		t.Fatalf("expected contract violation, got %v", err)
	}
}

func TestUpsertUsesDeterministicPointID(t *testing.T) {
	var gotIDs []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut && r.URL.Path == "/collections/candidates/points" {
			var body struct {
				Points []struct {
					ID string `json:"id"`
				} `json:"points"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("decode upsert body: %v", err)
			}
			for _, p := range body.Points {
				gotIDs = append(gotIDs, p.ID)
			}
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	contract := testContract()
	client := New(server.URL, "candidates", contract)
	cand := &domain.Candidate{ID: "cand-1"}

	if err := client.Upsert(context.Background(), contract, cand, []float32{0.1, 0.2}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := client.Upsert(context.Background(), contract, cand, []float32{0.3, 0.4}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if len(gotIDs) != 2 || gotIDs[0] != gotIDs[1] {
		t.Fatalf("expected identical point IDs for same candidate, got %v", gotIDs)
	}
	if gotIDs[0] != pointID("cand-1") {
		t.Fatalf("point ID = %q, want %q", gotIDs[0], pointID("cand-1"))
	}
}

func TestLexicalIndexDoesNotReplaceDensePoint(t *testing.T) {
	type write struct {
		path   string
		vector map[string]json.RawMessage
	}
	var writes []write
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut &&
			(r.URL.Path == "/collections/candidates/points" || r.URL.Path == "/collections/candidates/points/vectors") {
			var body struct {
				Points []struct {
					Vector map[string]json.RawMessage `json:"vector"`
				} `json:"points"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("decode body: %v", err)
			}
			for _, p := range body.Points {
				writes = append(writes, write{path: r.URL.Path, vector: p.Vector})
			}
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	contract := testContract()
	client := New(server.URL, "candidates", contract)
	cand := &domain.Candidate{ID: "cand-1", RawText: "golang developer"}

	if err := client.Upsert(context.Background(), contract, cand, []float32{0.1, 0.2}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := client.Lexical().Index(context.Background(), cand); err != nil {
		t.Fatalf("Index() error = %v", err)
	}

	if len(writes) != 2 {
		t.Fatalf("expected 2 writes, got %d", len(writes))
	}
	if writes[0].path != "/collections/candidates/points" {
		t.Fatalf("dense write path = %q", writes[0].path)
	}
	if _, ok := writes[0].vector["dense"]; !ok {
		t.Fatalf("dense write missing dense vector: %v", writes[0].vector)
	}
	// The sparse write must go through the partial vector update, where
	// absent named vectors are kept. A second point upsert would wipe the
	// dense vector and make the candidate unreachable by vector search.
	if writes[1].path != "/collections/candidates/points/vectors" {
		t.Fatalf("lexical write path = %q, want vectors update", writes[1].path)
	}
	if _, ok := writes[1].vector["lexical"]; !ok {
		t.Fatalf("lexical write missing lexical vector: %v", writes[1].vector)
	}
	if _, ok := writes[1].vector["dense"]; ok {
		t.Fatalf("lexical write must not carry the dense vector")
	}
}

func TestQueryOrdersTiesByCandidateID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/collections/candidates/points/search" {
			_, _ = w.Write([]byte(`{"result":[
				{"score":0.5,"payload":{"candidate_id":"zeta"}},
				{"score":0.9,"payload":{"candidate_id":"beta"}},
				{"score":0.5,"payload":{"candidate_id":"alpha"}}
			]}`))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	contract := testContract()
	client := New(server.URL, "candidates", contract)
	hits, err := client.Query(context.Background(), contract, []float32{0.1, 0.2}, 10, domain.SearchFilter{})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	want := []string{"beta", "alpha", "zeta"}
	if len(hits) != len(want) {
		t.Fatalf("expected %d hits, got %d", len(want), len(hits))
	}
	for i, id := range want {
		if hits[i].CandidateID != id {
			t.Fatalf("hits[%d] = %q, want %q", i, hits[i].CandidateID, id)
		}
	}
}

func TestLexicalQueryAppliesStatusFilter(t *testing.T) {
	var gotFilter json.RawMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/collections/candidates/points/search" {
			var body map[string]json.RawMessage
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("decode search body: %v", err)
			}
			gotFilter = body["filter"]
			_, _ = w.Write([]byte(`{"result":[]}`))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(server.URL, "candidates", testContract())
	_, err := client.Lexical().Query(context.Background(), "golang",
		5, domain.SearchFilter{Status: domain.StatusQualified})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if !strings.Contains(string(gotFilter), `"qualified"`) {
		t.Fatalf("expected status filter in request, got %s", gotFilter)
	}
}

func TestEnsureCollectionIncludesResponseBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut && r.URL.Path == "/collections/candidates" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	contract := testContract()
	client := New(server.URL, "candidates", contract)
	err := client.Upsert(context.Background(), contract, &domain.Candidate{ID: "c"}, []float32{0.1, 0.2})
	if err == nil {
		t.Fatalf("expected error")
	}
	if got := err.Error(); !strings.Contains(got, "boom") {
		t.Fatalf("expected error to include body, got %v", err)
	}
	if !errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("expected 5xx to map to temporary, got %v", err)
	}
}
