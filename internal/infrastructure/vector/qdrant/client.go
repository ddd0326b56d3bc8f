package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/talentsift/talentsift/internal/core/domain"
)

const (
	denseVectorName   = "dense"
	lexicalVectorName = "lexical"
	snippetMaxRunes   = 240
)

// Client talks to qdrant over its HTTP API. One collection holds both the
// dense candidate vectors and the sparse lexical vectors as named vectors, so
// a candidate is exactly one point. Point IDs derive from the candidate ID,
// which makes every write idempotent.
type Client struct {
	baseURL    string
	collection string
	contract   domain.EmbeddingContract
	httpClient *http.Client

	ensureMu          sync.Mutex
	ensuredCollection bool
}

func New(baseURL, collection string, contract domain.EmbeddingContract) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		contract:   contract,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// pointID maps a candidate ID onto a stable qdrant point ID.
func pointID(candidateID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(candidateID)).String()
}

// Upsert writes the candidate's dense vector and payload. The vector is
// checked against the contract before anything goes on the wire; a mismatch
// is a contract violation and must not be retried.
func (c *Client) Upsert(ctx context.Context, contract domain.EmbeddingContract, cand *domain.Candidate, vector []float32) error {
	if contract != c.contract {
		return domain.WrapError(domain.ErrContractViolation, "qdrant upsert",
			fmt.Errorf("contract %s/%d differs from collection contract %s/%d",
				contract.ModelID, contract.Dimension, c.contract.ModelID, c.contract.Dimension))
	}
	if err := contract.Check(vector); err != nil {
		return err
	}
	if err := c.ensureCollection(ctx); err != nil {
		return err
	}

	point := map[string]any{
		"id": pointID(cand.ID),
		"vector": map[string]any{
			denseVectorName: contract.Apply(vector),
		},
		"payload": candidatePayload(cand),
	}
	return c.upsertPoints(ctx, []map[string]any{point})
}

// LexicalView exposes the sparse side of the collection. Client's Query is
// the dense search, so the lexical port gets its own receiver.
type LexicalView struct {
	c *Client
}

func (c *Client) Lexical() *LexicalView {
	return &LexicalView{c: c}
}

func (v *LexicalView) Index(ctx context.Context, cand *domain.Candidate) error {
	return v.c.indexLexical(ctx, cand)
}

func (v *LexicalView) Query(ctx context.Context, text string, limit int, filter domain.SearchFilter) ([]domain.Hit, error) {
	return v.c.queryLexical(ctx, text, limit, filter)
}

// indexLexical writes the candidate's sparse lexical vector next to its dense
// one. It goes through the vectors update endpoint rather than a point
// upsert: a point upsert replaces the whole point, which would erase the
// dense vector written just before. The point must already exist.
func (c *Client) indexLexical(ctx context.Context, cand *domain.Candidate) error {
	if err := c.ensureCollection(ctx); err != nil {
		return err
	}

	sparse := encodeSparseDocument(cand.RawText, boostedTerms(cand.Fields))
	point := map[string]any{
		"id": pointID(cand.ID),
		"vector": map[string]any{
			lexicalVectorName: map[string]any{
				"indices": sparse.Indices,
				"values":  sparse.Values,
			},
		},
	}
	return c.updateVectors(ctx, []map[string]any{point})
}

// updateVectors patches named vectors on existing points. Vectors absent
// from the request are kept as stored.
func (c *Client) updateVectors(ctx context.Context, points []map[string]any) error {
	body, err := json.Marshal(map[string]any{"points": points})
	if err != nil {
		return fmt.Errorf("marshal update vectors body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points/vectors?wait=true", c.baseURL, c.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create update vectors request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, "qdrant update vectors", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return wrapStatusError("qdrant update vectors", resp)
	}
	return nil
}

func (c *Client) upsertPoints(ctx context.Context, points []map[string]any) error {
	body, err := json.Marshal(map[string]any{"points": points})
	if err != nil {
		return fmt.Errorf("marshal upsert body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points?wait=true", c.baseURL, c.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create upsert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, "qdrant upsert", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return wrapStatusError("qdrant upsert", resp)
	}
	return nil
}

// Query searches the dense vector space.
func (c *Client) Query(
	ctx context.Context,
	contract domain.EmbeddingContract,
	vector []float32,
	limit int,
	filter domain.SearchFilter,
) ([]domain.Hit, error) {
	if contract != c.contract {
		return nil, domain.WrapError(domain.ErrContractViolation, "qdrant query",
			fmt.Errorf("contract %s/%d differs from collection contract %s/%d",
				contract.ModelID, contract.Dimension, c.contract.ModelID, c.contract.Dimension))
	}
	if err := contract.Check(vector); err != nil {
		return nil, err
	}

	reqBody := map[string]any{
		"vector": map[string]any{
			"name":   denseVectorName,
			"vector": contract.Apply(vector),
		},
		"limit":        limit,
		"with_payload": true,
	}
	applyFilter(reqBody, filter)
	return c.search(ctx, reqBody)
}

// queryLexical searches the sparse vector space with a BM25-weighted query.
func (c *Client) queryLexical(ctx context.Context, text string, limit int, filter domain.SearchFilter) ([]domain.Hit, error) {
	sparse := encodeSparseQuery(text)
	if len(sparse.Indices) == 0 {
		return nil, nil
	}

	reqBody := map[string]any{
		"vector": map[string]any{
			"name": lexicalVectorName,
			"vector": map[string]any{
				"indices": sparse.Indices,
				"values":  sparse.Values,
			},
		},
		"limit":        limit,
		"with_payload": true,
	}
	applyFilter(reqBody, filter)
	return c.search(ctx, reqBody)
}

func (c *Client) search(ctx context.Context, reqBody map[string]any) ([]domain.Hit, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "qdrant search", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, wrapStatusError("qdrant search", resp)
	}

	var searchResp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	out := make([]domain.Hit, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		out = append(out, domain.Hit{
			CandidateID: getStringPayload(r.Payload, "candidate_id"),
			Score:       r.Score,
			Snippet:     getStringPayload(r.Payload, "snippet"),
		})
	}
	// Equal scores order by candidate ID so rankings stay reproducible.
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].CandidateID < out[j].CandidateID
	})
	return out, nil
}

func (c *Client) DeleteByCandidateID(ctx context.Context, id string) error {
	body, err := json.Marshal(map[string]any{"points": []string{pointID(id)}})
	if err != nil {
		return fmt.Errorf("marshal delete body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points/delete?wait=true", c.baseURL, c.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create delete request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, "qdrant delete", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return wrapStatusError("qdrant delete", resp)
	}
	return nil
}

// ensureCollection creates the collection under the pinned contract. The
// dense vector size is the contract dimension; a collection created under a
// different contract keeps its size and later writes fail their dimension
// check client-side.
func (c *Client) ensureCollection(ctx context.Context) error {
	c.ensureMu.Lock()
	if c.ensuredCollection {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			denseVectorName: map[string]any{
				"size":     c.contract.Dimension,
				"distance": "Cosine",
			},
		},
		"sparse_vectors": map[string]any{
			lexicalVectorName: map[string]any{},
		},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal create collection body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create collection request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, "qdrant ensure collection", err)
	}
	defer resp.Body.Close()

	// 200/201 for create, 409 if already exists (depends on version/config).
	if resp.StatusCode == http.StatusConflict {
		c.markCollectionEnsured()
		return nil
	}
	if resp.StatusCode >= 300 {
		return wrapStatusError("qdrant ensure collection", resp)
	}
	c.markCollectionEnsured()
	return nil
}

func (c *Client) markCollectionEnsured() {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	c.ensuredCollection = true
}

func candidatePayload(cand *domain.Candidate) map[string]any {
	snippet := cand.RawText
	if runes := []rune(snippet); len(runes) > snippetMaxRunes {
		snippet = string(runes[:snippetMaxRunes])
	}
	payload := map[string]any{
		"candidate_id": cand.ID,
		"filename":     cand.Filename,
		"status":       string(cand.Status),
		"snippet":      snippet,
	}
	if skills := stringList(cand.Fields, "skills"); len(skills) > 0 {
		payload["skills"] = skills
	}
	return payload
}

// boostedTerms picks the fields whose tokens weigh extra in lexical indexing.
func boostedTerms(fields map[string]domain.Value) []string {
	out := stringList(fields, "skills")
	if title := fields["title"]; title.Kind == domain.KindString && title.Str != "" {
		out = append(out, title.Str)
	}
	return out
}

func stringList(fields map[string]domain.Value, key string) []string {
	if v, ok := fields[key]; ok && v.Kind == domain.KindList {
		return v.List
	}
	return nil
}

func applyFilter(reqBody map[string]any, filter domain.SearchFilter) {
	var must []map[string]any
	if filter.Status != "" {
		must = append(must, map[string]any{
			"key":   "status",
			"match": map[string]any{"value": string(filter.Status)},
		})
	}
	if filter.Skill != "" {
		must = append(must, map[string]any{
			"key":   "skills",
			"match": map[string]any{"value": filter.Skill},
		})
	}
	if len(must) > 0 {
		reqBody["filter"] = map[string]any{"must": must}
	}
}

func wrapStatusError(operation string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	base := fmt.Errorf("%s status: %s", operation, resp.Status)
	if msg := strings.TrimSpace(string(body)); msg != "" {
		base = fmt.Errorf("%s status: %s: %s", operation, resp.Status, msg)
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return domain.WrapError(domain.ErrTemporary, operation, base)
	}
	return base
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
