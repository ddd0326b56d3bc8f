package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/talentsift/talentsift/internal/core/domain"
	"github.com/talentsift/talentsift/internal/core/ports"
	"github.com/talentsift/talentsift/internal/observability/metrics"
)

const serviceName = "api"

type Router struct {
	ingestUC ports.ResumeIngestor
	searchUC ports.CandidateSearcher
	agentUC  ports.QuestionAnswerer
	reader   ports.CandidateReader
	metrics  *metrics.HTTPServerMetrics
	opts     Options
}

type Options struct {
	RateLimitRPS   float64
	RateLimitBurst int
	MaxConcurrent  int
	QueueTimeout   time.Duration
	MaxUploadBytes int64
	Logger         *slog.Logger
}

func (o Options) normalize() Options {
	if o.RateLimitRPS <= 0 {
		o.RateLimitRPS = 20
	}
	if o.RateLimitBurst <= 0 {
		o.RateLimitBurst = 40
	}
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = 64
	}
	if o.QueueTimeout <= 0 {
		o.QueueTimeout = 2 * time.Second
	}
	if o.MaxUploadBytes <= 0 {
		o.MaxUploadBytes = 16 << 20
	}
	return o
}

func NewRouter(
	ingestUC ports.ResumeIngestor,
	searchUC ports.CandidateSearcher,
	agentUC ports.QuestionAnswerer,
	reader ports.CandidateReader,
	httpMetrics *metrics.HTTPServerMetrics,
	opts Options,
) *Router {
	return &Router{
		ingestUC: ingestUC,
		searchUC: searchUC,
		agentUC:  agentUC,
		reader:   reader,
		metrics:  httpMetrics,
		opts:     opts.normalize(),
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/resumes", rt.uploadResume)
	mux.HandleFunc("/v1/runs/", rt.getRunByID)
	mux.HandleFunc("/v1/candidates/", rt.getCandidateByID)
	mux.HandleFunc("/v1/search", rt.search)
	mux.HandleFunc("/v1/ask", rt.ask)

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.opts.MaxConcurrent, rt.opts.QueueTimeout)
	handler = rateLimitMiddleware(handler, rt.opts.RateLimitRPS, rt.opts.RateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler, rt.opts.Logger)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// uploadResume accepts a multipart resume plus an optional condition JSON
// field and enqueues the ingestion pipeline. The response carries the run ID
// to poll and the candidate ID the run will populate.
func (rt *Router) uploadResume(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, rt.opts.MaxUploadBytes)

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		rt.recordUpload(false)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	var cond domain.Condition
	if raw := r.FormValue("condition"); strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &cond); err != nil {
			rt.recordUpload(false)
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "condition is not valid json"})
			return
		}
	}

	run, err := rt.ingestUC.Upload(
		r.Context(),
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		file,
		fileHeader.Size,
		cond,
	)
	if err != nil {
		rt.recordUpload(false)
		writeError(w, err)
		return
	}

	rt.recordUpload(true)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"run_id":       run.ID,
		"candidate_id": run.CandidateID,
	})
}

func (rt *Router) getRunByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/runs/")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "run id is required"})
		return
	}

	run, err := rt.reader.GetRun(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (rt *Router) getCandidateByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/candidates/")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "candidate id is required"})
		return
	}

	cand, err := rt.reader.GetCandidate(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cand)
}

func (rt *Router) search(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Question string `json:"question"`
		TopK     int    `json:"top_k"`
		Weights  *struct {
			Vector  float64 `json:"vector"`
			Lexical float64 `json:"lexical"`
			K       int     `json:"k"`
		} `json:"weights"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	params := domain.FusionParams{}
	if req.Weights != nil {
		params = domain.FusionParams{
			VectorWeight:  req.Weights.Vector,
			LexicalWeight: req.Weights.Lexical,
			K:             req.Weights.K,
		}
	}

	start := time.Now()
	results, err := rt.searchUC.Search(r.Context(), req.Question, req.TopK, params)
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordSearch(serviceName, "/v1/search", len(results), time.Since(start))
	}

	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (rt *Router) ask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Question string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	answer, err := rt.agentUC.Ask(r.Context(), req.Question)
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordAgentRun(serviceName, string(answer.Verdict), answer.Rounds)
	}

	writeJSON(w, http.StatusOK, answer)
}

func (rt *Router) recordUpload(accepted bool) {
	if rt.metrics != nil {
		rt.metrics.RecordUpload(serviceName, accepted)
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
