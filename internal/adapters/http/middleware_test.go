package httpadapter

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newLoggedRouter(buf *bytes.Buffer) http.Handler {
	logger := slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return NewRouter(&ingestSuccessFake{}, searchFake{}, agentFake{}, readerFake{}, nil, Options{Logger: logger}).Handler()
}

func TestAccessLogDemotesHealthProbes(t *testing.T) {
	var buf bytes.Buffer
	handler := newLoggedRouter(&buf)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	line := buf.String()
	if !strings.Contains(line, `"level":"DEBUG"`) {
		t.Fatalf("health probe must log at debug, got %s", line)
	}
	if !strings.Contains(line, `"path":"/healthz"`) {
		t.Fatalf("missing path attr, got %s", line)
	}
}

func TestAccessLogCarriesRequestIDAndSizes(t *testing.T) {
	var buf bytes.Buffer
	handler := newLoggedRouter(&buf)

	body, contentType := buildMultipart(t, "resume body", "")
	req := httptest.NewRequest(http.MethodPost, "/v1/resumes", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(requestIDHeader, "req-42")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if got := res.Header().Get(requestIDHeader); got != "req-42" {
		t.Fatalf("request id header = %q, want echoed req-42", got)
	}
	line := buf.String()
	if !strings.Contains(line, `"request_id":"req-42"`) {
		t.Fatalf("missing request_id attr, got %s", line)
	}
	if !strings.Contains(line, `"bytes_in"`) || !strings.Contains(line, `"bytes_out"`) {
		t.Fatalf("missing size attrs, got %s", line)
	}
	if !strings.Contains(line, `"level":"INFO"`) {
		t.Fatalf("successful upload must log at info, got %s", line)
	}
}

func TestAccessLogWarnsOnClientError(t *testing.T) {
	var buf bytes.Buffer
	handler := newLoggedRouter(&buf)

	req := httptest.NewRequest(http.MethodPost, "/v1/search", strings.NewReader("{broken"))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if line := buf.String(); !strings.Contains(line, `"level":"WARN"`) {
		t.Fatalf("4xx must log at warn, got %s", line)
	}
}
