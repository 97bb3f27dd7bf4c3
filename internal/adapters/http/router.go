package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/rag-chatbot/internal/config"
	"github.com/kirillkom/rag-chatbot/internal/core/domain"
	"github.com/kirillkom/rag-chatbot/internal/core/ports"
	"github.com/kirillkom/rag-chatbot/internal/core/usecase"
	"github.com/kirillkom/rag-chatbot/internal/observability/metrics"
)

const (
	serviceName      = "api"
	maxUploadBytes   = 64 << 20
	maxJSONBodyBytes = 1 << 20
	backpressureWait = 250 * time.Millisecond
)

// Uploader accepts files and locators for indexing.
type Uploader interface {
	UploadFile(ctx context.Context, filename string, body io.Reader) (*usecase.UploadResult, error)
	SubmitLocator(ctx context.Context, locator string, async bool) (*usecase.UploadResult, error)
}

type Router struct {
	cfg      config.Config
	uploads  Uploader
	answerer ports.QuestionAnswerer
	admin    ports.IndexAdmin
	metrics  *metrics.HTTPServerMetrics
}

// NewRouter wires handlers; m may be nil, in which case /metrics is not served.
func NewRouter(
	cfg config.Config,
	uploads Uploader,
	answerer ports.QuestionAnswerer,
	admin ports.IndexAdmin,
	m *metrics.HTTPServerMetrics,
) *Router {
	return &Router{
		cfg:      cfg,
		uploads:  uploads,
		answerer: answerer,
		admin:    admin,
		metrics:  m,
	}
}

func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /v1/index", rt.createIndex)
	api.HandleFunc("DELETE /v1/index", rt.clearIndex)
	api.HandleFunc("GET /v1/index", rt.listRecords)
	api.HandleFunc("GET /v1/index/{hash}", rt.getRecord)
	api.HandleFunc("POST /v1/upload", rt.upload)
	api.HandleFunc("POST /v1/rag/query", rt.queryRAG)

	var onRateLimited, onOverloaded func()
	if rt.metrics != nil {
		onRateLimited = func() { rt.metrics.RecordRejected(serviceName, "rate_limit") }
		onOverloaded = func() { rt.metrics.RecordRejected(serviceName, "backpressure") }
	}
	guarded := backpressureMiddleware(api, rt.cfg.APIMaxInFlight, backpressureWait, onOverloaded)
	guarded = rateLimitMiddleware(guarded, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst, onRateLimited)

	root := http.NewServeMux()
	root.HandleFunc("GET /healthz", rt.healthz)
	if rt.metrics != nil {
		root.Handle("GET /metrics", rt.metrics.Handler())
	}
	root.Handle("/v1/", guarded)

	var handler http.Handler = root
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) createIndex(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Locator string `json:"locator"`
		Async   bool   `json:"async"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Locator) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "locator is required"})
		return
	}
	locator, err := rt.resolveLocator(req.Locator)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	start := time.Now()
	result, err := rt.uploads.SubmitLocator(r.Context(), locator, req.Async)
	if err != nil {
		rt.recordIndex("error", 0, 0)
		writeError(w, r, err)
		return
	}
	rt.writeUploadResult(w, result, time.Since(start))
}

func (rt *Router) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart form"})
		return
	}

	start := time.Now()
	file, fileHeader, err := r.FormFile("file")
	if err == nil {
		defer file.Close()
		result, err := rt.uploads.UploadFile(r.Context(), fileHeader.Filename, file)
		if err != nil {
			rt.recordIndex("error", 0, 0)
			writeError(w, r, err)
			return
		}
		rt.writeUploadResult(w, result, time.Since(start))
		return
	}

	locator := strings.TrimSpace(r.FormValue("url"))
	if locator == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' or form field 'url' is required"})
		return
	}
	locator, err = rt.resolveLocator(locator)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	async, _ := strconv.ParseBool(r.FormValue("async"))
	result, err := rt.uploads.SubmitLocator(r.Context(), locator, async)
	if err != nil {
		rt.recordIndex("error", 0, 0)
		writeError(w, r, err)
		return
	}
	rt.writeUploadResult(w, result, time.Since(start))
}

func (rt *Router) writeUploadResult(w http.ResponseWriter, result *usecase.UploadResult, elapsed time.Duration) {
	switch {
	case result.Queued:
		rt.recordIndex("queued", 0, 0)
		writeJSON(w, http.StatusAccepted, result)
	case result.Report != nil && result.Report.Skipped:
		rt.recordIndex("skipped", 0, elapsed)
		writeJSON(w, http.StatusOK, result)
	default:
		chunks := 0
		if result.Report != nil {
			chunks = result.Report.Chunks
		}
		rt.recordIndex("indexed", chunks, elapsed)
		writeJSON(w, http.StatusCreated, result)
	}
}

func (rt *Router) queryRAG(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question string `json:"question"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return
	}

	start := time.Now()
	answer, err := rt.answerer.AnswerQuestion(r.Context(), req.Question)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordRAGObservation(serviceName, answer.Pipeline, len(answer.ContextUsed), hasWebPassage(answer.ContextUsed), time.Since(start))
	}
	writeJSON(w, http.StatusOK, answer)
}

func (rt *Router) getRecord(w http.ResponseWriter, r *http.Request) {
	hash := strings.TrimSpace(r.PathValue("hash"))
	record, err := rt.admin.GetRecord(r.Context(), hash)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (rt *Router) listRecords(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	records, err := rt.admin.ListRecords(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (rt *Router) clearIndex(w http.ResponseWriter, r *http.Request) {
	if err := rt.admin.ClearAll(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (rt *Router) recordIndex(outcome string, chunks int, elapsed time.Duration) {
	if rt.metrics != nil {
		rt.metrics.RecordIndexOutcome(serviceName, outcome, chunks, elapsed)
	}
}

// resolveLocator admits http(s) URLs and files under the upload directory.
// Relative paths are taken relative to the upload directory.
func (rt *Router) resolveLocator(raw string) (string, error) {
	locator := strings.TrimSpace(raw)
	if u, err := url.Parse(locator); err == nil && u.Scheme != "" && len(u.Scheme) > 1 {
		if (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
			return locator, nil
		}
		return "", errors.New("only http and https urls are accepted")
	}

	if strings.TrimSpace(rt.cfg.UploadDir) == "" {
		return "", errors.New("local paths are not accepted")
	}
	base, err := filepath.Abs(rt.cfg.UploadDir)
	if err != nil {
		return "", errors.New("local paths are not accepted")
	}
	target := locator
	if !filepath.IsAbs(target) {
		target = filepath.Join(base, target)
	}
	target = filepath.Clean(target)
	rel, err := filepath.Rel(base, target)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.New("path must be inside the upload directory")
	}
	if resolved, err := filepath.EvalSymlinks(target); err == nil {
		if realBase, err := filepath.EvalSymlinks(base); err == nil {
			rel, err := filepath.Rel(realBase, resolved)
			if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
				return "", errors.New("path must be inside the upload directory")
			}
		}
	}
	return target, nil
}

func hasWebPassage(passages []domain.Passage) bool {
	for _, p := range passages {
		if p.Origin == domain.OriginWeb {
			return true
		}
	}
	return false
}

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	return json.NewDecoder(r.Body).Decode(out)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request_failed", "request_id", requestIDFromContext(r.Context()), "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
