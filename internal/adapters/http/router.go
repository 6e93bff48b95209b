package httpadapter

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/keyword-intel/internal/config"
	"github.com/kirillkom/keyword-intel/internal/core/domain"
	"github.com/kirillkom/keyword-intel/internal/core/ports"
	"github.com/kirillkom/keyword-intel/internal/core/usecase"
	"github.com/kirillkom/keyword-intel/internal/observability/metrics"
)

const (
	serviceName         = "api"
	defaultMaxBodyBytes = 1 << 20
)

type Router struct {
	serp       ports.SerpService
	volume     ports.VolumeService
	research   ports.ResearchService
	clustering ports.ClusteringService
	metrics    *metrics.HTTPServerMetrics
	logger     *slog.Logger

	rateLimitRPS     float64
	rateLimitBurst   int
	maxInFlight      int
	backpressureWait time.Duration
	maxBodyBytes     int64
}

func NewRouter(
	cfg config.Config,
	serp ports.SerpService,
	volume ports.VolumeService,
	research ports.ResearchService,
	clustering ports.ClusteringService,
	httpMetrics *metrics.HTTPServerMetrics,
	logger *slog.Logger,
) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	maxBody := cfg.APIRequestBodyMaxSize
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	return &Router{
		serp:             serp,
		volume:           volume,
		research:         research,
		clustering:       clustering,
		metrics:          httpMetrics,
		logger:           logger,
		rateLimitRPS:     cfg.APIRateLimitRPS,
		rateLimitBurst:   cfg.APIRateLimitBurst,
		maxInFlight:      cfg.APIMaxInFlight,
		backpressureWait: cfg.APIBackpressureWait,
		maxBodyBytes:     maxBody,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}
	mux.HandleFunc("POST /v1/serp", rt.serpAnalysis)
	mux.HandleFunc("POST /v1/serp/html-analysis", rt.htmlAnalysis)
	mux.HandleFunc("POST /v1/serp/enrich", rt.enrichResult)
	mux.HandleFunc("POST /v1/volume", rt.searchVolume)
	mux.HandleFunc("POST /v1/research", rt.createResearch)
	mux.HandleFunc("GET /v1/research/{id}", rt.getResearch)
	mux.HandleFunc("POST /v1/research/{id}/clustering", rt.requestClustering)
	mux.HandleFunc("GET /v1/research/{id}/clustering", rt.clusteringStatus)

	var handler http.Handler = mux
	handler = rt.rateLimitMiddleware(handler)
	handler = backpressureMiddleware(handler, rt.maxInFlight, rt.backpressureWait)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(rt.logger, handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type serpRequest struct {
	Keywords   []string `json:"keywords"`
	Region     string   `json:"region"`
	Language   string   `json:"language"`
	MaxResults int      `json:"maxResults"`
}

func (rt *Router) serpAnalysis(w http.ResponseWriter, r *http.Request) {
	var req serpRequest
	if !rt.decodeJSON(w, r, &req) {
		return
	}
	if err := usecase.ValidateSerpRequest(req.Keywords, req.Region, req.Language); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rt.serp.GetSerpAnalysis(r.Context(), req.Keywords, req.Region, req.Language, req.MaxResults))
}

func (rt *Router) htmlAnalysis(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if !rt.decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "url is required"})
		return
	}
	analysis := rt.serp.AnalyzeHTMLContent(r.Context(), req.URL)
	if analysis == nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "html analysis failed"})
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

type enrichResponse struct {
	Analysis *domain.HTMLAnalysis `json:"analysis"`
	Merged   bool                 `json:"merged"`
	Error    string               `json:"error,omitempty"`
}

func (rt *Router) enrichResult(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Keyword  string `json:"keyword"`
		Region   string `json:"region"`
		Language string `json:"language"`
		URL      string `json:"url"`
	}
	if !rt.decodeJSON(w, r, &req) {
		return
	}
	analysis, err := rt.serp.EnrichResult(r.Context(), req.Keyword, req.Region, req.Language, req.URL)
	if err != nil {
		if analysis == nil {
			writeError(w, err)
			return
		}
		rt.logger.Warn("enrich_merge_failed", "request_id", requestIDFromContext(r.Context()), "error", err)
		writeJSON(w, http.StatusOK, enrichResponse{Analysis: analysis, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, enrichResponse{Analysis: analysis, Merged: true})
}

func (rt *Router) searchVolume(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Keywords []string `json:"keywords"`
		Region   string   `json:"region"`
		Language string   `json:"language"`
	}
	if !rt.decodeJSON(w, r, &req) {
		return
	}
	resp, err := rt.volume.GetSearchVolume(r.Context(), req.Keywords, req.Region, req.Language)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (rt *Router) createResearch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query    string   `json:"query"`
		Region   string   `json:"region"`
		Language string   `json:"language"`
		Keywords []string `json:"keywords"`
	}
	if !rt.decodeJSON(w, r, &req) {
		return
	}
	record, err := rt.research.CreateResearch(r.Context(), req.Query, req.Region, req.Language, req.Keywords)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (rt *Router) getResearch(w http.ResponseWriter, r *http.Request) {
	record, err := rt.research.GetResearch(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (rt *Router) requestClustering(w http.ResponseWriter, r *http.Request) {
	result, err := rt.clustering.RequestClustering(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusAccepted
	if result.Skipped {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}

func (rt *Router) clusteringStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	status, err := rt.clustering.PollStatus(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"researchId": id, "status": status})
}

// decodeJSON writes the 400 itself and reports whether the handler may continue.
func (rt *Router) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, rt.maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "request body too large"})
			return false
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
