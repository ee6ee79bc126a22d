package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/JakeFAU/webfetch-archive/internal/archive"
	"github.com/JakeFAU/webfetch-archive/internal/config"
	"github.com/JakeFAU/webfetch-archive/internal/metrics"
	"github.com/JakeFAU/webfetch-archive/internal/webfetch"
)

// Fetcher runs the fetch pipeline for one URL.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (webfetch.Outcome, error)
}

// ArchiveReader reads archived payloads.
type ArchiveReader interface {
	Read(ctx context.Context, candidates []string) (archive.Payload, string, error)
}

// Pinger reports whether a downstream dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ServiceInfo describes one operation exposed by the server.
type ServiceInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Services lists the operations advertised by GET /v1/services.
var Services = []ServiceInfo{
	{
		Name:        "fetch_plain_text",
		Description: "Fetch a URL and return its readable text and links, falling back to the archive when the live fetch fails.",
	},
	{
		Name:        "echo",
		Description: "Echo a message back to the caller.",
	},
}

const archiveLookupTimeout = 3 * time.Second

// Server wires HTTP handlers to the fetch pipeline.
type Server struct {
	router  chi.Router
	fetcher Fetcher
	archive ArchiveReader
	ready   Pinger
	cfg     config.Config
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes. archive and ready
// may be nil.
func NewServer(
	fetcher Fetcher,
	archive ArchiveReader,
	ready Pinger,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		fetcher: fetcher,
		archive: archive,
		ready:   ready,
		cfg:     cfg,
		logger:  logger,
	}
	timeout := cfg.RequestTimeout()
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(timeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Post("/fetch", s.fetch)
		r.Get("/archive", s.lookupArchive)
		r.Post("/echo", s.echo)
		r.Get("/services", s.services)
	})

	s.router = r
	return s
}

// Handler returns the traced router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "webfetch.api")
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready.Ping(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type fetchRequest struct {
	URL string `json:"url"`
}

func (s *Server) fetch(w http.ResponseWriter, r *http.Request) {
	var req fetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	rawURL := strings.TrimSpace(req.URL)
	if rawURL == "" {
		writeError(w, http.StatusBadRequest, "url required")
		return
	}

	out, err := s.fetcher.Fetch(r.Context(), rawURL)
	if err != nil {
		body := map[string]any{"error": err.Error()}
		var fetchErr *webfetch.FetchError
		if errors.As(err, &fetchErr) && fetchErr.StatusCode != 0 {
			body["status"] = fetchErr.StatusCode
		}
		writeJSON(w, http.StatusBadGateway, body)
		return
	}
	result := out.Result
	if result.Links == nil {
		result.Links = []string{}
	}
	writeJSON(w, http.StatusOK, result)
}

type archiveLookupResponse struct {
	URL        string   `json:"url"`
	Candidates []string `json:"candidates"`
	Matched    string   `json:"matched"`
	Text       string   `json:"text"`
	Links      []string `json:"links"`
}

// lookupArchive handles GET /v1/archive?url=. It returns the archived payload
// and the candidate that held it, 404 on a miss, or 503 without an archive.
func (s *Server) lookupArchive(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeError(w, http.StatusServiceUnavailable, "archive unavailable")
		return
	}
	rawURL := strings.TrimSpace(r.URL.Query().Get("url"))
	if rawURL == "" {
		writeError(w, http.StatusBadRequest, "url required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), archiveLookupTimeout)
	defer cancel()

	candidates := archive.DeriveCandidates(rawURL)
	payload, matched, err := s.archive.Read(ctx, candidates)
	if err != nil {
		if errors.Is(err, archive.ErrArchiveMiss) {
			writeError(w, http.StatusNotFound, "not archived")
			return
		}
		s.logger.Error("archive lookup failed", zap.String("url", rawURL), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "archive lookup failed")
		return
	}
	links := payload.Links
	if links == nil {
		links = []string{}
	}
	writeJSON(w, http.StatusOK, archiveLookupResponse{
		URL:        rawURL,
		Candidates: candidates,
		Matched:    matched,
		Text:       payload.Text,
		Links:      links,
	})
}

type echoRequest struct {
	Message string `json:"message"`
}

func (s *Server) echo(w http.ResponseWriter, r *http.Request) {
	var req echoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"echo": req.Message})
}

func (s *Server) services(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"services": Services})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
