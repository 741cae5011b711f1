// Package proxy exposes the backend's download API to browsers through one
// configurable surface, replacing the per-environment route handlers the web
// clients used to carry. It forwards creation and status calls, relays the
// artifact stream, and adds rate limiting and metrics on the way through.
package proxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hferr/grabvid/internal/backend"
	"github.com/hferr/grabvid/internal/model"
	"github.com/hferr/grabvid/internal/platform"
)

// Server proxies download API calls to the configured backend.
type Server struct {
	Backend *backend.Client
	Limiter *RateLimiter
	Logger  *slog.Logger
}

func (s *Server) log() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Routes builds the router. The creation endpoint sits behind the rate
// limiter; status polls and file fetches do not, so an in-flight session is
// never starved by its own polling.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(s.requestID)

	r.Route("/api/v1", func(r chi.Router) {
		if s.Limiter != nil {
			r.With(s.Limiter.Middleware).Post("/download", s.handleCreate)
		} else {
			r.Post("/download", s.handleCreate)
		}
		r.Get("/status/{sessionID}", s.handleStatus)
		r.Get("/file/{sessionID}", s.handleFile)
	})

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

type createRequest struct {
	URL      string `json:"url"`
	Platform string `json:"platform"`
	Quality  string `json:"quality"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		requestsTotal.WithLabelValues("download", "400").Inc()
		writeJSONError(w, http.StatusBadRequest, "request body must be JSON with url, platform, quality")
		return
	}

	// The platform field is optional; a recognizable URL fills it in. An URL
	// no platform matches is rejected here, before it costs an upstream call.
	if req.Platform == "" {
		plat, err := platform.Detect(req.URL)
		if err != nil {
			requestsTotal.WithLabelValues("download", "422").Inc()
			writeValidationError(w, "url is not a supported video URL")
			return
		}
		req.Platform = string(plat)
	}
	if _, err := model.ParseQuality(req.Quality); err != nil {
		requestsTotal.WithLabelValues("download", "422").Inc()
		writeValidationError(w, "quality must be high, medium, or low")
		return
	}

	resp, err := s.Backend.CreateDownload(r.Context(), req.URL, req.Platform, req.Quality)
	if err != nil {
		s.relayError(w, "download", err)
		return
	}

	requestsTotal.WithLabelValues("download", "200").Inc()
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if _, err := uuid.Parse(sessionID); err != nil && len(sessionID) < 8 {
		requestsTotal.WithLabelValues("status", "400").Inc()
		writeJSONError(w, http.StatusBadRequest, "malformed session id")
		return
	}

	resp, err := s.Backend.GetStatus(r.Context(), sessionID)
	if err != nil {
		s.relayError(w, "status", err)
		return
	}

	requestsTotal.WithLabelValues("status", "200").Inc()
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	fs, err := s.Backend.FetchFile(r.Context(), sessionID)
	if err != nil {
		s.relayError(w, "file", err)
		return
	}
	defer fs.Body.Close()

	contentType := fs.ContentType
	if contentType == "" {
		contentType = "video/mp4"
	}
	w.Header().Set("Content-Type", contentType)
	if fs.ContentLength > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(fs.ContentLength, 10))
	}
	if fs.Filename != "" {
		w.Header().Set("Content-Disposition",
			mime.FormatMediaType("attachment", map[string]string{"filename": fs.Filename}))
	}

	n, err := io.Copy(w, fs.Body)
	streamedBytesTotal.Add(float64(n))
	if err != nil {
		// Headers are gone; all that is left is logging the broken relay.
		s.log().Warn("file relay interrupted", "session", sessionID, "bytes", n, "error", err)
		return
	}
	requestsTotal.WithLabelValues("file", "200").Inc()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// relayError maps a backend client failure onto the proxy's response: API
// errors pass through with their original status and body shape, transport
// failures become a 502.
func (s *Server) relayError(w http.ResponseWriter, route string, err error) {
	upstreamErrorsTotal.WithLabelValues(route).Inc()

	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		requestsTotal.WithLabelValues(route, strconv.Itoa(apiErr.StatusCode)).Inc()
		body := map[string]any{"detail": apiErr.Detail}
		if apiErr.Detail == "" {
			body["detail"] = fmt.Sprintf("backend returned status %d", apiErr.StatusCode)
		}
		if len(apiErr.ValidationErrors) > 0 {
			msgs := make([]map[string]string, 0, len(apiErr.ValidationErrors))
			for _, m := range apiErr.ValidationErrors {
				msgs = append(msgs, map[string]string{"msg": m})
			}
			body["validation_errors"] = msgs
		}
		writeJSON(w, apiErr.StatusCode, body)
		return
	}

	s.log().Error("upstream request failed", "route", route, "error", err)
	requestsTotal.WithLabelValues(route, "502").Inc()
	writeJSONError(w, http.StatusBadGateway, "backend unreachable")
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeValidationError(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
		"detail":            "validation failed",
		"validation_errors": []map[string]string{{"msg": msg}},
	})
}
