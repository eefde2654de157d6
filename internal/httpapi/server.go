package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"llamad/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	ListModels() []types.Model
	Status() types.StatusResponse
	Ready() bool
	Infer(ctx context.Context, req types.InferRequest, w io.Writer, flush func()) error
	Embeddings(ctx context.Context, req types.EmbeddingsRequest) (types.EmbeddingsResponse, error)
	SaveState(ctx context.Context, modelID, name string) (types.StateResponse, error)
	LoadState(ctx context.Context, modelID, name string) (types.StateResponse, error)
	Unload(modelID string) error
	Switch(ctx context.Context, modelID string) (string, error)
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(MetricsMiddleware)
	r.Use(middleware.Recoverer)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
			ExposedHeaders: []string{"X-Request-Id", "X-Stream-Id"},
			MaxAge:         300,
		}))
	}
	// Compression for JSON endpoints; NDJSON is not in the default type list.
	r.Use(middleware.Compress(5))
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	h := &handlers{svc: svc}
	r.Get("/models", h.models)
	r.Get("/status", h.status)
	r.Post("/infer", h.infer)
	r.Post("/embeddings", h.embeddings)
	r.Post("/switch", h.switchModel)
	r.Route("/models/{id}", func(r chi.Router) {
		r.Post("/unload", h.unload)
		r.Post("/state/save", h.saveState)
		r.Post("/state/load", h.loadState)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("loading"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	MountSwagger(r)
	return r
}

type handlers struct {
	svc Service
}

// decodeJSON enforces the content type and body limit and decodes into v.
// It writes the error response itself and reports whether decoding succeeded.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		// Oversized bodies are reported as 400 too, to avoid leaking the limit.
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// @Summary      List models
// @Tags         models
// @Produce      json
// @Success      200 {object} types.ModelsResponse
// @Router       /models [get]
func (h *handlers) models(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.ModelsResponse{Models: h.svc.ListModels()})
}

// @Summary      Manager status
// @Tags         status
// @Produce      json
// @Success      200 {object} types.StatusResponse
// @Router       /status [get]
func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Status())
}

// streamWriter remembers whether the NDJSON stream has started so a late
// error is reported in-band instead of as a second status line.
type streamWriter struct {
	w       io.Writer
	started bool
}

func (s *streamWriter) Write(p []byte) (int, error) {
	s.started = true
	return s.w.Write(p)
}

// @Summary      Generate a completion
// @Description  Streams one {"token":...} NDJSON line per generated token and a final {"done":true,...} line.
// @Tags         inference
// @Accept       json
// @Produce      application/x-ndjson
// @Param        request body types.InferRequest true "Inference request"
// @Success      200
// @Failure      400 {object} types.ErrorResponse
// @Failure      404 {object} types.ErrorResponse
// @Failure      429 {object} types.ErrorResponse
// @Failure      503 {object} types.ErrorResponse
// @Router       /infer [post]
func (h *handlers) infer(w http.ResponseWriter, r *http.Request) {
	var req types.InferRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	// Basic validation
	if strings.TrimSpace(req.Prompt) == "" {
		writeJSONError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	streamID := uuid.NewString()
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("X-Stream-Id", streamID)
	var flush func()
	if f, ok := w.(http.Flusher); ok {
		flush = f.Flush
	}
	lvl := requestLogLevel(r)
	sw := &streamWriter{w: w}
	var out io.Writer = sw
	if lvl >= LevelDebug {
		out = io.MultiWriter(sw, &loggingLineWriter{log: zlog.With().Str("stream_id", streamID).Logger()})
	}
	start := time.Now()
	requestEvent(r, lvl, false).Str("model", req.Model).Str("stream_id", streamID).Msg("infer start")

	ctx, cancel := engineContext(r.Context())
	defer cancel()
	err := h.svc.Infer(ctx, req, out, flush)
	switch {
	case err == nil:
		requestEvent(r, lvl, false).Int("status", http.StatusOK).Dur("dur", time.Since(start)).Msg("infer end")
	case r.Context().Err() != nil || serverBaseCtx.Err() != nil:
		// Client went away or the server is shutting down; nobody is listening.
		requestEvent(r, lvl, true).Dur("dur", time.Since(start)).Err(err).Msg("infer aborted")
	case sw.started:
		status := statusFor(err)
		b, _ := json.Marshal(types.ErrorResponse{Error: err.Error(), Code: status})
		_, _ = w.Write(append(b, '\n'))
		if flush != nil {
			flush()
		}
		requestEvent(r, lvl, true).Int("status", status).Dur("dur", time.Since(start)).Err(err).Msg("infer failed mid-stream")
	default:
		status := writeServiceError(w, err)
		requestEvent(r, lvl, true).Int("status", status).Dur("dur", time.Since(start)).Err(err).Msg("infer end")
	}
}

// @Summary      Compute an embedding
// @Tags         inference
// @Accept       json
// @Produce      json
// @Param        request body types.EmbeddingsRequest true "Embeddings request"
// @Success      200 {object} types.EmbeddingsResponse
// @Failure      400 {object} types.ErrorResponse
// @Failure      409 {object} types.ErrorResponse
// @Router       /embeddings [post]
func (h *handlers) embeddings(w http.ResponseWriter, r *http.Request) {
	var req types.EmbeddingsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx, cancel := engineContext(r.Context())
	defer cancel()
	resp, err := h.svc.Embeddings(ctx, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// @Summary      Load a model in the background
// @Tags         models
// @Accept       json
// @Produce      json
// @Param        request body types.SwitchRequest true "Model to load"
// @Success      202 {object} types.SwitchResponse
// @Failure      404 {object} types.ErrorResponse
// @Router       /switch [post]
func (h *handlers) switchModel(w http.ResponseWriter, r *http.Request) {
	var req types.SwitchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	op, err := h.svc.Switch(r.Context(), req.Model)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, types.SwitchResponse{OpID: op, Model: req.Model})
}

// @Summary      Unload a model
// @Tags         models
// @Param        id path string true "Model id"
// @Success      204
// @Failure      404 {object} types.ErrorResponse
// @Failure      429 {object} types.ErrorResponse
// @Router       /models/{id}/unload [post]
func (h *handlers) unload(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Unload(chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// @Summary      Save engine state
// @Tags         state
// @Accept       json
// @Produce      json
// @Param        id path string true "Model id"
// @Param        request body types.StateRequest true "State file name"
// @Success      200 {object} types.StateResponse
// @Failure      400 {object} types.ErrorResponse
// @Router       /models/{id}/state/save [post]
func (h *handlers) saveState(w http.ResponseWriter, r *http.Request) {
	h.state(w, r, h.svc.SaveState)
}

// @Summary      Restore engine state
// @Tags         state
// @Accept       json
// @Produce      json
// @Param        id path string true "Model id"
// @Param        request body types.StateRequest true "State file name"
// @Success      200 {object} types.StateResponse
// @Failure      400 {object} types.ErrorResponse
// @Failure      500 {object} types.ErrorResponse
// @Router       /models/{id}/state/load [post]
func (h *handlers) loadState(w http.ResponseWriter, r *http.Request) {
	h.state(w, r, h.svc.LoadState)
}

func (h *handlers) state(w http.ResponseWriter, r *http.Request, op func(context.Context, string, string) (types.StateResponse, error)) {
	var req types.StateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()
	resp, err := op(ctx, chi.URLParam(r, "id"), req.Name)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
