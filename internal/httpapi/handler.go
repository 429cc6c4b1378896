package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/fangwd/restup/internal/engine"
	"github.com/fangwd/restup/internal/record"
	"github.com/fangwd/restup/internal/request"
)

// DefaultMaxBodyBytes caps a POST body.
const DefaultMaxBodyBytes = 64 << 20

// RequestIDHeader carries the id the handler logs each request under.
const RequestIDHeader = "X-Request-Id"

// Backend is the engine surface the handler needs.
type Backend interface {
	Get(ctx context.Context, d *request.Descriptor) ([]record.Row, error)
	Claim(ctx context.Context, d *request.Descriptor) ([]record.Row, error)
	Update(ctx context.Context, d *request.Descriptor) ([]any, error)
}

// Handler is the HTTP front end.
type Handler struct {
	backend      Backend
	logger       *slog.Logger
	maxBodyBytes int64
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = l
	}
}

// WithMaxBodyBytes caps POST bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(h *Handler) {
		h.maxBodyBytes = n
	}
}

// NewHandler creates a handler over b.
func NewHandler(b Backend, opts ...Option) *Handler {
	h := &Handler{
		backend:      b,
		logger:       slog.Default(),
		maxBodyBytes: DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// errorBody is the JSON shape of a failed request.
type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	Row   *int   `json:"row,omitempty"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.Header.Get(RequestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	w.Header().Set(RequestIDHeader, id)
	logger := h.logger.With("request_id", id, "method", r.Method, "path", r.URL.Path)

	defer func() {
		if v := recover(); v != nil {
			var fault *engine.ConsistencyFault
			if err, ok := v.(error); ok && errors.As(err, &fault) {
				logger.Error("request aborted by consistency fault", "error", fault)
				h.writeError(w, logger, http.StatusInternalServerError, fault)
				return
			}
			panic(v)
		}
	}()

	switch r.Method {
	case http.MethodGet:
		h.serveRead(w, r, logger)
	case http.MethodPost:
		h.serveWrite(w, r, logger)
	default:
		w.Header().Set("Allow", "GET, POST")
		h.writeError(w, logger, http.StatusMethodNotAllowed, errors.New("method not allowed"))
	}
}

func (h *Handler) serveRead(w http.ResponseWriter, r *http.Request, logger *slog.Logger) {
	d, err := request.Parse(r.URL)
	if err != nil {
		h.writeError(w, logger, http.StatusBadRequest, err)
		return
	}

	var rows []record.Row
	if d.IsClaim() {
		rows, err = h.backend.Claim(r.Context(), d)
	} else {
		rows, err = h.backend.Get(r.Context(), d)
	}
	if err != nil {
		h.writeError(w, logger, statusFor(err), err)
		return
	}
	if rows == nil {
		rows = []record.Row{}
	}
	logger.Debug("read", "table", d.Table, "rows", len(rows), "claim", d.IsClaim())
	h.writeJSON(w, logger, http.StatusOK, rows)
}

func (h *Handler) serveWrite(w http.ResponseWriter, r *http.Request, logger *slog.Logger) {
	d, err := request.Parse(r.URL)
	if err != nil {
		h.writeError(w, logger, http.StatusBadRequest, err)
		return
	}
	if d.IsClaim() || d.HasRowID {
		h.writeError(w, logger, http.StatusBadRequest, errors.New("update: and row ids are read-only"))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, logger, http.StatusRequestEntityTooLarge, err)
			return
		}
		h.writeError(w, logger, http.StatusBadRequest, err)
		return
	}
	if err := d.SetBody(body); err != nil {
		h.writeError(w, logger, http.StatusBadRequest, err)
		return
	}

	ids, err := h.backend.Update(r.Context(), d)
	if err != nil {
		h.writeError(w, logger, statusFor(err), err)
		return
	}
	logger.Debug("write", "table", d.Table, "rows", len(d.Rows))
	h.writeJSON(w, logger, http.StatusOK, ids)
}

// statusFor maps an engine error kind to an HTTP status.
func statusFor(err error) int {
	if errors.Is(err, request.ErrInvalid) {
		return http.StatusBadRequest
	}
	kind, ok := engine.KindOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch kind {
	case engine.KindSchema:
		return http.StatusNotFound
	case engine.KindValidation, engine.KindQuery:
		return http.StatusBadRequest
	case engine.KindConstraint:
		return http.StatusConflict
	case engine.KindTransport:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (h *Handler) writeError(w http.ResponseWriter, logger *slog.Logger, status int, err error) {
	body := errorBody{Error: err.Error()}
	var ee *engine.Error
	if errors.As(err, &ee) {
		body.Kind = string(ee.Kind)
		if ee.Row >= 0 {
			row := ee.Row
			body.Row = &row
		}
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", status, "error", err)
	} else {
		logger.Info("request rejected", "status", status, "error", err)
	}
	h.writeJSON(w, logger, status, body)
}

func (h *Handler) writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("write response", "error", err)
	}
}
