package remote

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	domainerrors "github.com/jbctechsolutions/bandsync/internal/domain/errors"
	"github.com/jbctechsolutions/bandsync/internal/domain/offline"
	"github.com/jbctechsolutions/bandsync/internal/infrastructure/logging"
)

// Handler serves a MemoryStore over the API the Client speaks.
type Handler struct {
	store  *MemoryStore
	token  string
	logger *logging.Logger
	mux    *http.ServeMux
}

// HandlerOption is a functional option for configuring the Handler.
type HandlerOption func(*Handler)

// WithRequiredToken rejects requests that do not carry token as a bearer token.
func WithRequiredToken(token string) HandlerOption {
	return func(h *Handler) {
		h.token = token
	}
}

// WithHandlerLogger sets the logger.
func WithHandlerLogger(logger *logging.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// NewHandler creates a handler for store.
func NewHandler(store *MemoryStore, opts ...HandlerOption) *Handler {
	h := &Handler{
		store:  store,
		logger: logging.Discard(),
		mux:    http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(h)
	}

	h.mux.HandleFunc("GET "+EndpointItems, h.handleItems)
	h.mux.HandleFunc("POST "+EndpointMutations, h.handleMutation)
	h.mux.HandleFunc("GET "+EndpointHealth, handleHealthz)
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != EndpointHealth && !h.authorized(r) {
		writeError(w, http.StatusUnauthorized, domainerrors.CodeAuthorization, "missing or invalid bearer token")
		return
	}
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) authorized(r *http.Request) bool {
	if h.token == "" {
		return true
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && token == h.token
}

func (h *Handler) handleItems(w http.ResponseWriter, r *http.Request) {
	scope, err := offline.NewScopeKey(r.PathValue("type"), r.PathValue("owner"))
	if err != nil {
		writeError(w, http.StatusBadRequest, domainerrors.CodeValidation, err.Error())
		return
	}

	items, err := h.store.Fetch(r.Context(), scope)
	if err != nil {
		h.logger.WarnContext(r.Context(), "fetch failed", "scope", scope.String(), "error", err.Error())
		writeSyncError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ItemsResponse{Scope: scope.String(), Items: items})
}

func (h *Handler) handleMutation(w http.ResponseWriter, r *http.Request) {
	var req MutationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, domainerrors.CodeSerialization, err.Error())
		return
	}

	key := r.Header.Get(HeaderIdempotencyKey)
	switch {
	case req.ID == "":
		req.ID = key
	case key != "" && key != req.ID:
		writeError(w, http.StatusBadRequest, domainerrors.CodeValidation,
			fmt.Sprintf("idempotency key %q does not match mutation id %q", key, req.ID))
		return
	}
	if req.ID == "" || req.EntityID == "" {
		writeError(w, http.StatusBadRequest, domainerrors.CodeValidation, "id and entity_id are required")
		return
	}

	m, err := fromRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, domainerrors.CodeValidation, err.Error())
		return
	}

	duplicate, err := h.store.apply(r.Context(), m)
	if err != nil {
		h.logger.WarnContext(r.Context(), "apply failed",
			"scope", m.Scope.String(),
			"mutation_id", m.ID,
			"error", err.Error(),
		)
		writeSyncError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MutationResponse{ID: m.ID, Duplicate: duplicate})
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HTTPStatus maps an error code onto the status the Client maps back.
func HTTPStatus(code domainerrors.ErrorCode) int {
	switch code {
	case domainerrors.CodeAuthorization:
		return http.StatusForbidden
	case domainerrors.CodeNotFound:
		return http.StatusNotFound
	case domainerrors.CodeValidation:
		return http.StatusUnprocessableEntity
	case domainerrors.CodeSerialization:
		return http.StatusBadRequest
	default:
		return http.StatusServiceUnavailable
	}
}

func writeSyncError(w http.ResponseWriter, err error) {
	code := domainerrors.CodeOf(err)
	message := err.Error()
	var se *domainerrors.SyncError
	if domainerrors.As(err, &se) {
		message = se.Message
	}
	writeError(w, HTTPStatus(code), code, message)
}

func writeError(w http.ResponseWriter, status int, code domainerrors.ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorDetail{Code: string(code), Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
