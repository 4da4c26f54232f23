package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/worckguarddev/ton-trip-bonanza/internal/middleware"
	"github.com/worckguarddev/ton-trip-bonanza/internal/service"
	"github.com/worckguarddev/ton-trip-bonanza/internal/validation"
	"github.com/worckguarddev/ton-trip-bonanza/utils"
)

type Handler struct {
	service     *service.Service
	admin       *service.AdminService
	logger      *utils.Logger
	maxBodySize int64
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func NewHandler(svc *service.Service, admin *service.AdminService, logger *utils.Logger) *Handler {
	return &Handler{
		service:     svc,
		admin:       admin,
		logger:      logger,
		maxBodySize: 1 << 20,
	}
}

// decode reads a JSON body into dst and runs its validate tags. An empty
// body is allowed when optional is true.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}, optional bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			if optional {
				return nil
			}
			return &validation.ValidationError{Field: "body", Message: "is required"}
		}
		return &validation.ValidationError{Field: "body", Message: "invalid JSON in request body"}
	}
	return validation.Struct(dst)
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*middleware.Session, bool) {
	s, ok := middleware.SessionFrom(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}
	return s, true
}

func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Errorf("failed to encode response: %v", err)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, ErrorResponse{Error: message})
}

// fail maps service errors onto HTTP statuses. Unknown errors are logged and
// reported without detail.
func (h *Handler) fail(w http.ResponseWriter, err error) {
	var verr *validation.ValidationError
	switch {
	case errors.As(err, &verr):
		h.respondError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, service.ErrInvalidInput):
		h.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrCardNotFound), errors.Is(err, service.ErrNotFound):
		h.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrInsufficientFunds):
		h.respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, service.ErrNotOwner):
		h.respondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrInvalidState),
		errors.Is(err, service.ErrAlreadyReferred),
		errors.Is(err, service.ErrSelfReferral):
		h.respondError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Errorf("internal error: %v", err)
		h.respondError(w, http.StatusInternalServerError, "internal error")
	}
}
