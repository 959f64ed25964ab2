package risk

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/medigo-health/platform/pkg/common/errs"
	"github.com/medigo-health/platform/pkg/common/logger"
)

type HTTPHandler struct {
	service *Service
}

func NewHTTPHandler(service *Service) *HTTPHandler {
	return &HTTPHandler{service: service}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/risk/{national_id}", h.handleAssess).Methods(http.MethodPost)
	router.HandleFunc("/risk/{national_id}/latest", h.handleLatest).Methods(http.MethodGet)
	router.HandleFunc("/risk/{national_id}/history", h.handleHistory).Methods(http.MethodGet)
}

func (h *HTTPHandler) handleAssess(w http.ResponseWriter, r *http.Request) {
	nationalID := mux.Vars(r)["national_id"]

	output, err := h.service.Assess(r.Context(), nationalID)
	if err != nil {
		h.writeServiceError(w, nationalID, err)
		return
	}

	writeJSON(w, http.StatusOK, output)
}

func (h *HTTPHandler) handleLatest(w http.ResponseWriter, r *http.Request) {
	nationalID := mux.Vars(r)["national_id"]

	payload, err := h.service.Latest(r.Context(), nationalID)
	if err != nil {
		h.writeServiceError(w, nationalID, err)
		return
	}

	writeJSON(w, http.StatusOK, payload)
}

func (h *HTTPHandler) handleHistory(w http.ResponseWriter, r *http.Request) {
	nationalID := mux.Vars(r)["national_id"]

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	history, err := h.service.History(r.Context(), nationalID, limit)
	if err != nil {
		h.writeServiceError(w, nationalID, err)
		return
	}

	writeJSON(w, http.StatusOK, history)
}

func (h *HTTPHandler) writeServiceError(w http.ResponseWriter, nationalID string, err error) {
	switch {
	case errors.Is(err, ErrSubjectNotFound):
		writeError(w, http.StatusNotFound, "User not found")
	case errors.Is(err, ErrMeasurementsNotFound):
		writeError(w, http.StatusNotFound, "Missing measurements")
	case errors.Is(err, ErrNoPredictions):
		writeError(w, http.StatusNotFound, "no risk predictions recorded")
	case errs.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		logger.Log.WithError(err).WithField("national_id", nationalID).Error("risk assessment failed")
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
