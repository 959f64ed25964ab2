package recordstore

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/medigo-health/platform/pkg/common/logger"
)

// writableGroupings are the chart sections external systems may push into.
// Risk predictions are written only by the assessment pipeline itself.
var writableGroupings = map[string]bool{
	GroupingHypertension: true,
	GroupingBiomarkers:   true,
	GroupingMedications:  true,
}

type HTTPHandler struct {
	store   *Store
	maxBody int64
}

func NewHTTPHandler(store *Store, maxBody int64) *HTTPHandler {
	return &HTTPHandler{store: store, maxBody: maxBody}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/records/{national_id}/measurements", h.handlePutMeasurements).Methods(http.MethodPut)
	router.HandleFunc("/records/{national_id}/{grouping}", h.handleAppendRecord).Methods(http.MethodPost)
	router.HandleFunc("/records/{national_id}/{grouping}/latest", h.handleGetLatest).Methods(http.MethodGet)
}

type recordRequest struct {
	RecordedAt string                 `json:"recorded_at,omitempty"`
	Payload    map[string]interface{} `json:"payload"`
}

func (r recordRequest) recordedAt() (time.Time, error) {
	if r.RecordedAt == "" {
		return time.Now().UTC(), nil
	}
	return time.Parse(time.RFC3339, r.RecordedAt)
}

func (h *HTTPHandler) handlePutMeasurements(w http.ResponseWriter, r *http.Request) {
	nationalID := mux.Vars(r)["national_id"]

	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	recordedAt, err := req.recordedAt()
	if err != nil {
		http.Error(w, "invalid recorded_at, use RFC3339", http.StatusBadRequest)
		return
	}

	if err := h.store.Put(r.Context(), nationalID, GroupingMeasurements, MeasurementsDocID, req.Payload, recordedAt); err != nil {
		logger.Log.WithError(err).Error("failed to store measurements")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) handleAppendRecord(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	nationalID := vars["national_id"]
	grouping := vars["grouping"]

	if !writableGroupings[grouping] {
		http.Error(w, "unknown record grouping", http.StatusBadRequest)
		return
	}

	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	recordedAt, err := req.recordedAt()
	if err != nil {
		http.Error(w, "invalid recorded_at, use RFC3339", http.StatusBadRequest)
		return
	}

	docID := uuid.New().String()
	if err := h.store.Append(r.Context(), nationalID, grouping, docID, req.Payload, recordedAt); err != nil {
		logger.Log.WithError(err).Error("failed to append clinical record")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"doc_id": docID})
}

func (h *HTTPHandler) handleGetLatest(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	payload, err := h.store.Latest(r.Context(), vars["national_id"], vars["grouping"])
	if err != nil {
		if errors.Is(err, ErrDocumentNotFound) {
			http.Error(w, "no records found", http.StatusNotFound)
			return
		}
		logger.Log.WithError(err).Error("failed to fetch latest record")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}

func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request) (recordRequest, bool) {
	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}
	var req recordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Log.WithError(err).Warn("invalid record payload")
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return recordRequest{}, false
	}
	if len(req.Payload) == 0 {
		http.Error(w, "missing payload", http.StatusBadRequest)
		return recordRequest{}, false
	}
	return req, true
}
