package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"wisefido-envlog/internal/service"

	"go.uber.org/zap"
)

// EnvLogHandler /env-logs
type EnvLogHandler struct {
	ingest       *service.IngestService
	defaultLimit int
	logger       *zap.Logger
}

func NewEnvLogHandler(ingest *service.IngestService, defaultLimit int, logger *zap.Logger) *EnvLogHandler {
	if defaultLimit <= 0 {
		defaultLimit = 28
	}
	return &EnvLogHandler{ingest: ingest, defaultLimit: defaultLimit, logger: logger}
}

// Create POST /env-logs
func (h *EnvLogHandler) Create(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, h.logger, &service.ValidationError{Reason: "unreadable body"})
		return
	}
	reading, err := h.ingest.IngestRaw(r.Context(), body, "")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(reading))
}

// List GET /env-logs?limit=N, newest first
func (h *EnvLogHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r.URL.Query().Get("limit"), h.defaultLimit)
	writeJSON(w, http.StatusOK, Ok(h.ingest.Recent(limit)))
}

// Latest GET /env-logs/latest
func (h *EnvLogHandler) Latest(w http.ResponseWriter, r *http.Request) {
	reading, ok := h.ingest.Latest()
	if !ok {
		writeJSON(w, http.StatusNotFound, Fail("no readings yet"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(reading))
}

// DeviceLatest GET /devices/{id}/latest
func (h *EnvLogHandler) DeviceLatest(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	reading, err := h.ingest.LatestForDevice(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(reading))
}

// Export GET /env-logs/export?limit=N as an xlsx download
func (h *EnvLogHandler) Export(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r.URL.Query().Get("limit"), h.defaultLimit)
	data, err := GenerateReadingsExport(h.ingest.Recent(limit))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	filename := fmt.Sprintf("env-logs-%s.xlsx", time.Now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
