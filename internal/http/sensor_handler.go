package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"wisefido-envlog/internal/service"

	"go.uber.org/zap"
)

// SensorHandler /sensor-list
type SensorHandler struct {
	sensors *service.SensorService
	logger  *zap.Logger
}

func NewSensorHandler(sensors *service.SensorService, logger *zap.Logger) *SensorHandler {
	return &SensorHandler{sensors: sensors, logger: logger}
}

// List GET /sensor-list
func (h *SensorHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Ok(h.sensors.List()))
}

type createSensorRequest struct {
	DeviceID int64           `json:"deviceId"`
	Name     string          `json:"name"`
	Data     json.RawMessage `json:"data"`
}

// Create POST /sensor-list
func (h *SensorHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSensorRequest
	if err := readBodyJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	sn, err := h.sensors.Create(r.Context(), req.DeviceID, req.Name, signalData(req.Data))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(sn))
}

type renameSensorRequest struct {
	Name string `json:"name"`
}

// Rename PUT /sensor-list/{id}
func (h *SensorHandler) Rename(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req renameSensorRequest
	if err := readBodyJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	sn, err := h.sensors.Rename(r.Context(), id, req.Name)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(sn))
}

// Delete DELETE /sensor-list/{id}
func (h *SensorHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.sensors.Delete(r.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"id": id, "deleted": true}))
}

// signalData keeps learned payloads verbatim: a JSON string is unquoted,
// anything else is stored as its JSON text.
func signalData(raw json.RawMessage) string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return trimmed
}
