package httpapi

import (
	"net/http"

	"wisefido-envlog/internal/models"
	"wisefido-envlog/internal/service"

	"go.uber.org/zap"
)

// ESPHandler /esp command relay
type ESPHandler struct {
	relay  *service.RelayService
	logger *zap.Logger
}

func NewESPHandler(relay *service.RelayService, logger *zap.Logger) *ESPHandler {
	return &ESPHandler{relay: relay, logger: logger}
}

type commandRequest struct {
	SensorID int64 `json:"sensorId"`
}

// Learn POST /esp/learn {sensorId}
func (h *ESPHandler) Learn(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := readBodyJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	ticket, err := h.relay.Learn(r.Context(), req.SensorID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(ticket))
}

// Send POST /esp/send {sensorId}. Any learnedIRData in the body is
// ignored; the stored signal is replayed.
func (h *ESPHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := readBodyJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	ticket, err := h.relay.Execute(r.Context(), req.SensorID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(ticket))
}

// Result POST /esp/result, completion callback from HTTP-transport devices
func (h *ESPHandler) Result(w http.ResponseWriter, r *http.Request) {
	var res models.CommandResult
	if err := readBodyJSON(r, &res); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.relay.HandleResult(r.Context(), res); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"sensorId": res.SensorID, "accepted": true}))
}
