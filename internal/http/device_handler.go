package httpapi

import (
	"net/http"
	"strconv"

	"wisefido-envlog/internal/models"
	"wisefido-envlog/internal/service"

	"go.uber.org/zap"
)

// DeviceHandler /devices
type DeviceHandler struct {
	devices *service.DeviceService
	logger  *zap.Logger
}

func NewDeviceHandler(devices *service.DeviceService, logger *zap.Logger) *DeviceHandler {
	return &DeviceHandler{devices: devices, logger: logger}
}

// List GET /devices?collect=true|false
func (h *DeviceHandler) List(w http.ResponseWriter, r *http.Request) {
	var collect *bool
	if v := r.URL.Query().Get("collect"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, h.logger, &service.ValidationError{Field: "collect", Reason: "must be true or false"})
			return
		}
		collect = &b
	}
	writeJSON(w, http.StatusOK, Ok(h.devices.List(collect)))
}

type createDeviceRequest struct {
	MacAddress     string `json:"macAddress"`
	IPAddress      string `json:"ipAddress"`
	Name           string `json:"name"`
	Location       string `json:"location"`
	CollectMetrics *bool  `json:"collectMetrics"`
}

// Create POST /devices
func (h *DeviceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createDeviceRequest
	if err := readBodyJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	d := models.Device{
		MacAddress:     req.MacAddress,
		IPAddress:      req.IPAddress,
		Name:           req.Name,
		Location:       req.Location,
		CollectMetrics: true,
	}
	if req.CollectMetrics != nil {
		d.CollectMetrics = *req.CollectMetrics
	}

	stored, err := h.devices.Register(r.Context(), d)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(stored))
}
