package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// Router gorilla/mux with method matching; unmatched methods get 405
type Router struct {
	mux    *mux.Router
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    mux.NewRouter(),
		logger: logger,
	}
}

func (r *Router) Handle(path string, h http.HandlerFunc, methods ...string) {
	route := r.mux.HandleFunc(path, h)
	if len(methods) > 0 {
		route.Methods(methods...)
	}
}

// HandleHandler for plain http.Handler values (websocket, promhttp)
func (r *Router) HandleHandler(path string, h http.Handler) {
	r.mux.Handle(path, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// WithCORS allows the browser viewer on origins to call the API
func WithCORS(h http.Handler, origins []string) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Accept"},
	}).Handler(h)
}

func (r *Router) RegisterEnvLogRoutes(h *EnvLogHandler) {
	r.Handle("/env-logs", h.Create, http.MethodPost)
	r.Handle("/env-logs", h.List, http.MethodGet)
	r.Handle("/env-logs/latest", h.Latest, http.MethodGet)
	r.Handle("/env-logs/export", h.Export, http.MethodGet)
	r.Handle("/devices/{id:[0-9]+}/latest", h.DeviceLatest, http.MethodGet)
}

func (r *Router) RegisterDeviceRoutes(h *DeviceHandler) {
	r.Handle("/devices", h.List, http.MethodGet)
	r.Handle("/devices", h.Create, http.MethodPost)
}

func (r *Router) RegisterSensorRoutes(h *SensorHandler) {
	r.Handle("/sensor-list", h.List, http.MethodGet)
	r.Handle("/sensor-list", h.Create, http.MethodPost)
	r.Handle("/sensor-list/{id}", h.Rename, http.MethodPut)
	r.Handle("/sensor-list/{id}", h.Delete, http.MethodDelete)
}

func (r *Router) RegisterESPRoutes(h *ESPHandler) {
	r.Handle("/esp/learn", h.Learn, http.MethodPost)
	r.Handle("/esp/send", h.Send, http.MethodPost)
	r.Handle("/esp/result", h.Result, http.MethodPost)
}

// RegisterStreamRoutes GET /ws real-time channel
func (r *Router) RegisterStreamRoutes(ws http.Handler) {
	r.HandleHandler("/ws", ws)
}

func (r *Router) RegisterOpsRoutes(health *HealthHandler, metrics http.Handler) {
	r.Handle("/health", health.ServeHTTP, http.MethodGet)
	if metrics != nil {
		r.HandleHandler("/metrics", metrics)
	}
}
