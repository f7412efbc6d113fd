package httpapi

import "net/http"

// HealthHandler GET /health. Always 200 while the process serves; optional
// dependencies report separately and turn status into "degraded".
type HealthHandler struct {
	subscribers func() int
	checks      map[string]func() bool
}

func NewHealthHandler(subscribers func() int) *HealthHandler {
	return &HealthHandler{subscribers: subscribers, checks: map[string]func() bool{}}
}

// AddCheck registers a named dependency probe
func (h *HealthHandler) AddCheck(name string, ok func() bool) {
	h.checks[name] = ok
}

type healthStatus struct {
	Status       string          `json:"status"`
	Subscribers  int             `json:"subscribers"`
	Dependencies map[string]bool `json:"dependencies,omitempty"`
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	st := healthStatus{Status: "ok", Dependencies: map[string]bool{}}
	if h.subscribers != nil {
		st.Subscribers = h.subscribers()
	}

	for name, check := range h.checks {
		ok := check()
		st.Dependencies[name] = ok
		if !ok {
			st.Status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, Ok(st))
}
