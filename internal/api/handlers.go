package api

import (
	"net/http"
	"time"

	"github.com/askrelay/daemon/internal/questions"
)

// Handlers provides the daemon's introspection endpoints.
type Handlers struct {
	store     *questions.Store
	version   string
	startTime time.Time
}

// NewHandlers creates introspection handlers.
func NewHandlers(store *questions.Store, version string) *Handlers {
	return &Handlers{
		store:     store,
		version:   version,
		startTime: time.Now(),
	}
}

// HealthResponse is the health endpoint payload.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
	Pending int    `json:"pending_questions"`
}

// Register registers the handlers on the server.
func (h *Handlers) Register(server *Server) {
	server.Router().Get("/health", h.handleHealth)
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: h.version,
		Uptime:  time.Since(h.startTime).Round(time.Second).String(),
		Pending: h.store.Len(),
	})
}
