package bridge

import (
	"encoding/json"
	"net/http"

	"github.com/askrelay/daemon/internal/api"
	"github.com/askrelay/daemon/internal/logging"
	"github.com/askrelay/daemon/internal/questions"
)

// Handlers exposes the agent-hook HTTP endpoints.
type Handlers struct {
	bridge *Bridge
	logger *logging.Logger
}

// NewHandlers creates hook handlers backed by the bridge.
func NewHandlers(bridge *Bridge, logger *logging.Logger) *Handlers {
	return &Handlers{bridge: bridge, logger: logger}
}

// Register registers the hook endpoints on the server. Unknown POST paths
// fall through to notify, which older hook scripts rely on.
func (h *Handlers) Register(server *api.Server) {
	server.Router().Post("/notify", h.handleNotify)
	server.Router().Post("/stop", h.handleStop)
	server.Router().Post("/*", h.handleNotify)
}

type notifyRequest struct {
	SessionID    string `json:"session_id"`
	TmuxLocation string `json:"tmux_location"`
	Cwd          string `json:"cwd"`
	ToolInput    struct {
		Questions []questions.SubQuestion `json:"questions"`
	} `json:"tool_input"`
}

type stopRequest struct {
	TmuxLocation string `json:"tmux_location"`
	StopReason   string `json:"stop_reason"`
}

// handleNotify handles an AskUserQuestion hook: a structured question set
// that needs options displayed in the chat.
func (h *Handlers) handleNotify(w http.ResponseWriter, r *http.Request) {
	var req notifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid notify payload", "error", err)
		api.WriteError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if len(req.ToolInput.Questions) == 0 {
		h.logger.Warn("notify with no questions")
		api.WriteError(w, http.StatusBadRequest, "no questions provided")
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = "unknown"
	}
	tmuxLocation := req.TmuxLocation
	if tmuxLocation == "" {
		tmuxLocation = "unknown"
	}

	questionID, err := h.bridge.RegisterQuestion(r.Context(), sessionID, tmuxLocation, req.Cwd, req.ToolInput.Questions)
	if err != nil {
		h.logger.Error("question registration failed", "error", err)
		api.WriteError(w, http.StatusBadGateway, err.Error())
		return
	}

	api.WriteJSON(w, http.StatusOK, map[string]string{
		"status":      "sent",
		"question_id": questionID,
	})
}

// handleStop handles a Stop hook: the agent finished its turn and waits for
// free-text input.
func (h *Handlers) handleStop(w http.ResponseWriter, r *http.Request) {
	var req stopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid stop payload", "error", err)
		api.WriteError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	tmuxLocation := req.TmuxLocation
	if tmuxLocation == "" {
		tmuxLocation = "unknown"
	}

	stopID, err := h.bridge.RegisterWaiting(r.Context(), tmuxLocation, req.StopReason)
	if err != nil {
		h.logger.Error("stop registration failed", "error", err)
		api.WriteError(w, http.StatusBadGateway, err.Error())
		return
	}

	api.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "sent",
		"stop_id": stopID,
	})
}
