package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/funcionariopro/internal/billing"
	"github.com/wolfman30/funcionariopro/internal/chat"
	"github.com/wolfman30/funcionariopro/internal/profile"
	"github.com/wolfman30/funcionariopro/internal/publish"
	"github.com/wolfman30/funcionariopro/internal/simulation"
	"github.com/wolfman30/funcionariopro/internal/wizard"
	"github.com/wolfman30/funcionariopro/pkg/logging"
)

// Wizard is satisfied by *wizard.Service.
type Wizard interface {
	Create(ctx context.Context, templateKey string) (wizard.View, error)
	Get(ctx context.Context, sessionID string) (wizard.View, error)
	UpdateProfile(ctx context.Context, sessionID string, patch profile.Patch) (wizard.View, error)
	Calibrate(ctx context.Context, sessionID, message string) (wizard.CalibrationResult, error)
	CalibrationTranscript(ctx context.Context, sessionID string) ([]chat.Entry, error)
	SetStep(ctx context.Context, sessionID string, step wizard.Step) (wizard.View, error)
	StartSimulation(ctx context.Context, sessionID string) (simulation.Snapshot, error)
	Simulation(ctx context.Context, sessionID string) (simulation.Snapshot, error)
	Ask(ctx context.Context, sessionID, question string) (simulation.FollowUpResult, error)
	Chat(ctx context.Context, sessionID, message string) (chat.Reply, error)
	ChatTranscript(ctx context.Context, sessionID string) ([]chat.Entry, error)
	ClearChat(ctx context.Context, sessionID string) ([]chat.Entry, error)
	Checkout(ctx context.Context, sessionID, plan string) (billing.Checkout, error)
	Publish(ctx context.Context, sessionID string, req publish.Request) (publish.PublishedAgent, error)
	Close(ctx context.Context, sessionID string) error
}

// WizardHandler serves the per-session wizard endpoints.
type WizardHandler struct {
	wizard Wizard
	logger *logging.Logger
}

func NewWizardHandler(w Wizard, logger *logging.Logger) *WizardHandler {
	if w == nil {
		panic("handlers: wizard cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &WizardHandler{wizard: w, logger: logger}
}

// Routes mounts under /api/sessions. stream, when set, serves the
// simulation websocket.
func (h *WizardHandler) Routes(stream http.HandlerFunc) chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.CreateSession)
	r.Route("/{sessionID}", func(r chi.Router) {
		r.Get("/", h.GetSession)
		r.Delete("/", h.CloseSession)
		r.Patch("/profile", h.UpdateProfile)
		r.Get("/calibrate", h.CalibrationTranscript)
		r.Post("/calibrate", h.Calibrate)
		r.Post("/step", h.SetStep)
		r.Post("/simulation", h.StartSimulation)
		r.Get("/simulation", h.GetSimulation)
		r.Post("/simulation/questions", h.Ask)
		if stream != nil {
			r.Get("/simulation/stream", stream)
		}
		r.Get("/chat", h.ChatTranscript)
		r.Post("/chat", h.Chat)
		r.Delete("/chat", h.ClearChat)
		r.Post("/checkout", h.Checkout)
		r.Post("/publish", h.Publish)
	})
	return r
}

func sessionID(r *http.Request) string {
	return chi.URLParam(r, "sessionID")
}

type createSessionRequest struct {
	Template string `json:"template"`
}

func (h *WizardHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	v, err := h.wizard.Create(r.Context(), req.Template)
	if err != nil {
		writeError(w, h.logger, err, "op", "create_session")
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (h *WizardHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	v, err := h.wizard.Get(r.Context(), sessionID(r))
	if err != nil {
		writeError(w, h.logger, err, "op", "get_session", "session_id", sessionID(r))
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *WizardHandler) CloseSession(w http.ResponseWriter, r *http.Request) {
	if err := h.wizard.Close(r.Context(), sessionID(r)); err != nil {
		writeError(w, h.logger, err, "op", "close_session", "session_id", sessionID(r))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *WizardHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var patch profile.Patch
	if err := decodeJSON(r, &patch); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	v, err := h.wizard.UpdateProfile(r.Context(), sessionID(r), patch)
	if err != nil {
		writeError(w, h.logger, err, "op", "update_profile", "session_id", sessionID(r))
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type messageRequest struct {
	Message string `json:"message"`
}

func (h *WizardHandler) Calibrate(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := h.wizard.Calibrate(r.Context(), sessionID(r), req.Message)
	if err != nil {
		writeError(w, h.logger, err, "op", "calibrate", "session_id", sessionID(r))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *WizardHandler) CalibrationTranscript(w http.ResponseWriter, r *http.Request) {
	entries, err := h.wizard.CalibrationTranscript(r.Context(), sessionID(r))
	if err != nil {
		writeError(w, h.logger, err, "op", "calibration_transcript", "session_id", sessionID(r))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": entries})
}

type stepRequest struct {
	Step wizard.Step `json:"step"`
}

func (h *WizardHandler) SetStep(w http.ResponseWriter, r *http.Request) {
	var req stepRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	v, err := h.wizard.SetStep(r.Context(), sessionID(r), req.Step)
	if err != nil {
		writeError(w, h.logger, err, "op", "set_step", "session_id", sessionID(r))
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *WizardHandler) StartSimulation(w http.ResponseWriter, r *http.Request) {
	snap, err := h.wizard.StartSimulation(r.Context(), sessionID(r))
	if err != nil {
		writeError(w, h.logger, err, "op", "start_simulation", "session_id", sessionID(r))
		return
	}
	writeJSON(w, http.StatusAccepted, snap)
}

func (h *WizardHandler) GetSimulation(w http.ResponseWriter, r *http.Request) {
	snap, err := h.wizard.Simulation(r.Context(), sessionID(r))
	if err != nil {
		writeError(w, h.logger, err, "op", "get_simulation", "session_id", sessionID(r))
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type questionRequest struct {
	Question string `json:"question"`
}

func (h *WizardHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req questionRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := h.wizard.Ask(r.Context(), sessionID(r), req.Question)
	if err != nil {
		writeError(w, h.logger, err, "op", "ask", "session_id", sessionID(r))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *WizardHandler) ChatTranscript(w http.ResponseWriter, r *http.Request) {
	entries, err := h.wizard.ChatTranscript(r.Context(), sessionID(r))
	if err != nil {
		writeError(w, h.logger, err, "op", "chat_transcript", "session_id", sessionID(r))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": entries})
}

func (h *WizardHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	reply, err := h.wizard.Chat(r.Context(), sessionID(r), req.Message)
	if err != nil {
		writeError(w, h.logger, err, "op", "chat", "session_id", sessionID(r))
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (h *WizardHandler) ClearChat(w http.ResponseWriter, r *http.Request) {
	entries, err := h.wizard.ClearChat(r.Context(), sessionID(r))
	if err != nil {
		writeError(w, h.logger, err, "op", "clear_chat", "session_id", sessionID(r))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": entries})
}

type checkoutRequest struct {
	Plan string `json:"plan"`
}

func (h *WizardHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	c, err := h.wizard.Checkout(r.Context(), sessionID(r), req.Plan)
	if err != nil {
		writeError(w, h.logger, err, "op", "checkout", "session_id", sessionID(r))
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *WizardHandler) Publish(w http.ResponseWriter, r *http.Request) {
	var req publish.Request
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	agent, err := h.wizard.Publish(r.Context(), sessionID(r), req)
	if err != nil {
		writeError(w, h.logger, err, "op", "publish", "session_id", sessionID(r))
		return
	}
	writeJSON(w, http.StatusCreated, agent)
}
