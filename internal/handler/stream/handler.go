package stream

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/lumi/backend/internal/analysis/crisis"
	"github.com/zhouzirui/lumi/backend/internal/logging"
	"github.com/zhouzirui/lumi/backend/internal/service/conversation"
	"github.com/zhouzirui/lumi/backend/internal/service/session"
	"github.com/zhouzirui/lumi/backend/pkg/utils"
)

// SSE event names, in the order a client sees them.
const (
	EventStart     = "start"
	EventListening = "listening"
	EventEmotion   = "emotion"
	EventMessage   = "message"
	EventCrisis    = "crisis"
	EventEnd       = "end"
)

// Handler streams one chat turn as Server-Sent Events.
type Handler struct {
	sessions *session.Service
	logger   *zap.Logger
}

// New creates a new stream handler
func New(sessions *session.Service, logger *zap.Logger) *Handler {
	return &Handler{sessions: sessions, logger: logging.OrNop(logger)}
}

// RegisterRoutes mounts the streaming chat route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stream/{sessionID}", h.handleStream)
}

type startEvent struct {
	SessionID string `json:"sessionId"`
}

type listeningEvent struct {
	Listening bool `json:"listening"`
}

type messageEvent struct {
	Reply     string `json:"reply"`
	Fallback  bool   `json:"fallback"`
	MessageID string `json:"messageId"`
}

type crisisEvent struct {
	Crisis    bool              `json:"crisis"`
	Helplines []crisis.Helpline `json:"helplines"`
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	userMessage := r.URL.Query().Get("message")
	if userMessage == "" {
		utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
		return
	}

	conv, err := h.sessions.Get(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			utils.RespondError(w, http.StatusNotFound, err.Error())
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	utils.SetupSSEHeaders(w)

	if err := h.run(w, r, flusher, conv, userMessage); err != nil {
		h.logger.Debug("stream closed early", zap.String("session_id", sessionID), zap.Error(err))
	}
}

func (h *Handler) run(w http.ResponseWriter, r *http.Request, flusher http.Flusher, conv *conversation.Session, text string) error {
	ctx := r.Context()
	if err := utils.SendSSEEvent(w, flusher, EventStart, startEvent{SessionID: conv.ID()}); err != nil {
		return err
	}

	changes, cancel := conv.Mood().Subscribe()
	defer cancel()

	done := make(chan conversation.Result, 1)
	go func() {
		done <- conv.Chat(ctx, text)
	}()

	var res conversation.Result
wait:
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case v := <-changes:
			if err := utils.SendSSEEvent(w, flusher, EventListening, listeningEvent{Listening: v}); err != nil {
				return err
			}
		case res = <-done:
			break wait
		}
	}

	select {
	case v := <-changes:
		if err := utils.SendSSEEvent(w, flusher, EventListening, listeningEvent{Listening: v}); err != nil {
			return err
		}
	default:
	}

	if res.Crisis {
		if err := utils.SendSSEEvent(w, flusher, EventCrisis, crisisEvent{Crisis: true, Helplines: crisis.Helplines()}); err != nil {
			return err
		}
	} else {
		if err := utils.SendSSEEvent(w, flusher, EventEmotion, res.Emotion); err != nil {
			return err
		}
		msg := messageEvent{Fallback: res.Fallback, MessageID: res.MessageID}
		if res.Reply != nil {
			msg.Reply = *res.Reply
		}
		if err := utils.SendSSEEvent(w, flusher, EventMessage, msg); err != nil {
			return err
		}
	}
	return utils.SendSSEEvent(w, flusher, EventEnd, struct{}{})
}
