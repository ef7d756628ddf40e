package chat

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/lumi/backend/internal/analysis/crisis"
	"github.com/zhouzirui/lumi/backend/internal/service/conversation"
	"github.com/zhouzirui/lumi/backend/internal/service/session"
	"github.com/zhouzirui/lumi/backend/pkg/utils"
)

// Handler 聊天服务的HTTP处理器
type Handler struct {
	sessions *session.Service
}

// New 创建聊天处理器
func New(sessions *session.Service) *Handler {
	return &Handler{sessions: sessions}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleCreateSession)
	r.Delete("/session/{sessionID}", h.handleEndSession)
	r.Post("/chat", h.handleChat)
	r.Post("/feedback", h.handleFeedback)
	r.Get("/helplines", h.handleHelplines)
}

// ChatResponse 聊天结果；危机时附带求助热线
type ChatResponse struct {
	conversation.Result
	Helplines []crisis.Helpline `json:"helplines,omitempty"`
}

// NewChatResponse 构造返回给客户端的聊天结果
func NewChatResponse(res conversation.Result) ChatResponse {
	out := ChatResponse{Result: res}
	if res.Crisis {
		out.Helplines = crisis.Helplines()
	}
	return out
}

// handleCreateSession 创建会话
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ProfileID string `json:"profileId"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	info, err := h.sessions.Create(r.Context(), strings.TrimSpace(payload.ProfileID))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, info)
}

func (h *Handler) handleEndSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.End(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		SessionID string `json:"sessionId"`
		Text      string `json:"text"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(payload.Text) == "" {
		utils.RespondError(w, http.StatusBadRequest, "text is required")
		return
	}

	conv, err := h.sessions.Get(r.Context(), payload.SessionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	res := conv.Chat(r.Context(), payload.Text)
	utils.RespondJSON(w, http.StatusOK, NewChatResponse(res))
}

func (h *Handler) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		SessionID string `json:"sessionId"`
		MessageID string `json:"messageId"`
		Helpful   *bool  `json:"helpful"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.MessageID == "" || payload.Helpful == nil {
		utils.RespondError(w, http.StatusBadRequest, "messageId and helpful are required")
		return
	}

	conv, err := h.sessions.Get(r.Context(), payload.SessionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if err := conv.Feedback(payload.MessageID, *payload.Helpful); err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (h *Handler) handleHelplines(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, crisis.Helplines())
}

func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrProfileRequired):
		utils.RespondError(w, http.StatusBadRequest, "profileId is required")
	case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, conversation.ErrMessageNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	default:
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
	}
}
