// Package mood exposes consent, mood history and insights per profile.
package mood

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/lumi/backend/internal/logging"
	"github.com/zhouzirui/lumi/backend/internal/service/insights"
	moodservice "github.com/zhouzirui/lumi/backend/internal/service/mood"
	"github.com/zhouzirui/lumi/backend/internal/service/session"
	"github.com/zhouzirui/lumi/backend/pkg/utils"
)

// Handler serves the per-profile mood endpoints.
type Handler struct {
	sessions *session.Service
	insights *insights.Service
	logger   *zap.Logger
}

func New(sessions *session.Service, insightSvc *insights.Service, logger *zap.Logger) *Handler {
	return &Handler{
		sessions: sessions,
		insights: insightSvc,
		logger:   logging.OrNop(logger),
	}
}

// RegisterRoutes mounts the consent, mood and insights routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/consent/{profileID}", h.handleGetConsent)
	r.Post("/consent/{profileID}", h.handleSetConsent)
	r.Get("/mood/{profileID}", h.handleGetMood)
	r.Delete("/mood/{profileID}", h.handleClearMood)
	r.Get("/insights/{profileID}", h.handleInsights)
}

// ConsentResponse is the consent half of a profile snapshot.
type ConsentResponse struct {
	Consented bool `json:"consented"`
	Asked     bool `json:"asked"`
}

func consentOf(m *moodservice.Manager) ConsentResponse {
	return ConsentResponse{Consented: m.Consented(), Asked: m.Asked()}
}

func (h *Handler) profile(w http.ResponseWriter, r *http.Request) (*moodservice.Manager, bool) {
	m, err := h.sessions.Profile(r.Context(), chi.URLParam(r, "profileID"))
	if err != nil {
		if errors.Is(err, session.ErrProfileRequired) {
			utils.RespondError(w, http.StatusBadRequest, "profileId is required")
		} else {
			utils.RespondError(w, http.StatusInternalServerError, err.Error())
		}
		return nil, false
	}
	return m, true
}

func (h *Handler) handleGetConsent(w http.ResponseWriter, r *http.Request) {
	m, ok := h.profile(w, r)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, consentOf(m))
}

func (h *Handler) handleSetConsent(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Action string `json:"action"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	m, ok := h.profile(w, r)
	if !ok {
		return
	}

	var err error
	switch payload.Action {
	case "grant":
		err = m.Grant(r.Context())
	case "decline":
		err = m.Decline(r.Context())
	case "revoke":
		err = m.Revoke(r.Context())
	default:
		utils.RespondError(w, http.StatusBadRequest, "action must be grant, decline or revoke")
		return
	}
	if err != nil {
		h.logger.Error("consent update not persisted", zap.String("action", payload.Action), zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "consent could not be saved")
		return
	}
	utils.RespondJSON(w, http.StatusOK, consentOf(m))
}

func (h *Handler) handleGetMood(w http.ResponseWriter, r *http.Request) {
	m, ok := h.profile(w, r)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, m.State())
}

func (h *Handler) handleClearMood(w http.ResponseWriter, r *http.Request) {
	m, ok := h.profile(w, r)
	if !ok {
		return
	}
	if err := m.ClearHistory(r.Context()); err != nil {
		h.logger.Error("clear mood history failed", zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "history could not be cleared")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleInsights(w http.ResponseWriter, r *http.Request) {
	report, err := h.insights.Get(r.Context(), chi.URLParam(r, "profileID"))
	if err != nil {
		if errors.Is(err, session.ErrProfileRequired) {
			utils.RespondError(w, http.StatusBadRequest, "profileId is required")
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, report)
}
