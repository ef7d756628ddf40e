package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zhouzirui/lumi/backend/internal/handler/chat"
	"github.com/zhouzirui/lumi/backend/internal/handler/mood"
	"github.com/zhouzirui/lumi/backend/internal/handler/realtime"
	"github.com/zhouzirui/lumi/backend/internal/handler/stream"
	"github.com/zhouzirui/lumi/backend/internal/logging"
	middlewarePkg "github.com/zhouzirui/lumi/backend/internal/middleware"
	"github.com/zhouzirui/lumi/backend/internal/service/insights"
	"github.com/zhouzirui/lumi/backend/internal/service/session"
	"github.com/zhouzirui/lumi/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(sessions *session.Service, insightSvc *insights.Service, logger *zap.Logger) http.Handler {
	logger = logging.OrNop(logger)
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.Logger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status": "ok",
			"remote": sessions.Remote().Configured(),
		})
	})

	r.Route("/api", func(api chi.Router) {
		chat.New(sessions).RegisterRoutes(api)
		mood.New(sessions, insightSvc, logger).RegisterRoutes(api)
		stream.New(sessions, logger).RegisterRoutes(api)
		realtime.NewWebSocketHandler(sessions, logger).RegisterRoutes(api)
	})

	return r
}
