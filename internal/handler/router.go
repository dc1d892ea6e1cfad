package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	authHandler "github.com/pocketchat-dev/pocketchat/backend/internal/handler/auth"
	chatHandler "github.com/pocketchat-dev/pocketchat/backend/internal/handler/chat"
	middlewarePkg "github.com/pocketchat-dev/pocketchat/backend/internal/middleware"
	"github.com/pocketchat-dev/pocketchat/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(auth *authHandler.Handler, chat *chatHandler.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Route("/api", func(api chi.Router) {
		auth.RegisterRoutes(api)
		chat.RegisterRoutes(api)

		api.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
	})

	return r
}
