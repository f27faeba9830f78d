package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/sajang-ai/backend/internal/auth"
	"github.com/sajang-ai/backend/internal/config"
	"github.com/sajang-ai/backend/internal/handler/chat"
	"github.com/sajang-ai/backend/internal/handler/conversation"
	"github.com/sajang-ai/backend/internal/handler/persona"
	"github.com/sajang-ai/backend/internal/handler/stream"
	"github.com/sajang-ai/backend/internal/handler/system"
	"github.com/sajang-ai/backend/internal/logging"
	middlewarePkg "github.com/sajang-ai/backend/internal/middleware"
	personaModel "github.com/sajang-ai/backend/internal/model/persona"
	"github.com/sajang-ai/backend/web"
)

// Deps are the services the HTTP layer is built on.
type Deps struct {
	Config        *config.Config
	Personas      personaModel.Store
	Relay         *stream.Relay
	Limiter       chat.Limiter
	Auth          *auth.Middleware
	Conversations conversation.Conversations
	Store         system.Pinger
	Logger        logrus.FieldLogger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = logging.Discard()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	if d.Config.Server.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(middlewarePkg.RequestLogger(d.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(d.Config.Server.AllowedOrigins))

	chatHandler := chat.New(d.Relay, d.Personas, d.Limiter, d.Auth, chat.Options{
		RequireAuth:    d.Config.Chat.RequireAuth,
		AllowedOrigins: d.Config.Server.AllowedOrigins,
	}, d.Logger)

	r.Route("/api", func(api chi.Router) {
		system.New(d.Store, d.Config.Auth, d.Logger).RegisterRoutes(api)
		persona.New(d.Personas).RegisterRoutes(api)
		chatHandler.RegisterRoutes(api)
		if d.Conversations != nil {
			conversation.New(d.Conversations, d.Personas, d.Auth, d.Logger).RegisterRoutes(api)
		}
	})

	r.Get("/chat", web.ChatPage())
	r.Handle("/*", web.Handler())

	return r
}
