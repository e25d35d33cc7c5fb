package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/isdelr/todo-api/internal/api/handlers"
	"github.com/isdelr/todo-api/internal/auth"
	"github.com/isdelr/todo-api/internal/config"
	"github.com/isdelr/todo-api/internal/services"
	"github.com/isdelr/todo-api/internal/websocket"
)

// Deps bundles everything the router wires into handlers.
type Deps struct {
	Config   config.Config
	Hub      *websocket.Hub
	Hasher   *auth.Hasher
	Issuer   *auth.Issuer
	Verifier *auth.Verifier
	DB       handlers.Pinger

	UserService  services.UserServiceProvider
	TodoService  services.TodoServiceProvider
	TagService   services.TagServiceProvider
	EventService services.EventServiceProvider
}

// NewRouter creates and configures a new Chi router.
func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()

	// Basic middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(secureHeaders)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.Config.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if d.Config.RateLimitRequests > 0 {
		r.Use(newIPRateLimiter(d.Config.RateLimitRequests, d.Config.RateLimitWindow).Middleware)
	}

	// Initialize handlers
	var sessions handlers.SessionCloser
	if d.Hub != nil {
		sessions = d.Hub
	}
	userHandler := handlers.NewUserHandler(d.UserService, d.Hasher, d.Issuer, sessions)
	todoHandler := handlers.NewTodoHandler(d.TodoService)
	tagHandler := handlers.NewTagHandler(d.TagService)
	eventHandler := handlers.NewEventHandler(d.EventService)
	wsHandler := handlers.NewWebSocketHandler(d.Hub, d.Config.CORSAllowedOrigins)
	healthHandler := handlers.NewHealthHandler(d.DB)

	requireSession := d.Verifier.Middleware()

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", healthHandler.Get)

		r.Route("/users", func(r chi.Router) {
			r.Post("/register", userHandler.Register)
			r.Post("/login", userHandler.Login)

			r.Group(func(r chi.Router) {
				r.Use(requireSession)
				r.Post("/logout", userHandler.Logout)
				r.Post("/logout-all", userHandler.LogoutAll)
				r.Get("/me", userHandler.GetMe)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(requireSession)

			r.Route("/todos", func(r chi.Router) {
				r.Get("/", todoHandler.GetAll)
				r.Post("/", todoHandler.Create)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", todoHandler.Get)
					r.Put("/", todoHandler.Update)
					r.Delete("/", todoHandler.Delete)
				})
			})

			r.Route("/tags", func(r chi.Router) {
				r.Get("/", tagHandler.GetAll)
				r.Post("/", tagHandler.Create)
			})

			r.Get("/events", eventHandler.GetRecent)
			r.Get("/ws", wsHandler.Serve)
		})
	})

	return r
}
