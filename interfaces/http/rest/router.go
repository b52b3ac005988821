// Package rest exposes the relay's board write API and snapshot reads.
package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"storyboard/application/ports"
	"storyboard/interfaces/http/rest/handlers"
	"storyboard/interfaces/http/rest/middleware"
	"storyboard/pkg/common"
)

// Router creates and configures the HTTP router
type Router struct {
	repo        ports.BoardRepository
	wsHandler   http.HandlerFunc
	enableCORS  bool
	logger      *zap.Logger
}

// NewRouter creates a new router instance. wsHandler, when non-nil, is
// mounted at /ws for realtime upgrades.
func NewRouter(repo ports.BoardRepository, wsHandler http.HandlerFunc, enableCORS bool, logger *zap.Logger) *Router {
	return &Router{
		repo:       repo,
		wsHandler:  wsHandler,
		enableCORS: enableCORS,
		logger:     logger,
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	// Global middleware
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Logger(rt.logger))

	if rt.enableCORS {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:5173"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID", handlers.SharedAccessHeader},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	// Health check
	router.Get("/health", rt.healthCheck)

	// Realtime upgrade endpoint
	if rt.wsHandler != nil {
		router.Get("/ws", rt.wsHandler)
	}

	// API v1 routes
	router.Route("/api/v1", func(r chi.Router) {
		boardHandler := handlers.NewBoardHandler(rt.repo, rt.logger)
		frameHandler := handlers.NewFrameHandler(rt.repo, rt.logger)
		connHandler := handlers.NewConnectionHandler(rt.repo, rt.logger)

		r.Route("/boards", func(r chi.Router) {
			r.Post("/", boardHandler.CreateBoard)
			r.Route("/{boardID}", func(r chi.Router) {
				r.Get("/", boardHandler.GetBoard)
				r.Put("/", boardHandler.UpdateBoard)
				r.Get("/playback", boardHandler.GetPlayback)

				r.Route("/frames", func(r chi.Router) {
					r.Post("/", frameHandler.CreateFrame)
					r.Put("/{frameID}", frameHandler.UpdateFrame)
					r.Put("/{frameID}/position", frameHandler.MoveFrame)
					r.Delete("/{frameID}", frameHandler.DeleteFrame)
				})

				r.Route("/connections", func(r chi.Router) {
					r.Post("/", connHandler.CreateConnection)
					r.Delete("/{connectionID}", connHandler.DeleteConnection)
				})
			})
		})
	})

	return router
}

// healthCheck handles health check requests
func (rt *Router) healthCheck(w http.ResponseWriter, r *http.Request) {
	common.RespondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "relayd",
	})
}
