package httpserver

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/viralideas/analysis-queue/internal/http/handlers"
	"github.com/viralideas/analysis-queue/internal/http/middleware"
)

type RouterDependencies struct {
	API            *handlers.API
	Logger         *log.Logger
	AuthToken      string
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
}

func NewRouter(deps RouterDependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Trace(deps.Logger))
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: deps.CORSOrigins,
	}))
	r.Use(middleware.RateLimit(deps.RateLimitRPS, deps.RateLimitBurst))
	r.Use(middleware.Auth(deps.AuthToken))

	r.Get("/healthz", deps.API.Health)

	r.Route("/v1/viral-ideas", func(r chi.Router) {
		r.Post("/queue", deps.API.Submit)
		r.Get("/queue-status", deps.API.SystemStatus)
		r.Post("/process-pending", deps.API.ProcessPending)

		r.Get("/queue/{sessionID}", deps.API.Status)
		r.Post("/queue/{jobID}/start", deps.API.StartJob)
		r.Post("/queue/{jobID}/cancel", deps.API.CancelJob)
		r.Patch("/queue/{jobID}/competitors/{username}", deps.API.PatchCompetitor)
	})

	return r
}
