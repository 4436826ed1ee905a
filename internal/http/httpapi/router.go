// Package httpapi wires the HTTP routes and middleware chain.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"storyforge/internal/http/handlers"
	"storyforge/internal/middleware"
)

// NewRouter builds the full API router.
func NewRouter(app *handlers.App, country middleware.CountryLookup) http.Handler {
	r := chi.NewRouter()

	r.Use(
		chimiddleware.RealIP,
		chimiddleware.Recoverer,
		middleware.RequestID,
		middleware.Logger(app.Logger),
		middleware.CORS([]string{app.Cfg.AppBaseURL}),
		middleware.Language("en", country),
	)
	if app.Cfg.RateLimitPerMin > 0 {
		r.Use(middleware.RateLimit(app.Cfg.RateLimitPerMin, time.Minute))
	}

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/auth", func(r chi.Router) {
		r.Post("/register", app.Register)
		r.Post("/login", app.Login)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthJWT(app.Cfg.JWTSecret))

		r.Get("/v1/me", app.Me)

		r.Route("/v1/stories", func(r chi.Router) {
			r.Post("/", app.CreateStory)
			r.Get("/", app.ListStories)
			r.Get("/{story_id}", app.GetStory)
			r.Delete("/{story_id}", app.DeleteStory)
			r.Get("/{story_id}/audio", app.ServeAudio)
			r.Get("/{story_id}/cover", app.ServeCover)
		})

		r.Route("/v1/credits", func(r chi.Router) {
			r.Get("/balance", app.Balance)
			r.Get("/packs", app.ListPacks)
			r.Get("/transactions", app.ListTransactions)
			r.Post("/checkout", app.CreateCheckout)
			r.Post("/fulfill", app.FulfillCheckout)
		})

		r.Post("/v1/recordings", app.UploadRecording)

		r.Route("/v1/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin)
			r.Get("/settings", app.GetSettings)
			r.Put("/settings", app.UpdateSettings)
		})
	})

	return r
}
