package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"studio/internal/http/handlers"
	"studio/internal/infra"
	"studio/internal/middleware"
	"studio/internal/render"
)

// Options configures the router's middleware.
type Options struct {
	JWTSecret       string
	AllowedOrigins  []string
	RateLimitPerMin int
	Logger          infra.Logger
	// RenderToken guards the render proxy, which the dispatcher calls.
	RenderToken string
	// Static serves stored media under /static when set.
	Static http.Handler
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.AllowedOrigins),
		middleware.RateLimit(opts.RateLimitPerMin),
	)

	if opts.Static != nil {
		r.Mount("/static", http.StripPrefix("/static", opts.Static))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/healthz", app.Health)

		r.With(middleware.InternalToken(render.TokenHeader, opts.RenderToken)).
			Post("/studio/render", app.RenderProxy)

		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthJWT(opts.JWTSecret))
			r.Route("/studio/{projectID}", func(r chi.Router) {
				r.Get("/", app.GetStudio)
				r.Put("/mode", app.PutMode)
				r.Put("/source", app.PutSource)
				r.Post("/upload", app.Upload)
				r.Put("/view", app.PutView)
				r.Put("/output", app.PutOutput)
				r.Put("/features/{slot}", app.PutFeature)
				r.Delete("/features/{slot}", app.DeleteFeature)
				r.Post("/generate", app.Generate)
				r.Post("/retry", app.Retry)
				r.Post("/dismiss", app.Dismiss)
			})
		})
	})

	return r
}
