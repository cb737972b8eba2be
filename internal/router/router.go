package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	mw "github.com/itchan-dev/imagehost/internal/middleware"
	"github.com/itchan-dev/imagehost/internal/setup"
)

// New creates and configures a new chi router with all the routes.
func New(deps *setup.Dependencies) http.Handler {
	r := chi.NewRouter()
	h := deps.Handler

	r.Use(middlewares(deps)...)

	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)
	r.Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{Registry: deps.Registry}))

	r.Route("/api/images", func(r chi.Router) {
		// WebP bodies are already compressed, only JSON goes through gzip.
		r.Get("/download/{id}/{size}", h.DownloadImage)
		r.Head("/download/{id}/{size}", h.DownloadImage)

		r.Group(func(r chi.Router) {
			r.Use(gzip)
			r.Get("/metadata/{id}", h.GetMetadata)

			upload := r
			if deps.UploadLimiter != nil {
				upload = r.With(mw.RateLimit(deps.UploadLimiter, mw.GetIP))
			}
			upload.Post("/upload", h.UploadImages)
		})
	})

	return r
}

// middlewares is the stack every route goes through. Recover sits inside
// the logger and metrics so recovered panics are logged and counted as 500s.
func middlewares(deps *setup.Dependencies) []func(http.Handler) http.Handler {
	public := deps.Config.Public
	stack := []func(http.Handler) http.Handler{
		chimw.RequestID,
		mw.RequestLogger,
		deps.HTTPMetrics.Middleware,
		mw.Recover,
		mw.SecurityHeaders(public.HTTP.HTTPS),
	}

	// No origins configured means same-origin only; an empty list would
	// make the cors package allow every origin.
	if len(public.HTTP.AllowedOrigins) > 0 {
		stack = append(stack, cors.Handler(cors.Options{
			AllowedOrigins: public.HTTP.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "If-None-Match"},
			ExposedHeaders: []string{"ETag"},
			MaxAge:         300,
		}))
	}
	return stack
}

// gzipMinSize keeps small envelopes such as upload results uncompressed.
const gzipMinSize = 256

func gzip(next http.Handler) http.Handler {
	wrap, err := gzhttp.NewWrapper(gzhttp.MinSize(gzipMinSize))
	if err != nil {
		panic(err)
	}
	return wrap(next)
}
