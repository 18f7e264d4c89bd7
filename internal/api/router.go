package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/riandyrn/otelchi"
	otelchimetric "github.com/riandyrn/otelchi/metric"
	"go.opentelemetry.io/otel"

	"github.com/mojiokoshi/transcriber/internal/middleware"
	"github.com/mojiokoshi/transcriber/internal/sentry"
)

// NewRouter mounts the web form, download and async API routes.
func NewRouter(s *Server) http.Handler {
	r := chi.NewRouter()

	serviceName := s.cfg.ServiceName
	r.Use(otelchi.Middleware(serviceName,
		otelchi.WithChiRoutes(r),
		otelchi.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/health"
		}),
	))

	metricCfg := otelchimetric.NewBaseConfig(serviceName, otelchimetric.WithMeterProvider(otel.GetMeterProvider()))
	r.Use(otelchimetric.NewRequestDurationMillis(metricCfg))
	r.Use(otelchimetric.NewRequestInFlight(metricCfg))
	r.Use(otelchimetric.NewResponseSizeBytes(metricCfg))

	r.Use(sentry.HTTPMiddleware)
	r.Use(chimiddleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: false,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Get("/", s.HandleForm)
	r.Post("/transcribe", s.HandleTranscribe)
	r.Get("/download/{id}", s.HandleDownload)

	if s.AsyncEnabled() {
		r.Route("/api/transcriptions", func(r chi.Router) {
			if s.cfg.AuthJWTSecret != "" {
				r.Use(middleware.AuthMiddleware(s.cfg))
			} else {
				r.Use(middleware.AnonymousUser)
			}
			r.Post("/", s.HandleCreateJob)
			r.Get("/", s.HandleListJobs)
			r.Get("/{id}", s.HandleJobStatus)
			r.Get("/{id}/transcript", s.HandleJobTranscript)
		})
	}

	return r
}
