package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/yegors/co-atis/pkg/logger"
)

// Options configures the router
type Options struct {
	CORSAllowedOrigins []string
	StaticFilesDir     string
	ImagesDir          string
	ImagesURLPrefix    string
	AIConfigured       bool
	Images             ImageLister // backs the image listing; nil disables it
}

// Router is the API router
type Router struct {
	handler    *Handler
	middleware *Middleware
	options    Options
	logger     *logger.Logger
}

// NewRouter creates a new API router
func NewRouter(processor Processor, airports AirportLister, options Options, logger *logger.Logger) *Router {
	return &Router{
		handler:    NewHandler(processor, airports, options, logger),
		middleware: NewMiddleware(logger),
		options:    options,
		logger:     logger.Named("api-router"),
	}
}

// Routes returns the API routes
func (r *Router) Routes() http.Handler {
	router := chi.NewRouter()

	// Middleware
	router.Use(r.middleware.RequestID)
	router.Use(r.middleware.Logger)
	router.Use(r.middleware.Recoverer)
	router.Use(r.middleware.CORS(r.options.CORSAllowedOrigins))

	router.Route("/api", func(router chi.Router) {
		router.Use(r.middleware.NoStore)

		router.Post("/process_atis", r.handler.ProcessATIS)
		router.Get("/health", r.handler.GetHealth)
		router.Get("/airports", r.handler.GetAirports)
		router.Get("/status", r.handler.GetStatus)
		if r.options.Images != nil {
			router.Get("/images/{airport}", r.handler.GetImages)
		}

		router.Route("/v1", func(router chi.Router) {
			router.Post("/atis", r.handler.ProcessATIS)
			router.Get("/health", r.handler.GetHealth)
			router.Get("/airports", r.handler.GetAirports)
			router.Get("/status", r.handler.GetStatus)
			if r.options.Images != nil {
				router.Get("/images/{airport}", r.handler.GetImages)
			}
		})
	})

	// Generated illustrations
	if r.options.ImagesDir != "" {
		prefix := "/" + strings.Trim(r.options.ImagesURLPrefix, "/")
		router.Handle(prefix+"/*", http.StripPrefix(prefix, NewStaticFileHandler(r.options.ImagesDir, false, r.logger)))
	}

	// Front-end
	if r.options.StaticFilesDir != "" {
		router.Handle("/*", NewStaticFileHandler(r.options.StaticFilesDir, true, r.logger))
	}

	return router
}
