// Package handlers exposes the targeting service over HTTP.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	serviceErrors "github.com/tink3rlabs/targeting/errors"
	"github.com/tink3rlabs/targeting/health"
	"github.com/tink3rlabs/targeting/middlewares"
	"github.com/tink3rlabs/targeting/storage"
	"github.com/tink3rlabs/targeting/targeting"
	"github.com/tink3rlabs/targeting/telemetry"
	"github.com/tink3rlabs/targeting/types"
)

type Options struct {
	Service   *targeting.Service
	Health    *health.HealthChecker
	Telemetry *telemetry.Telemetry
	// Auth guards every API route. Nil leaves them open.
	Auth func(http.Handler) http.Handler
	// WriteRole, when set, is required to create profiles and segments.
	WriteRole string
}

type handler struct {
	service *targeting.Service
	errors  *middlewares.ErrorHandler
}

func NewRouter(opts Options) chi.Router {
	h := &handler{service: opts.Service, errors: &middlewares.ErrorHandler{}}
	validator := &middlewares.Validator{}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/health", h.errors.Wrap(func(w http.ResponseWriter, r *http.Request) error {
		if err := opts.Health.Check(r.Context()); err != nil {
			return &serviceErrors.ServiceUnavailable{Message: err.Error()}
		}
		render.JSON(w, r, map[string]string{"status": "ok"})
		return nil
	}))
	if opts.Telemetry != nil {
		r.Method(http.MethodGet, "/metrics", opts.Telemetry.Handler())
	}
	r.Get("/openapi.json", h.errors.Wrap(h.openAPI))

	r.Group(func(r chi.Router) {
		if opts.Auth != nil {
			r.Use(opts.Auth)
		}
		write := func(next http.Handler) http.Handler { return next }
		if opts.WriteRole != "" {
			write = middlewares.RequireRole(opts.WriteRole)
		}

		r.Route("/profiles", func(r chi.Router) {
			r.Get("/", h.errors.Wrap(h.listProfiles))
			r.Get("/count", h.errors.Wrap(h.countProfiles))
			r.With(write).Post("/", validator.ValidateRequest(
				map[string]string{"body": types.ProfileRequestSchema},
				h.errors.Wrap(h.createProfile),
			).ServeHTTP)
			r.Get("/{id}", h.errors.Wrap(h.getProfile))
			r.Get("/{id}/match", h.errors.Wrap(h.matchProfile))
		})

		r.Route("/grammar", func(r chi.Router) {
			r.Post("/parse", validator.ValidateRequest(
				map[string]string{"body": types.ParseRequestSchema},
				h.errors.Wrap(h.parse),
			).ServeHTTP)
			r.Post("/generate", h.errors.Wrap(h.generate))
		})

		r.Route("/segments", func(r chi.Router) {
			r.Get("/", h.errors.Wrap(h.listSegments))
			r.With(write).Post("/", validator.ValidateRequest(
				map[string]string{"body": types.SegmentRequestSchema},
				h.errors.Wrap(h.createSegment),
			).ServeHTTP)
			r.Get("/{id}", h.errors.Wrap(h.getSegment))
			r.Get("/{id}/count", h.errors.Wrap(h.countSegment))
		})
	})
	return r
}

// page reads the limit and cursor query parameters.
func page(r *http.Request) (storage.Page, error) {
	p := storage.Page{Cursor: r.URL.Query().Get("cursor")}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 {
			return p, &serviceErrors.BadRequest{Message: "limit must be a positive integer"}
		}
		p.Limit = n
	}
	return p, nil
}

func decode(r *http.Request, v any) error {
	if err := render.DecodeJSON(r.Body, v); err != nil {
		return &serviceErrors.BadRequest{Message: "invalid request body: " + err.Error()}
	}
	return nil
}
