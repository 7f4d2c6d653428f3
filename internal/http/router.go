package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/instavisa/instavisa/internal/http/admin"
	"github.com/instavisa/instavisa/internal/http/applicant"
	"github.com/instavisa/instavisa/internal/http/authn"
	"github.com/instavisa/instavisa/internal/http/webhook"
)

func New(
	auth *authn.Middleware,
	applicantV1 *applicant.Handler,
	adminV1 *admin.Handler,
	webhookV1 *webhook.Handler,
) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))

	router.Route("/api/v1", func(r chi.Router) {
		r.Route("/applications", func(r chi.Router) {
			r.Use(auth.Require)
			applicantV1.Routes(r)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.RequireAdmin)
			r.Use(middleware.AllowContentType("application/json"))
			adminV1.Routes(r)
		})

		// Gateway callbacks authenticate by signature, not by bearer token.
		r.Route("/payments", webhookV1.Routes)
	})

	return router
}
