package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(apiHandler *APIHandler, limiter *RateLimiter) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)       // Basic request logging
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Post("/signup", apiHandler.SignupHandler)
		r.Post("/login", apiHandler.LoginHandler)
		r.Get("/catalog", apiHandler.CatalogHandler)
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})

		// User-authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(apiHandler.JWTAuthMiddleware)

			r.Get("/me", apiHandler.MeHandler)

			r.Post("/projects", apiHandler.CreateProjectHandler)
			r.Get("/projects", apiHandler.ListProjectsHandler)
			r.Get("/projects/{projectID}", apiHandler.GetProjectHandler)
			r.Delete("/projects/{projectID}", apiHandler.DeleteProjectHandler)

			r.Get("/projects/{projectID}/shotsets", apiHandler.ListShotSetsHandler)
			r.With(limiter.Limit("shot-generation")).
				Post("/projects/{projectID}/shotsets", apiHandler.GenerateShotSetHandler)

			r.Get("/shotsets/{shotSetID}", apiHandler.GetShotSetHandler)
			r.Delete("/shotsets/{shotSetID}", apiHandler.DeleteShotSetHandler)
			r.Patch("/shotsets/{shotSetID}/shots/{shotNum}", apiHandler.UpdateShotHandler)

			r.Get("/shotsets/{shotSetID}/shots/{shotNum}/images", apiHandler.ListShotImagesHandler)
			r.With(limiter.Limit("image-generation")).
				Post("/shotsets/{shotSetID}/shots/{shotNum}/images", apiHandler.GenerateImagesHandler)

			r.Get("/images/{imageID}", apiHandler.GetImageHandler)
		})
	})

	return r
}
