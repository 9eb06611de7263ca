package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sublate/backend/internal/api/handlers"
	"github.com/sublate/backend/internal/api/middleware"
	"github.com/sublate/backend/internal/auth"
	"github.com/sublate/backend/internal/config"
	"github.com/sublate/backend/internal/db"
	"github.com/sublate/backend/internal/db/models"
	"github.com/sublate/backend/internal/job"
	"github.com/sublate/backend/internal/pipeline"
)

func NewRouter(database *db.Database, jwtService *auth.JWTService, cfg *config.Config, jobQueue *job.JobQueue, svc *pipeline.Service) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger)
	r.Use(cors.Handler(middleware.CORSHandler(cfg.CORSOrigins)))
	r.Use(middleware.MaxBodySize(1 << 20))

	// Handlers
	authHandler := handlers.NewAuthHandler(database, jwtService)
	filesHandler := handlers.NewFilesHandler(cfg.MediaPath, svc)
	runsHandler := handlers.NewRunsHandler(jobQueue, database, cfg.MediaPath)
	subtitleHandler := handlers.NewSubtitleHandler(cfg.MediaPath, cfg.SubtitlePath, svc)
	enginesHandler := handlers.NewEnginesHandler(svc)
	geminiModels := handlers.NewGeminiModelsHandler(database, cfg.GeminiAPIKey)
	presetsHandler := handlers.NewPresetsHandler(database)
	settingsHandler := handlers.NewSettingsHandler(database)
	userHandler := handlers.NewUserHandler(database)
	adminHandler := handlers.NewAdminHandler(database, jobQueue, cfg.MediaPath)

	loginLimiter := middleware.NewRateLimiter(10, time.Minute)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status":"ok"}`))
		})

		// Auth (public)
		r.With(loginLimiter.Handler).Post("/auth/login", authHandler.Login)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(jwtService))

			// Auth
			r.Get("/auth/me", authHandler.Me)

			// Files
			r.Get("/files", filesHandler.GetTree)
			r.Get("/files/tree", filesHandler.GetTree)
			r.Get("/files/tree/*", filesHandler.GetTree)
			r.Get("/files/info/*", filesHandler.GetInfo)
			r.Get("/files/search", filesHandler.Search)

			// Runs
			r.Post("/runs", runsHandler.CreateGenerate)
			r.Post("/runs/translate", runsHandler.CreateTranslate)
			r.Get("/runs", runsHandler.List)
			r.Get("/runs/{id}", runsHandler.Get)
			r.Post("/runs/{id}/cancel", runsHandler.Cancel)
			r.Post("/runs/{id}/retry", runsHandler.Retry)

			// Subtitles
			r.Get("/subtitles", subtitleHandler.List)
			r.Get("/subtitles/download", subtitleHandler.Download)
			r.Post("/subtitles/merge", subtitleHandler.Merge)

			// Engines
			r.Get("/engines", enginesHandler.List)
			r.Get("/engines/gemini/models", geminiModels.ListModels)

			// Presets
			r.Get("/presets", presetsHandler.ListPresets)
			r.Post("/presets", presetsHandler.CreatePreset)
			r.Put("/presets/{id}", presetsHandler.UpdatePreset)
			r.Delete("/presets/{id}", presetsHandler.DeletePreset)

			// User
			r.Put("/user/password", userHandler.ChangePassword)

			// Admin
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(models.RoleAdmin))

				r.Get("/settings", settingsHandler.GetSettings)
				r.Put("/settings", settingsHandler.UpdateSettings)

				r.Get("/admin/users", adminHandler.ListUsers)
				r.Post("/admin/users", adminHandler.CreateUser)
				r.Put("/admin/users/{id}", adminHandler.UpdateUser)
				r.Delete("/admin/users/{id}", adminHandler.DeleteUser)
				r.Get("/admin/dashboard", adminHandler.DashboardStats)
			})
		})
	})

	return r
}
