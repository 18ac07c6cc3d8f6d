package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/LimmatCapital/Verdict/internal/calibration"
	"github.com/LimmatCapital/Verdict/internal/config"
	"github.com/LimmatCapital/Verdict/internal/herald"
	"github.com/LimmatCapital/Verdict/internal/refresher"
	"github.com/LimmatCapital/Verdict/internal/scoring"
	"github.com/LimmatCapital/Verdict/internal/store"
)

func NewRouter(s store.Store, engine *scoring.Engine, service *calibration.Service, ref *refresher.Refresher, events herald.Client, cfg *config.Config, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.RequestID)
	r.Use(RequestLogger(logger))
	r.Use(RateLimitMiddleware(cfg.Server.RateLimitPerMin))

	evaluate := NewEvaluateHandler(s, engine, events, cfg, logger)
	assessments := NewAssessmentsHandler(s, events)
	calib := NewCalibrationHandler(s, service)
	admin := NewAdminHandler(s, ref)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(CallerIDMiddleware)

		r.Post("/risk/evaluate", evaluate.Evaluate)
		r.Get("/risk/assessments/{id}", assessments.Get)
		r.Get("/risk/assessments/{id}/explain", assessments.Explain)
		r.Post("/risk/assessments/{id}/override", assessments.Override)

		r.Route("/admin", func(r chi.Router) {
			r.Use(AdminAuthMiddleware(cfg.Server.AdminToken))

			r.Get("/versions", calib.ListVersions)
			r.Post("/versions", calib.CreateDraft)
			r.Post("/versions/{id}/publish", calib.Publish)
			r.Get("/versions/{id}/validate", calib.Validate)
			r.Get("/versions/{id}/audit", calib.Audit)
			r.Get("/versions/{id}/factors", calib.Factors)
			r.Patch("/versions/{id}/factors/{name}", calib.PatchFactor)
			r.Get("/versions/{id}/factors/{name}/bins", calib.Bins)
			r.Patch("/versions/{id}/bins/{binID}", calib.PatchBin)
			r.Get("/versions/{id}/tiers", calib.Tiers)
			r.Patch("/versions/{id}/tiers/{tierID}", calib.PatchTier)
			r.Get("/versions/{id}/rules", calib.Rules)
			r.Patch("/versions/{id}/rules/{code}", calib.PatchRule)

			r.Get("/assessments", assessments.List)
			r.Get("/stats", admin.Stats)
			r.Get("/dealers", admin.Dealers)
			r.Post("/dealers/refresh", admin.RefreshDealers)
		})
	})

	return r
}

func NewMetricsRouter() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}
