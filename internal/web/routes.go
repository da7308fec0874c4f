package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kozaktomas/campus-attendance/internal/web/handlers"
	"github.com/kozaktomas/campus-attendance/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	attendanceHandler := handlers.NewAttendanceHandler(s.deps.Attendance, s.deps.Logger)
	signaturesHandler := handlers.NewSignaturesHandler(s.deps.Enroller, s.deps.Signatures, s.config.Media.Root, s.deps.Logger)

	// Health check (no auth required)
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	if s.deps.Registry != nil {
		s.router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.deps.Registry, promhttp.HandlerOpts{}))
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireFaculty())

			// Attendance
			r.Post("/attendance", attendanceHandler.Submit)
			r.Post("/attendance/preview", attendanceHandler.Preview)
			r.Get("/attendance/{subject}/{section}/{date}", attendanceHandler.Get)

			// Signatures
			if s.deps.Enroller != nil && s.deps.Signatures != nil {
				r.Put("/signatures/{personID}", signaturesHandler.Put)
				r.Get("/signatures/{personID}", signaturesHandler.Get)
			}
		})
	})
}
