package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/rollcall/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	studentsHandler := handlers.NewStudentsHandler(s.deps.Registry, s.deps.Store)
	attendanceHandler := handlers.NewAttendanceHandler(s.deps.Session, s.deps.Log)
	reportsHandler := handlers.NewReportsHandler(s.deps.Log)
	statsHandler := handlers.NewStatsHandler(s.deps.Store, s.deps.Registry, s.deps.Log)

	// Health check
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		// Students
		r.Get("/students", studentsHandler.List)
		r.Post("/students", studentsHandler.Register)
		r.Get("/students/{name}", studentsHandler.Get)
		r.Delete("/students/{name}", studentsHandler.Remove)

		// Attendance
		r.Post("/attendance/recognize", attendanceHandler.Recognize)
		r.Post("/attendance/mark", attendanceHandler.Mark)
		r.Get("/attendance/today", attendanceHandler.Today)
		r.Get("/attendance/report", reportsHandler.Range)

		// Stats
		r.Get("/stats", statsHandler.Get)
	})
}
