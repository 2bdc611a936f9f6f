package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route
	mux.HandleFunc("/ws/status", s.app.WSHandler.HandleWebSocket)

	// Local uploads, the files the local backend addresses by permalink
	if dir := s.app.Config.Assets.UploadDir; dir != "" {
		mux.Handle("GET /upload/", http.StripPrefix("/upload/", http.FileServer(http.Dir(dir))))
	}

	// API routes - References
	mux.HandleFunc("POST /api/references/scan", s.app.ReferenceHandler.ScanHandler)
	mux.HandleFunc("GET /api/references/status", s.app.ReferenceHandler.StatusHandler)
	mux.HandleFunc("/api/references", s.handleReferencesRoute) // GET (list), DELETE (clear)

	// API routes - Duplicates
	mux.HandleFunc("POST /api/duplicates/scan", s.app.DuplicateHandler.ScanHandler)
	mux.HandleFunc("GET /api/duplicates/status", s.app.DuplicateHandler.StatusHandler)
	mux.HandleFunc("GET /api/duplicates/{group}", s.app.DuplicateHandler.GetHandler)
	mux.HandleFunc("/api/duplicates", s.handleDuplicatesRoute) // GET (list), DELETE (clear)

	// API routes - Broken links
	mux.HandleFunc("POST /api/broken-links/scan", s.app.BrokenLinkHandler.ScanHandler)
	mux.HandleFunc("GET /api/broken-links/status", s.app.BrokenLinkHandler.StatusHandler)
	mux.HandleFunc("GET /api/broken-links/source-types", s.app.BrokenLinkHandler.SourceTypesHandler)
	mux.HandleFunc("POST /api/broken-links/whitelist", s.app.BrokenLinkHandler.WhitelistHandler)
	mux.HandleFunc("/api/broken-links", s.handleBrokenLinksRoute) // GET (list), DELETE (clear)

	// API routes - Whitelist
	mux.HandleFunc("GET /api/whitelist/search", s.app.WhitelistHandler.SearchHandler)
	mux.HandleFunc("GET /api/whitelist/check", s.app.WhitelistHandler.CheckHandler)
	mux.HandleFunc("POST /api/whitelist/batch", s.app.WhitelistHandler.BatchHandler)
	mux.HandleFunc("DELETE /api/whitelist/{id}", s.app.WhitelistHandler.DeleteHandler)
	mux.HandleFunc("/api/whitelist", s.handleWhitelistRoute) // GET (list), POST (create), DELETE (clear)

	// API routes - Cleanup
	mux.HandleFunc("POST /api/cleanup/preview", s.app.ReferenceHandler.PreviewHandler)
	mux.HandleFunc("POST /api/cleanup/unreferenced", s.app.ReferenceHandler.DeleteUnreferencedHandler)
	mux.HandleFunc("POST /api/cleanup/duplicates/{group}", s.app.DuplicateHandler.DeleteHandler)
	mux.HandleFunc("GET /api/cleanup/logs/stats", s.app.CleanupLogHandler.StatsHandler)
	mux.HandleFunc("/api/cleanup/logs", s.handleCleanupLogsRoute) // GET (list), DELETE (clear)

	// API routes - Batch processing
	mux.HandleFunc("POST /api/batch/tasks", s.app.BatchHandler.CreateTaskHandler)
	mux.HandleFunc("DELETE /api/batch/tasks/current", s.app.BatchHandler.CancelTaskHandler)
	mux.HandleFunc("GET /api/batch/status", s.app.BatchHandler.StatusHandler)
	mux.HandleFunc("GET /api/batch/settings", s.app.BatchHandler.SettingsHandler)
	mux.HandleFunc("POST /api/batch/check-references", s.app.BatchHandler.CheckReferencesHandler)

	// API routes - Scheduler
	mux.HandleFunc("GET /api/scheduler/jobs", s.app.SchedulerHandler.ListJobsHandler)
	mux.HandleFunc("POST /api/scheduler/jobs/{name}", s.app.SchedulerHandler.RunJobHandler)

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/health", s.app.APIHandler.HealthHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/", s.app.APIHandler.NotFoundHandler)

	return mux
}

func (s *Server) handleReferencesRoute(w http.ResponseWriter, r *http.Request) {
	RouteCRUD(w, r, s.app.ReferenceHandler.ListHandler, nil, nil, s.app.ReferenceHandler.ClearHandler)
}

func (s *Server) handleDuplicatesRoute(w http.ResponseWriter, r *http.Request) {
	RouteCRUD(w, r, s.app.DuplicateHandler.ListHandler, nil, nil, s.app.DuplicateHandler.ClearHandler)
}

func (s *Server) handleBrokenLinksRoute(w http.ResponseWriter, r *http.Request) {
	RouteCRUD(w, r, s.app.BrokenLinkHandler.ListHandler, nil, nil, s.app.BrokenLinkHandler.ClearHandler)
}

func (s *Server) handleWhitelistRoute(w http.ResponseWriter, r *http.Request) {
	RouteCRUD(w, r,
		s.app.WhitelistHandler.ListHandler,
		s.app.WhitelistHandler.CreateHandler,
		nil,
		s.app.WhitelistHandler.ClearHandler,
	)
}

func (s *Server) handleCleanupLogsRoute(w http.ResponseWriter, r *http.Request) {
	RouteCRUD(w, r, s.app.CleanupLogHandler.ListHandler, nil, nil, s.app.CleanupLogHandler.ClearHandler)
}
