package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// API routes - Company management
	mux.HandleFunc("/api/companies", s.handleCompaniesRoute) // GET (list), POST (create)
	mux.HandleFunc("/api/companies/", s.handleCompanyRoutes) // GET/DELETE /{id}, GET /{id}/claims, GET /{id}/evidence

	// API routes - Crawl control
	mux.HandleFunc("/api/crawl/run", s.app.CrawlHandler.RunCrawlHandler)   // POST - launch a crawl run
	mux.HandleFunc("/api/crawl/runs", s.app.CrawlHandler.ListRunsHandler) // GET - recent crawl runs

	// API routes - Change events
	mux.HandleFunc("/api/events", s.app.EventHandler.ListEventsHandler) // GET - list with filters
	mux.HandleFunc("/api/events/", s.handleEventRoutes)                 // POST /{id}/ack

	// API routes - System
	mux.HandleFunc("/api/status", s.app.StatusHandler.GetStatusHandler) // GET - pipeline status
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)
	mux.HandleFunc("/api/shutdown", s.ShutdownHandler) // Graceful shutdown endpoint (dev mode)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleCompaniesRoute routes /api/companies requests (list and create)
func (s *Server) handleCompaniesRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		s.app.CompanyHandler.ListCompaniesHandler(w, r)
	case "POST":
		s.app.CompanyHandler.CreateCompanyHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleCompanyRoutes routes /api/companies/{id} requests and subpaths
func (s *Server) handleCompanyRoutes(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	// GET /api/companies/{id}/claims
	if r.Method == "GET" && strings.HasSuffix(path, "/claims") {
		s.app.CompanyHandler.CompanyClaimsHandler(w, r)
		return
	}

	// GET /api/companies/{id}/evidence
	if r.Method == "GET" && strings.HasSuffix(path, "/evidence") {
		s.app.CompanyHandler.CompanyEvidenceHandler(w, r)
		return
	}

	// GET /api/companies/{id}
	if r.Method == "GET" && len(path) > len("/api/companies/") {
		s.app.CompanyHandler.GetCompanyHandler(w, r)
		return
	}

	// DELETE /api/companies/{id}
	if r.Method == "DELETE" && len(path) > len("/api/companies/") {
		s.app.CompanyHandler.DeleteCompanyHandler(w, r)
		return
	}

	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
}

// handleEventRoutes routes /api/events/{id} subpaths
func (s *Server) handleEventRoutes(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	// POST /api/events/{id}/ack
	if r.Method == "POST" && strings.HasSuffix(path, "/ack") {
		s.app.EventHandler.AckEventHandler(w, r)
		return
	}

	http.Error(w, "Not found", http.StatusNotFound)
}
