package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/fides/internal/interfaces"
	"github.com/ternarybob/fides/internal/models"
)

// CrawlHandler handles HTTP requests for crawl runs
type CrawlHandler struct {
	launcher interfaces.CrawlLauncher
	runs     interfaces.RunStorage
	logger   arbor.ILogger
}

// NewCrawlHandler creates a new CrawlHandler
func NewCrawlHandler(launcher interfaces.CrawlLauncher, runs interfaces.RunStorage, logger arbor.ILogger) *CrawlHandler {
	return &CrawlHandler{
		launcher: launcher,
		runs:     runs,
		logger:   logger,
	}
}

type runCrawlRequest struct {
	CompanyID string `json:"companyId"`
}

// RunCrawlHandler handles POST /api/crawl/run. An empty or absent
// companyId launches a crawl over every company.
func (h *CrawlHandler) RunCrawlHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req runCrawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		h.logger.Error().Err(err).Msg("Failed to decode request body")
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	run, err := h.launcher.LaunchCrawl(r.Context(), req.CompanyID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "Company not found")
		} else {
			h.logger.Error().Err(err).Str("company_id", req.CompanyID).Msg("Failed to launch crawl")
			WriteError(w, http.StatusInternalServerError, "Failed to launch crawl")
		}
		return
	}

	WriteJSON(w, http.StatusAccepted, run)
}

// ListRunsHandler handles GET /api/crawl/runs
func (h *CrawlHandler) ListRunsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	runs, err := h.runs.ListRuns(r.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list crawl runs")
		WriteError(w, http.StatusInternalServerError, "Failed to list crawl runs")
		return
	}

	if runs == nil {
		runs = []*models.CrawlRun{}
	}
	WriteJSON(w, http.StatusOK, runs)
}
