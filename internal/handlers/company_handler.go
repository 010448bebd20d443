package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/fides/internal/models"
	"github.com/ternarybob/fides/internal/services/companies"
)

// CompanyHandler handles HTTP requests for company management
type CompanyHandler struct {
	companyService *companies.Service
	defaultUserID  string
	logger         arbor.ILogger
}

// NewCompanyHandler creates a new CompanyHandler. Requests without an
// X-User-ID header are attributed to the default owner.
func NewCompanyHandler(companyService *companies.Service, defaultUserID string, logger arbor.ILogger) *CompanyHandler {
	return &CompanyHandler{
		companyService: companyService,
		defaultUserID:  defaultUserID,
		logger:         logger,
	}
}

// ListCompaniesHandler handles GET /api/companies
func (h *CompanyHandler) ListCompaniesHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	userID := requestUserID(r, h.defaultUserID)
	list, err := h.companyService.ListCompanies(r.Context(), userID)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list companies")
		WriteError(w, http.StatusInternalServerError, "Failed to list companies")
		return
	}

	if list == nil {
		list = []*models.Company{}
	}
	WriteJSON(w, http.StatusOK, list)
}

// CreateCompanyHandler handles POST /api/companies
func (h *CompanyHandler) CreateCompanyHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var input companies.CreateCompanyInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.logger.Error().Err(err).Msg("Failed to decode request body")
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	userID := requestUserID(r, h.defaultUserID)
	company, targets, err := h.companyService.CreateCompany(r.Context(), userID, &input)
	if err != nil {
		h.logger.Error().Err(err).Str("name", input.Name).Msg("Failed to create company")
		switch {
		case strings.Contains(err.Error(), "validation failed"):
			WriteError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, models.ErrNotFound):
			WriteError(w, http.StatusBadRequest, "Unknown owner")
		default:
			WriteError(w, http.StatusInternalServerError, "Failed to create company")
		}
		return
	}

	WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"company": company,
		"targets": targets,
	})
}

// GetCompanyHandler handles GET /api/companies/{id}
func (h *CompanyHandler) GetCompanyHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	id := extractIDFromPath(r.URL.Path, "/api/companies/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Company ID is required")
		return
	}

	company, err := h.companyService.GetCompany(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "Company not found")
		} else {
			h.logger.Error().Err(err).Str("id", id).Msg("Failed to get company")
			WriteError(w, http.StatusInternalServerError, "Failed to get company")
		}
		return
	}

	WriteJSON(w, http.StatusOK, company)
}

// DeleteCompanyHandler handles DELETE /api/companies/{id}
func (h *CompanyHandler) DeleteCompanyHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "DELETE") {
		return
	}

	id := extractIDFromPath(r.URL.Path, "/api/companies/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Company ID is required")
		return
	}

	if err := h.companyService.DeleteCompany(r.Context(), id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "Company not found")
		} else {
			h.logger.Error().Err(err).Str("id", id).Msg("Failed to delete company")
			WriteError(w, http.StatusInternalServerError, "Failed to delete company")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CompanyClaimsHandler handles GET /api/companies/{id}/claims
func (h *CompanyHandler) CompanyClaimsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	id := strings.TrimSuffix(extractIDFromPath(r.URL.Path, "/api/companies/"), "/claims")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Company ID is required")
		return
	}

	includeVersions := r.URL.Query().Get("versions") == "true"
	claims, err := h.companyService.ListClaims(r.Context(), id, includeVersions)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "Company not found")
		} else {
			h.logger.Error().Err(err).Str("id", id).Msg("Failed to list claims")
			WriteError(w, http.StatusInternalServerError, "Failed to list claims")
		}
		return
	}

	if claims == nil {
		claims = []*companies.ClaimWithVersions{}
	}
	WriteJSON(w, http.StatusOK, claims)
}

// CompanyEvidenceHandler handles GET /api/companies/{id}/evidence
func (h *CompanyHandler) CompanyEvidenceHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	id := strings.TrimSuffix(extractIDFromPath(r.URL.Path, "/api/companies/"), "/evidence")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Company ID is required")
		return
	}

	evidence, err := h.companyService.ListEvidence(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "Company not found")
		} else {
			h.logger.Error().Err(err).Str("id", id).Msg("Failed to list evidence")
			WriteError(w, http.StatusInternalServerError, "Failed to list evidence")
		}
		return
	}

	if evidence == nil {
		evidence = []*models.Evidence{}
	}
	WriteJSON(w, http.StatusOK, evidence)
}
