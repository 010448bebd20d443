package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/fides/internal/interfaces"
	"github.com/ternarybob/fides/internal/models"
)

// handleListCompanies implements the list_companies tool
func handleListCompanies(storage interfaces.StorageManager, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		companies, err := storage.Companies().ListAllCompanies(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("List companies failed")
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.NewTextContent(fmt.Sprintf("List error: %v", err)),
				},
			}, nil
		}

		markdown := formatCompanies(companies)
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.NewTextContent(markdown),
			},
		}, nil
	}
}

// handleGetCompanyClaims implements the get_company_claims tool
func handleGetCompanyClaims(storage interfaces.StorageManager, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		// Parse company_id parameter (required)
		companyID, err := request.RequireString("company_id")
		if err != nil || companyID == "" {
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.NewTextContent("Error: company_id parameter is required"),
				},
			}, nil
		}

		company, err := storage.Companies().GetCompany(ctx, companyID)
		if err != nil {
			logger.Error().Err(err).Str("company_id", companyID).Msg("GetCompany failed")
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.NewTextContent(fmt.Sprintf("Company not found: %v", err)),
				},
			}, nil
		}

		claims, err := storage.Claims().ListClaimsByCompany(ctx, companyID)
		if err != nil {
			logger.Error().Err(err).Str("company_id", companyID).Msg("ListClaimsByCompany failed")
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.NewTextContent(fmt.Sprintf("Claims error: %v", err)),
				},
			}, nil
		}

		markdown := formatCompanyClaims(company, claims)
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.NewTextContent(markdown),
			},
		}, nil
	}
}

// handleListChangeEvents implements the list_change_events tool
func handleListChangeEvents(storage interfaces.StorageManager, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		filter := &interfaces.EventFilter{
			CompanyID: request.GetString("company_id", ""),
		}

		// Parse severity filter
		if raw := request.GetString("severity", ""); raw != "" {
			severity := models.Severity(strings.ToLower(raw))
			switch severity {
			case models.SeverityInfo, models.SeverityMedium, models.SeverityCritical:
				filter.Severity = severity
			default:
				return &mcp.CallToolResult{
					Content: []mcp.Content{
						mcp.NewTextContent("Error: severity must be one of info, medium, critical"),
					},
				}, nil
			}
		}

		// Parse limit (default: 20, max: 100)
		limit := request.GetInt("limit", 20)
		if limit > 100 {
			limit = 100
		}
		filter.Limit = limit

		events, err := storage.Events().ListEvents(ctx, filter)
		if err != nil {
			logger.Error().Err(err).Msg("ListEvents failed")
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.NewTextContent(fmt.Sprintf("Events error: %v", err)),
				},
			}, nil
		}

		markdown := formatChangeEvents(filter, events)
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.NewTextContent(markdown),
			},
		}, nil
	}
}
