package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/fides/internal/interfaces"
	"github.com/ternarybob/fides/internal/models"
)

// formatCompanies formats the company list as markdown
func formatCompanies(companies []*models.Company) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Monitored Companies (%d)\n\n", len(companies)))

	if len(companies) == 0 {
		sb.WriteString("No companies found.\n")
		return sb.String()
	}

	for i, company := range companies {
		sb.WriteString(fmt.Sprintf("### %d. %s\n", i+1, company.Name))
		sb.WriteString(fmt.Sprintf("**ID:** %s\n", company.ID))
		sb.WriteString(fmt.Sprintf("**Domain:** %s\n", company.Domain))
		sb.WriteString(fmt.Sprintf("**Risk Score:** %d\n", company.RiskScore))
		sb.WriteString(fmt.Sprintf("**Categories:** %s\n", formatCategories(company.Categories)))
		if company.LastCrawledAt != nil {
			sb.WriteString(fmt.Sprintf("**Last Crawled:** %s\n", company.LastCrawledAt.Format(time.RFC3339)))
		} else {
			sb.WriteString("**Last Crawled:** never\n")
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// formatCompanyClaims formats a company's claims as markdown
func formatCompanyClaims(company *models.Company, claims []*models.Claim) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Claims for %s (%d)\n\n", company.Name, len(claims)))
	sb.WriteString(fmt.Sprintf("**Domain:** %s | **Risk Score:** %d\n\n", company.Domain, company.RiskScore))

	if len(claims) == 0 {
		sb.WriteString("No claims tracked yet.\n")
		return sb.String()
	}

	for i, claim := range claims {
		sb.WriteString(fmt.Sprintf("### %d. %s\n", i+1, claim.Key))
		sb.WriteString(fmt.Sprintf("**Type:** %s | **Status:** %s | **Confidence:** %.2f\n", claim.ClaimType, claim.Status, claim.Confidence))
		sb.WriteString(fmt.Sprintf("**Source:** %s\n", claim.SourceURL))
		sb.WriteString(fmt.Sprintf("**First Seen:** %s | **Last Seen:** %s\n\n", claim.FirstSeenAt.Format(time.RFC3339), claim.LastSeenAt.Format(time.RFC3339)))

		sb.WriteString("> ")
		sb.WriteString(claim.Snippet)
		sb.WriteString("\n\n---\n\n")
	}

	return sb.String()
}

// formatChangeEvents formats change events as markdown
func formatChangeEvents(filter *interfaces.EventFilter, events []*models.ChangeEvent) string {
	var sb strings.Builder

	var scope []string
	if filter.CompanyID != "" {
		scope = append(scope, fmt.Sprintf("company %s", filter.CompanyID))
	}
	if filter.Severity != "" {
		scope = append(scope, fmt.Sprintf("severity %s", filter.Severity))
	}
	if len(scope) > 0 {
		sb.WriteString(fmt.Sprintf("## Change Events for %s (%d)\n\n", strings.Join(scope, ", "), len(events)))
	} else {
		sb.WriteString(fmt.Sprintf("## Change Events (%d)\n\n", len(events)))
	}

	if len(events) == 0 {
		sb.WriteString("No change events found.\n")
		return sb.String()
	}

	for i, event := range events {
		sb.WriteString(fmt.Sprintf("### %d. [%s] %s %s\n", i+1, strings.ToUpper(string(event.Severity)), event.EventType, event.Key))
		sb.WriteString(fmt.Sprintf("**ID:** %s | **Company:** %s | **Claim Type:** %s\n", event.ID, event.CompanyID, event.ClaimType))
		sb.WriteString(fmt.Sprintf("**Detected:** %s | **Acknowledged:** %v\n", event.DetectedAt.Format(time.RFC3339), event.Acknowledged))
		sb.WriteString(fmt.Sprintf("**Source:** %s\n\n", event.SourceURL))

		if event.OldSnippet != "" {
			sb.WriteString(fmt.Sprintf("**Was:** %s\n", event.OldSnippet))
		}
		if event.NewSnippet != "" {
			sb.WriteString(fmt.Sprintf("**Now:** %s\n", event.NewSnippet))
		}
		sb.WriteString("\n---\n\n")
	}

	return sb.String()
}

// formatCategories renders the category list for display
func formatCategories(categories []models.Category) string {
	if len(categories) == 0 {
		return "none"
	}
	parts := make([]string, len(categories))
	for i, c := range categories {
		parts[i] = string(c)
	}
	return strings.Join(parts, ", ")
}
