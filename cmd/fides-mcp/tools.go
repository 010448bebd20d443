package main

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// createListCompaniesTool returns the list_companies tool definition
func createListCompaniesTool() mcp.Tool {
	return mcp.NewTool("list_companies",
		mcp.WithDescription("List all monitored vendor companies with risk scores and crawl state"),
	)
}

// createGetCompanyClaimsTool returns the get_company_claims tool definition
func createGetCompanyClaimsTool() mcp.Tool {
	return mcp.NewTool("get_company_claims",
		mcp.WithDescription("List the trust claims currently tracked for one company"),
		mcp.WithString("company_id",
			mcp.Required(),
			mcp.Description("Company ID (format: cmp_{uuid})"),
		),
	)
}

// createListChangeEventsTool returns the list_change_events tool definition
func createListChangeEventsTool() mcp.Tool {
	return mcp.NewTool("list_change_events",
		mcp.WithDescription("List detected trust-claim change events, newest first"),
		mcp.WithString("company_id",
			mcp.Description("Filter by company ID"),
		),
		mcp.WithString("severity",
			mcp.Description("Filter by severity: info, medium, critical"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum results to return (default: 20, max: 100)"),
		),
	)
}
