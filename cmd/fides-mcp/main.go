package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"
	arbor_models "github.com/ternarybob/arbor/models"

	"github.com/ternarybob/fides/internal/common"
	badgerstore "github.com/ternarybob/fides/internal/storage/badger"
)

func main() {
	// Load configuration. FIDES_CONFIG points at an explicit file;
	// otherwise fides.toml in the working directory, otherwise defaults.
	configPath := os.Getenv("FIDES_CONFIG")
	if configPath == "" {
		if _, err := os.Stat("fides.toml"); err == nil {
			configPath = "fides.toml"
		}
	}

	config, err := common.LoadFromFiles(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize minimal logger for MCP server (console only, no file output)
	logger := arbor.NewLogger().WithConsoleWriter(arbor_models.WriterConfiguration{
		Type:             arbor_models.LogWriterTypeConsole,
		TimeFormat:       "15:04:05",
		DisableTimestamp: false,
	}).WithLevelFromString("warn") // Minimal logging to avoid cluttering MCP stdio

	// Initialize storage (shared with the fides process; queries only)
	storageManager, err := badgerstore.NewManager(logger, &config.Storage.Badger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize storage")
	}
	defer storageManager.Close()

	// Create MCP server
	mcpServer := server.NewMCPServer(
		"fides",
		common.GetVersion(),
		server.WithToolCapabilities(true),
	)

	// Register query tools
	mcpServer.AddTool(createListCompaniesTool(), handleListCompanies(storageManager, logger))
	mcpServer.AddTool(createGetCompanyClaimsTool(), handleGetCompanyClaims(storageManager, logger))
	mcpServer.AddTool(createListChangeEventsTool(), handleListChangeEvents(storageManager, logger))

	// Start server (blocks on stdio)
	if err := server.ServeStdio(mcpServer); err != nil {
		logger.Fatal().Err(err).Msg("MCP server failed")
	}
}
