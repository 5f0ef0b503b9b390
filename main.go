/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see LICENSE file for details.                                       *
 ******************************************************************************/

package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/tenebris-tech/mlogger"

	"github.com/PivotLLM/LedgerMCP/adapter"
	"github.com/PivotLLM/LedgerMCP/db"
	"github.com/PivotLLM/LedgerMCP/global"
	"github.com/PivotLLM/LedgerMCP/mcpserver"
)

// Version information
const (
	AppName    = "LedgerMCP"
	AppVersion = "0.1.0"
)

func main() {
	var err error
	var listen string

	// Define command line flags
	debugFlag := flag.Bool("debug", false, "Enable debug mode")
	portFlag := flag.Int("port", 8888, "Port to listen on")
	noStreamingFlag := flag.Bool("no-streaming", false, "Disable streaming (use plain HTTP instead of SSE)")
	configFlag := flag.String("config", "", "Path to adapter configuration file")
	helpFlag := flag.Bool("help", false, "Show help information")
	versionFlag := flag.Bool("version", false, "Show version information")

	// Token management subcommands
	tokenAddFlag := flag.String("token-add", "", "Add new API token with description")
	tokenListFlag := flag.Bool("token-list", false, "List all API tokens")
	tokenDeleteFlag := flag.String("token-del", "", "Delete API token by prefix or hash")

	// Database maintenance
	backupFlag := flag.String("backup", "", "Write a consistent database backup to the given path and exit")

	// Set custom usage message
	flag.Usage = func() {
		fmt.Printf("LedgerMCP - Model Context Protocol Server for Accounting Data\n\n")
		fmt.Printf("Usage:\n")
		fmt.Printf("  %s [options]\n\n", os.Args[0])
		fmt.Printf("Server Options:\n")
		fmt.Printf("  -config string\n")
		fmt.Printf("        Path to adapter configuration file\n")
		fmt.Printf("  -debug\n")
		fmt.Printf("        Enable debug mode\n")
		fmt.Printf("  -help\n")
		fmt.Printf("        Show help information\n")
		fmt.Printf("  -no-streaming\n")
		fmt.Printf("        Disable streaming (use plain HTTP instead of SSE)\n")
		fmt.Printf("  -port int\n")
		fmt.Printf("        Port to listen on (default 8888)\n")
		fmt.Printf("  -version\n")
		fmt.Printf("        Show version information\n\n")
		fmt.Printf("Token Management Commands:\n")
		fmt.Printf("  -token-add string\n")
		fmt.Printf("        Add new API token with description\n")
		fmt.Printf("  -token-list\n")
		fmt.Printf("        List all API tokens\n")
		fmt.Printf("  -token-del string\n")
		fmt.Printf("        Delete API token by prefix or hash\n\n")
		fmt.Printf("Database Maintenance:\n")
		fmt.Printf("  -backup string\n")
		fmt.Printf("        Write a consistent database backup to the given path and exit\n\n")
		fmt.Printf("Environment Variables:\n")
		fmt.Printf("  LEDGER_MCP_CONFIG          Path to adapter configuration file\n")
		fmt.Printf("  LEDGER_MCP_LISTEN          Listen address (overrides -port)\n")
		fmt.Printf("  LEDGER_MCP_DB_DIR          Custom database directory (default: ~/.ledgermcp)\n")
		fmt.Printf("  LEDGER_MCP_ENCRYPTION_KEY  Hex-encoded 32-byte key for token encryption at rest\n\n")
		fmt.Printf("Examples:\n")
		fmt.Printf("  # Start server with configuration\n")
		fmt.Printf("  %s -config configs/exactonline.json -port 8888\n\n", os.Args[0])
		fmt.Printf("  # Token management examples\n")
		fmt.Printf("  %s -token-add \"Production token\"\n", os.Args[0])
		fmt.Printf("  %s -token-list\n", os.Args[0])
		fmt.Printf("  %s -token-del abc12345\n\n", os.Args[0])
	}

	// Parse command line flags
	flag.Parse()

	// Show help and exit if requested
	if *helpFlag {
		flag.Usage()
		os.Exit(0)
	}

	// Show version and exit if requested
	if *versionFlag {
		fmt.Printf("%s version %s\n", AppName, AppVersion)
		os.Exit(0)
	}

	// Use the flag values
	debug := *debugFlag
	noStreaming := *noStreamingFlag

	logger, err := mlogger.New(
		mlogger.WithPrefix(AppName),
		mlogger.WithDateFormat("2006-01-02 15:04:05"),
		mlogger.WithLogFile("ledgermcp.log"),
		mlogger.WithLogStdout(true),
		mlogger.WithDebug(debug),
	)
	if err != nil {
		fmt.Printf("Unable to create logger: %v", err)
		os.Exit(1)
	}

	// Load environment variables from config files in priority order:
	// 1. /opt/ledgermcp/env
	// 2. ~/.ledgermcp.env
	envFiles := []string{
		"/opt/ledgermcp/env",
	}

	homeDir, err := os.UserHomeDir()
	if err == nil {
		envFiles = append(envFiles,
			homeDir+string(os.PathSeparator)+".ledgermcp.env",
		)
	}

	// Try to load each config file in order
	for _, envFile := range envFiles {
		if _, err := os.Stat(envFile); err == nil {
			err = godotenv.Load(envFile)
			if err == nil {
				logger.Infof("Loaded environment variables from %s", envFile)
				break // Stop after loading the first successful file
			}
		}
	}

	// Now that env files are loaded, locate the adapter config
	configPath := *configFlag
	if configPath == "" {
		if envConfig := os.Getenv("LEDGER_MCP_CONFIG"); envConfig != "" {
			configPath = envConfig
			logger.Infof("Using adapter config from LEDGER_MCP_CONFIG: %s", envConfig)
		}
	}

	// Determine listen address from environment or flag
	if envListen := os.Getenv("LEDGER_MCP_LISTEN"); envListen != "" {
		listen = envListen
		logger.Infof("Using listen address from LEDGER_MCP_LISTEN: %s", envListen)
	} else if *portFlag > 0 && *portFlag < 65536 {
		listen = fmt.Sprintf("localhost:%d", *portFlag)
	} else {
		listen = "localhost:8888"
	}

	// Initialize database
	logger.Info("Initializing database")

	dbOpts := []db.Option{
		db.WithLogger(logger),
	}
	if dbDataDir := os.Getenv("LEDGER_MCP_DB_DIR"); dbDataDir != "" {
		dbOpts = append(dbOpts, db.WithDataDir(dbDataDir))
	}
	if encKey := os.Getenv("LEDGER_MCP_ENCRYPTION_KEY"); encKey != "" {
		dbOpts = append(dbOpts, db.WithEncryptionKey(encKey))
	} else {
		logger.Warning("LEDGER_MCP_ENCRYPTION_KEY not set, connection tokens will be stored unencrypted")
	}

	database, err := db.New(dbOpts...)
	if err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}
	logger.Info("Database initialized successfully")

	// Handle token management commands if specified
	if *tokenAddFlag != "" || *tokenListFlag || *tokenDeleteFlag != "" {
		if err := handleTokenCommands(database, *tokenAddFlag, *tokenListFlag, *tokenDeleteFlag); err != nil {
			logger.Fatalf("Token management failed: %v", err)
		}
		// Exit after token management - don't start server
		_ = database.Close()
		os.Exit(0)
	}

	// Handle database backup if requested
	if *backupFlag != "" {
		if err := database.Backup(*backupFlag); err != nil {
			logger.Fatalf("Backup failed: %v", err)
		}
		fmt.Printf("Database backed up to %s\n", *backupFlag)
		_ = database.Close()
		os.Exit(0)
	}

	if configPath == "" {
		logger.Fatalf("No adapter configuration provided; use -config or LEDGER_MCP_CONFIG")
	}

	config, err := adapter.LoadConfig(configPath)
	if err != nil {
		logger.Fatalf("Failed to load adapter configuration: %v", err)
	}
	logger.Infof("Loaded adapter configuration from %s", configPath)

	provider := adapter.NewProvider(database, config, logger)
	providers := []global.ToolProvider{provider}

	authMiddleware := mcpserver.NewAuthMiddleware(database,
		mcpserver.WithAuthLogger(logger),
		mcpserver.WithRequireAuth(true),
	)

	mcp, err := mcpserver.New(
		mcpserver.WithListen(listen),
		mcpserver.WithDebug(debug),
		mcpserver.WithLogger(logger),
		mcpserver.WithName(AppName),
		mcpserver.WithVersion(AppVersion),
		mcpserver.WithNoStreaming(noStreaming),
		mcpserver.WithToolProviders(providers),
		mcpserver.WithAuthMiddleware(authMiddleware),
	)
	if err != nil {
		logger.Fatalf("Unable to create MCP server: %v", err)
		os.Exit(1)
	}

	// Start MCP server
	if err = mcp.Start(); err != nil {
		logger.Fatalf("MCP server failed to start: %v", err)
	}

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Wait for termination signal
	<-sigChan
	logger.Infof("Shutting down...")

	// Stop the MCP server
	if err = mcp.Stop(); err != nil {
		logger.Errorf("Error stopping MCP server: %s", err.Error())
		os.Exit(1)
	}

	// Close database connection
	if err := database.Close(); err != nil {
		logger.Errorf("Error closing database: %v", err)
	} else {
		logger.Info("Database connection closed successfully")
	}

	logger.Infof("MCP server stopped successfully")

	os.Exit(0)
}

// handleTokenCommands processes token management commands
func handleTokenCommands(database db.Database, tokenAdd string, tokenList bool, tokenDelete string) error {
	if tokenAdd != "" {
		return handleTokenAdd(database, tokenAdd)
	}

	if tokenList {
		return handleTokenList(database)
	}

	if tokenDelete != "" {
		return handleTokenDelete(database, tokenDelete)
	}

	return nil
}

// handleTokenAdd creates a new API token
func handleTokenAdd(database db.Database, description string) error {
	if description == "" {
		description = "API Token"
	}

	if len(description) > 255 {
		return fmt.Errorf("description too long (max 255 characters)")
	}

	fmt.Printf("Generating new API token...\n")

	token, hash, err := database.AddAPIToken(description)
	if err != nil {
		return fmt.Errorf("failed to create API token: %w", err)
	}

	// Show the token only once with security warning
	fmt.Printf("\n")
	fmt.Printf("API Token created successfully\n")
	fmt.Printf("\n")
	fmt.Printf("SECURITY WARNING: This token will only be displayed once!\n")
	fmt.Printf("   Copy it now and store it securely.\n")
	fmt.Printf("\n")
	fmt.Printf("Token:       %s\n", token)
	fmt.Printf("Hash:        %s\n", hash[:12])
	fmt.Printf("Description: %s\n", description)
	fmt.Printf("\n")
	fmt.Printf("Use this token in the Authorization header:\n")
	fmt.Printf("  Authorization: Bearer %s\n", token)
	fmt.Printf("\n")

	return nil
}

// handleTokenList displays all API tokens
func handleTokenList(database db.Database) error {
	tokens, err := database.ListAPITokens()
	if err != nil {
		return fmt.Errorf("failed to list API tokens: %w", err)
	}

	if len(tokens) == 0 {
		fmt.Printf("No API tokens found.\n")
		fmt.Printf("Create one with: %s -token-add \"Description\"\n", os.Args[0])
		return nil
	}

	fmt.Printf("API Tokens:\n")
	fmt.Printf("%-10s %-20s %-20s %-20s %s\n", "PREFIX", "HASH", "CREATED", "LAST USED", "DESCRIPTION")
	fmt.Printf("%-10s %-20s %-20s %-20s %s\n", "------", "----", "-------", "---------", "-----------")

	for _, token := range tokens {
		prefix := token.Hash[:8]
		shortHash := token.Hash[:12]

		createdAt := token.CreatedAt.Format("2006-01-02 15:04:05")

		lastUsed := "Never used"
		if !token.LastUsed.IsZero() {
			lastUsed = token.LastUsed.Format("2006-01-02 15:04:05")
		}

		description := token.Description
		if len(description) > 30 {
			description = description[:27] + "..."
		}

		fmt.Printf("%-10s %-20s %-20s %-20s %s\n", prefix, shortHash, createdAt, lastUsed, description)
	}

	fmt.Printf("\nTotal: %d tokens\n", len(tokens))
	return nil
}

// handleTokenDelete removes an API token
func handleTokenDelete(database db.Database, identifier string) error {
	if identifier == "" {
		return fmt.Errorf("token identifier is required")
	}

	hash, err := database.ResolveAPIToken(identifier)
	if err != nil {
		return fmt.Errorf("failed to resolve API token: %w", err)
	}

	meta, err := database.GetAPITokenMetadata(hash)
	if err != nil {
		return fmt.Errorf("failed to load token metadata: %w", err)
	}

	// Show token details and confirm deletion
	fmt.Printf("Token Details:\n")
	fmt.Printf("  Hash: %s\n", meta.Hash[:12])
	fmt.Printf("  Description: %s\n", meta.Description)
	fmt.Printf("  Created: %s\n", meta.CreatedAt.Format("2006-01-02 15:04:05"))

	fmt.Printf("Are you sure you want to delete this token? (y/N): ")
	var response string
	_, _ = fmt.Scanln(&response)

	if !strings.EqualFold(response, "y") && !strings.EqualFold(response, "yes") {
		fmt.Printf("Token deletion cancelled.\n")
		return nil
	}

	if err := database.DeleteAPIToken(meta.Hash); err != nil {
		return fmt.Errorf("failed to delete API token: %w", err)
	}

	fmt.Printf("Token deleted successfully.\n")
	return nil
}
