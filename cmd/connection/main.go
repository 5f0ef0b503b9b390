/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see LICENSE file for details.                                       *
 ******************************************************************************/

package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/tenebris-tech/mlogger"

	"github.com/PivotLLM/LedgerMCP/db"
	"github.com/PivotLLM/LedgerMCP/global"
)

const (
	ExitError = 1
)

// CLI colors for better UX
const (
	ColorReset  = "\033[0m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorCyan   = "\033[36m"
)

type Config struct {
	DataDir string
	Debug   bool
	NoColor bool

	// add command fields
	Region       string
	Division     string
	Description  string
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
}

func main() {
	config := parseFlags()

	logger, err := createLogger(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to initialize logger: %v\n", err)
		os.Exit(ExitError)
	}
	defer logger.Close()

	database, err := initializeDatabase(config, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to initialize database: %v\n", err)
		os.Exit(ExitError)
	}
	defer func() { _ = database.Close() }()

	if err := executeCommand(config, database); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitError)
	}
}

func parseFlags() *Config {
	config := &Config{}

	flag.StringVar(&config.DataDir, "data-dir", "", "Data directory path (default: ~/.ledgermcp)")
	flag.BoolVar(&config.Debug, "debug", false, "Enable debug logging")
	flag.BoolVar(&config.NoColor, "no-color", false, "Disable colored output")
	flag.StringVar(&config.Region, "region", "nl", "Platform region code (nl, be, de, fr, es, gb, us)")
	flag.StringVar(&config.Division, "division", "", "Default division code for the connection")
	flag.StringVar(&config.Description, "description", "", "Human-readable connection description")
	flag.StringVar(&config.AccessToken, "access-token", "", "OAuth access token (or set LEDGER_ACCESS_TOKEN)")
	flag.StringVar(&config.RefreshToken, "refresh-token", "", "OAuth refresh token (or set LEDGER_REFRESH_TOKEN)")
	flag.IntVar(&config.ExpiresIn, "expires-in", 600, "Access token lifetime in seconds")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "LedgerMCP Connection Management CLI\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n")
		fmt.Fprintf(os.Stderr, "  %s [flags] <command> [arguments]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  add <id>        Import a connection with an OAuth token pair\n")
		fmt.Fprintf(os.Stderr, "  list            List all connections\n")
		fmt.Fprintf(os.Stderr, "  show <id>       Show connection details\n")
		fmt.Fprintf(os.Stderr, "  delete <id>     Delete a connection\n")
		fmt.Fprintf(os.Stderr, "  help            Show this help message\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  LEDGER_ACCESS_TOKEN        Access token for 'add' (preferred over the flag)\n")
		fmt.Fprintf(os.Stderr, "  LEDGER_REFRESH_TOKEN       Refresh token for 'add' (preferred over the flag)\n")
		fmt.Fprintf(os.Stderr, "  LEDGER_MCP_ENCRYPTION_KEY  Hex-encoded key matching the server configuration\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -region nl -division 123456 add acme-nl\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s list\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s delete acme-nl\n", os.Args[0])
	}

	flag.Parse()
	return config
}

func createLogger(config *Config) (global.Logger, error) {
	loggerOpts := []mlogger.Option{
		mlogger.WithPrefix("connection-cli"),
		mlogger.WithLogStdout(false), // CLI output should not be mixed with logs
		mlogger.WithDebug(config.Debug),
	}

	if config.Debug {
		logFile := filepath.Join(os.TempDir(), "ledgermcp-connection-cli.log")
		loggerOpts = append(loggerOpts,
			mlogger.WithLogFile(logFile),
			mlogger.WithLogStdout(true))
	}

	return mlogger.New(loggerOpts...)
}

func initializeDatabase(config *Config, logger global.Logger) (db.Database, error) {
	dbOpts := []db.Option{
		db.WithLogger(logger),
	}

	dataDir := config.DataDir
	if dataDir == "" {
		dataDir = os.Getenv("LEDGER_MCP_DB_DIR")
	}
	if dataDir != "" {
		dbOpts = append(dbOpts, db.WithDataDir(dataDir))
	}

	if encKey := os.Getenv("LEDGER_MCP_ENCRYPTION_KEY"); encKey != "" {
		dbOpts = append(dbOpts, db.WithEncryptionKey(encKey))
	}

	return db.New(dbOpts...)
}

func executeCommand(config *Config, database db.Database) error {
	args := flag.Args()
	if len(args) == 0 {
		return fmt.Errorf("no command specified. Use 'help' for usage information")
	}

	command := args[0]

	switch command {
	case "add":
		return handleAddCommand(config, database, args[1:])
	case "list":
		return handleListCommand(config, database, args[1:])
	case "show":
		return handleShowCommand(config, database, args[1:])
	case "delete":
		return handleDeleteCommand(config, database, args[1:])
	case "help", "-h", "--help":
		flag.Usage()
		return nil
	default:
		return fmt.Errorf("unknown command '%s'. Use 'help' for usage information", command)
	}
}

func handleAddCommand(config *Config, database db.Database, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("add command requires exactly one argument (connection id)")
	}
	id := args[0]

	accessToken := config.AccessToken
	if env := os.Getenv("LEDGER_ACCESS_TOKEN"); env != "" {
		accessToken = env
	}
	refreshToken := config.RefreshToken
	if env := os.Getenv("LEDGER_REFRESH_TOKEN"); env != "" {
		refreshToken = env
	}

	if accessToken == "" || refreshToken == "" {
		return fmt.Errorf("both an access token and a refresh token are required " +
			"(use -access-token/-refresh-token or LEDGER_ACCESS_TOKEN/LEDGER_REFRESH_TOKEN)")
	}

	description := config.Description
	if description == "" {
		description = fmt.Sprintf("Connection %s", id)
	}

	record := &db.ConnectionRecord{
		ID:           id,
		Description:  description,
		Region:       strings.ToLower(config.Region),
		Division:     config.Division,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(config.ExpiresIn) * time.Second),
	}

	if err := database.StoreConnection(record); err != nil {
		return fmt.Errorf("failed to store connection: %w", err)
	}

	fmt.Print(colorize(config, ColorGreen, "Connection stored successfully\n"))
	fmt.Printf("  ID:       %s\n", colorize(config, ColorCyan, id))
	fmt.Printf("  Region:   %s\n", record.Region)
	if record.Division != "" {
		fmt.Printf("  Division: %s\n", record.Division)
	}
	fmt.Printf("  Expires:  %s\n", record.ExpiresAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("\nThe server will refresh the token pair automatically before expiry.\n")

	return nil
}

func handleListCommand(config *Config, database db.Database, args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("list command does not accept arguments")
	}

	connections, err := database.ListConnections()
	if err != nil {
		return fmt.Errorf("failed to list connections: %w", err)
	}

	if len(connections) == 0 {
		fmt.Printf("No connections found.\n")
		fmt.Printf("Use '%s add <id>' to import one.\n", os.Args[0])
		return nil
	}

	sort.Slice(connections, func(i, j int) bool {
		return connections[i].ID < connections[j].ID
	})

	fmt.Printf("Connections (%d total):\n\n", len(connections))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
		colorize(config, ColorBlue, "ID"),
		colorize(config, ColorBlue, "REGION"),
		colorize(config, ColorBlue, "DIVISION"),
		colorize(config, ColorBlue, "STATUS"),
		colorize(config, ColorBlue, "EXPIRES"),
		colorize(config, ColorBlue, "DESCRIPTION"))

	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
		strings.Repeat("-", 12),
		strings.Repeat("-", 6),
		strings.Repeat("-", 8),
		strings.Repeat("-", 14),
		strings.Repeat("-", 19),
		strings.Repeat("-", 20))

	for _, conn := range connections {
		status := string(conn.Status)
		if conn.Status == db.ConnectionRefreshFailed {
			status = colorize(config, ColorYellow, status)
		}

		division := conn.Division
		if division == "" {
			division = "-"
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			conn.ID,
			conn.Region,
			division,
			status,
			conn.ExpiresAt.Format("2006-01-02 15:04:05"),
			conn.Description)
	}

	_ = w.Flush()

	fmt.Printf("\n")
	fmt.Printf("Use '%s show <id>' for details or '%s delete <id>' to remove one.\n", os.Args[0], os.Args[0])

	return nil
}

func handleShowCommand(config *Config, database db.Database, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("show command requires exactly one argument (connection id)")
	}

	conn, err := database.GetConnection(args[0])
	if err != nil {
		if db.IsNotFound(err) {
			return fmt.Errorf("no connection found matching '%s'", args[0])
		}
		return fmt.Errorf("failed to load connection: %w", err)
	}

	fmt.Printf("Connection Details:\n")
	fmt.Printf("  ID:              %s\n", colorize(config, ColorCyan, conn.ID))
	fmt.Printf("  Description:     %s\n", conn.Description)
	fmt.Printf("  Region:          %s\n", conn.Region)
	if conn.Division != "" {
		fmt.Printf("  Division:        %s\n", conn.Division)
	}
	fmt.Printf("  Status:          %s\n", conn.Status)
	fmt.Printf("  Expires:         %s\n", conn.ExpiresAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("  Refresh failures: %d\n", conn.RefreshFailures)
	if !conn.LastRefreshAt.IsZero() {
		fmt.Printf("  Last refresh:    %s\n", conn.LastRefreshAt.Format("2006-01-02 15:04:05"))
	}
	if !conn.LastUsedAt.IsZero() {
		fmt.Printf("  Last used:       %s\n", conn.LastUsedAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Printf("  Created:         %s\n", conn.CreatedAt.Format("2006-01-02 15:04:05"))

	if conn.Status == db.ConnectionRefreshFailed {
		fmt.Printf("\n")
		fmt.Print(colorize(config, ColorYellow,
			"This connection requires re-authorization. Import a fresh token pair with 'add'.\n"))
	}

	return nil
}

func handleDeleteCommand(config *Config, database db.Database, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("delete command requires exactly one argument (connection id)")
	}

	id := args[0]

	conn, err := database.GetConnection(id)
	if err != nil {
		if db.IsNotFound(err) {
			return fmt.Errorf("no connection found matching '%s'", id)
		}
		return fmt.Errorf("failed to load connection: %w", err)
	}

	fmt.Printf("Connection to delete:\n")
	fmt.Printf("  ID:          %s\n", conn.ID)
	fmt.Printf("  Description: %s\n", conn.Description)
	fmt.Printf("  Region:      %s\n", conn.Region)
	fmt.Printf("\n")

	fmt.Print(colorize(config, ColorYellow, "Are you sure you want to delete this connection? [y/N]: "))
	var response string
	_, _ = fmt.Scanln(&response)

	response = strings.ToLower(strings.TrimSpace(response))
	if response != "y" && response != "yes" {
		fmt.Printf("Operation cancelled.\n")
		return nil
	}

	if err := database.DeleteConnection(id); err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}

	fmt.Print(colorize(config, ColorGreen, "Connection deleted successfully\n"))

	return nil
}

func colorize(config *Config, color, text string) string {
	if config.NoColor {
		return text
	}
	return color + text + ColorReset
}
