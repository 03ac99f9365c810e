package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/diverhq/diver/internal/config"
	"github.com/diverhq/diver/internal/db"
	"github.com/diverhq/diver/internal/mcp"
	"github.com/diverhq/diver/internal/pipeline"
	"github.com/diverhq/diver/internal/queue"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"save": true, "fetch": true, "list": true, "archive": true,
	"drain": true, "wrap": true, "resolve": true, "export": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false // No args → MCP server
	}
	arg := os.Args[1]
	// Known subcommand → CLI
	if cliCommands[arg] {
		return true
	}
	// --help or --version → CLI
	if arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" {
		return true
	}
	return false // Default → MCP server
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
     _ _
  __| (_)_ _____ _ _
 / _` + "`" + ` | \ V / -_) '_|
 \__,_|_|\_/\___|_|

  Save-for-later capture queue and link signer

  Usage: diver <command> [options]
         diver --help

  MCP server mode requires piped input.`)
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before any store init (nothing needed)
	if isHelpOrVersion() {
		app := newCLIApp(nil, nil, nil, "")
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: could not determine home directory: %v\n", err)
		os.Exit(1)
	}

	baseDir := filepath.Join(homeDir, ".diver")

	database, err := db.Init(baseDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to initialize database: %v\n", err)
		os.Exit(1)
	}
	defer database.Close()

	cfg, err := config.Load(baseDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		os.Exit(1)
	}
	db.ConfigurePool(database, cfg)

	q, err := queue.New(filepath.Join(baseDir, "queue"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to initialize queue: %v\n", err)
		os.Exit(1)
	}

	// CLI mode: known subcommand
	if isCLIMode() {
		app := newCLIApp(database, q, cfg, baseDir)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'diver --help' for usage.\n")
		os.Exit(1)
	}

	// MCP server mode (default)
	secret, err := config.Secret(baseDir, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if unknown := mcp.ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
		fmt.Fprintf(os.Stderr, "warning: unknown disabled tools in config: %v\n", unknown)
	}

	deps := pipeline.Deps{AssetsDir: db.AssetsDir(baseDir)}
	if err := mcp.Run(database, q, cfg, secret, deps, Version); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
