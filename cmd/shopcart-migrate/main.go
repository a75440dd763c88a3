// Package main is the entry point for the shopping cart database migration tool.
// It manages the embedded SQLite and PostgreSQL schema migrations.
package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/prn-tf/shoppingcart/internal/app"
	"github.com/prn-tf/shoppingcart/internal/config"
	"github.com/prn-tf/shoppingcart/internal/logging"
	"github.com/prn-tf/shoppingcart/internal/repository/migrate"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "version":
		fmt.Printf("Shopcart Migration Tool\n")
		fmt.Printf("Version: %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)
		return

	case "help", "-h", "--help":
		printUsage()
		return

	case "up", "down", "status":
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}

	if err := run(context.Background(), command, os.Getenv("SHOPCART_CONFIG")); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	logger = logger.With().Str("driver", cfg.Database.Driver).Logger()

	m, cleanup, err := app.OpenMigrator(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	switch command {
	case "up":
		return m.Up(ctx)
	case "down":
		return m.Down(ctx)
	default:
		return printStatus(ctx, m)
	}
}

func printStatus(ctx context.Context, m *migrate.Migrator) error {
	statuses, err := m.Status(ctx)
	if err != nil {
		return err
	}
	version, err := m.Version(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tSTATE\tFILE")
	for _, st := range statuses {
		state := "pending"
		if st.Applied {
			state = "applied"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", st.Version, state, st.Path)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\nCurrent version: %d\n", version)
	return nil
}

func printUsage() {
	fmt.Println(`Shopcart Migration Tool

Usage:
  shopcart-migrate <command>

Commands:
  up          Run all pending migrations
  down        Roll back the last migration
  status      Show current migration status
  version     Print version information
  help        Show this help message

Environment Variables:
  SHOPCART_CONFIG             Path to the config file (optional)
  SHOPCART_DATABASE_DRIVER    sqlite or postgres
  SHOPCART_DATABASE_PATH      SQLite database file

Examples:
  shopcart-migrate up
  shopcart-migrate down
  SHOPCART_DATABASE_DRIVER=postgres shopcart-migrate status`)
}
