// Package main is the entry point for the shopping cart admin CLI.
// This tool provides administrative commands for managing user accounts and roles.
package main

import (
	"context"
	"fmt"
	"os"
	"syscall"

	"golang.org/x/term"

	"github.com/prn-tf/shoppingcart/internal/app"
	"github.com/prn-tf/shoppingcart/internal/config"
	"github.com/prn-tf/shoppingcart/internal/logging"
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

	switch os.Args[1] {
	case "version":
		fmt.Printf("Shopcart Admin CLI\n")
		fmt.Printf("Version: %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)
		return

	case "help", "-h", "--help":
		printUsage()
		return
	}

	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	cfg, err := config.Load(os.Getenv("SHOPCART_CONFIG"))
	if err != nil {
		return err
	}

	// Admin output goes to stdout; keep logs on stderr and quiet by default.
	cfg.Logging.Output = "stderr"
	if os.Getenv("SHOPCART_LOGGING_LEVEL") == "" {
		cfg.Logging.Level = "warn"
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	c := &cli{
		users:        a.Users,
		roles:        a.Roles,
		out:          os.Stdout,
		readPassword: promptPassword,
	}
	return c.run(ctx, args)
}

// promptPassword reads a password from the terminal without echo.
func promptPassword(prompt string) (string, error) {
	if !term.IsTerminal(int(syscall.Stdin)) {
		return "", fmt.Errorf("stdin is not a terminal; pass -password or -generate")
	}

	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(b), nil
}

func printUsage() {
	fmt.Println(`Shopcart Admin CLI

Usage:
  shopcart-admin <command> <subcommand> [flags]

Commands:
  user create       -username NAME [-password P | -generate] [-comments C] [-roles a,b]
  user get          -username NAME | -id N
  user list         [-offset N] [-limit N]
  user passwd       -id N [-password P | -generate]
  user authorities  -id N
  user grant        -id N -role NAME
  user revoke       -id N -role NAME
  user delete       -id N
  user carts        -id N
  user add-cart     -id N
  user remove-cart  -id N -cart N
  role list
  role create       -name NAME
  role delete       -name NAME
  version           Print version information
  help              Show this help message

Environment Variables:
  SHOPCART_CONFIG   Path to the config file (optional)

Examples:
  shopcart-admin user create -username admin -roles admin,user
  shopcart-admin user grant -id 1 -role data
  shopcart-admin role list`)
}
