// main.go - admin control tool for trackmaster
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trackmaster/internal"
	"trackmaster/internal/analytics"
	"trackmaster/internal/websites"
)

const (
	defaultShutdownTimeout = 30 * time.Second
)

// Command defines the interface for all command implementations
type Command interface {
	// Name returns the command name
	Name() string
	// Description returns the command description
	Description() string
	// Execute runs the command with the given app and args
	Execute(ctx context.Context, app *internal.Application, args []string) error
}

// The set of available commands
var commands = []Command{
	&MigrateCommand{},
	&CreateWebsiteCommand{},
	&SweepCommand{},
	&StatsCommand{},
	&HelpCommand{},
}

var errNoApp = errors.New("app initialization failed, cannot connect to database")

func main() {
	flag.Parse()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := <-sigChan
		log.Printf("Received signal: %v, initiating cleanup...", sig)
		cancel()
	}()

	cmdName, args := parseArgs(os.Args[1:])

	cmd := findCommand(cmdName)
	if cmd == nil {
		printUsage(os.Stderr)
		os.Exit(1)
	}

	var app *internal.Application
	if cmd.Name() != "help" {
		var err error
		app, err = internal.NewApp()
		if err != nil {
			log.Printf("Warning: Failed to initialize app: %v", err)
		}
	}

	defer func() {
		if app != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
			defer cancel()
			if err := app.Shutdown(shutdownCtx); err != nil {
				log.Printf("Warning: Cleanup error: %v", err)
			}
			app.GeoIP.Close()
		}
	}()

	if err := cmd.Execute(ctx, app, args); err != nil {
		log.Fatalf("Command failed: %v", err)
	}
}

// MigrateCommand runs database migrations
type MigrateCommand struct{}

func (c *MigrateCommand) Name() string        { return "migrate" }
func (c *MigrateCommand) Description() string { return "Runs database migrations" }

func (c *MigrateCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if app == nil {
		return errNoApp
	}

	log.Println("Running database migrations...")
	if err := app.DBManager.MigrateDatabase(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	log.Println("Migrations completed successfully")
	return nil
}

// CreateWebsiteCommand registers a website and prints its tracking code.
type CreateWebsiteCommand struct{}

func (c *CreateWebsiteCommand) Name() string { return "create-website" }
func (c *CreateWebsiteCommand) Description() string {
	return "Registers a website and prints its tracking code"
}

func (c *CreateWebsiteCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: %s <name> <domain>", c.Name())
	}
	if app == nil {
		return errNoApp
	}

	website := websites.Website{Name: args[0], Domain: args[1]}
	if err := websites.CreateWebsite(app.DBManager.GetConnection().WithContext(ctx), &website); err != nil {
		return fmt.Errorf("failed to create website: %w", err)
	}

	return render(os.Stdout, isTerminal(os.Stdout), websiteRows([]websites.Website{website}), website)
}

// SweepCommand closes idle visits once, outside the scheduler.
type SweepCommand struct{}

func (c *SweepCommand) Name() string        { return "sweep" }
func (c *SweepCommand) Description() string { return "Closes visits idle longer than the session timeout" }

func (c *SweepCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if app == nil {
		return errNoApp
	}

	closed, err := app.Jobs.SweepVisits(ctx)
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}
	return render(os.Stdout, isTerminal(os.Stdout),
		[][]string{{"CLOSED"}, {fmt.Sprint(closed)}},
		map[string]int{"closed": closed})
}

// StatsCommand prints traffic totals, for one website when given its tracking code.
type StatsCommand struct{}

func (c *StatsCommand) Name() string        { return "stats" }
func (c *StatsCommand) Description() string { return "Shows traffic totals [tracking_code]" }

func (c *StatsCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if app == nil {
		return errNoApp
	}
	db := app.DBManager.GetConnection()

	var params analytics.StatsParams
	if len(args) > 0 {
		website, err := websites.GetWebsiteByTrackingCode(db, args[0])
		if err != nil {
			return err
		}
		params.WebsiteID = &website.ID
	}

	stats, err := analytics.GetVisitorStats(ctx, db, params)
	if err != nil {
		return err
	}
	return render(os.Stdout, isTerminal(os.Stdout), statsRows(stats), stats)
}

// HelpCommand implements a command to show usage information
type HelpCommand struct{}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Description() string { return "Shows usage information" }

func (c *HelpCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	printUsage(os.Stdout)
	return nil
}

// parseArgs splits the command name from its arguments. No arguments means help.
func parseArgs(args []string) (string, []string) {
	if len(args) == 0 {
		return "help", []string{}
	}
	return args[0], args[1:]
}

// findCommand finds a command by name
func findCommand(name string) Command {
	for _, cmd := range commands {
		if cmd.Name() == name {
			return cmd
		}
	}
	return nil
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: trackctl [command] [args...]")
	fmt.Fprintln(w, "Available commands:")

	for _, cmd := range commands {
		fmt.Fprintf(w, "  %s: %s\n", cmd.Name(), cmd.Description())
	}
}
