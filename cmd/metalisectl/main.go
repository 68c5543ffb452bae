// main.go - Admin control tool for Metalise
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"metalise/internal"
	"metalise/internal/analytics"
	"metalise/internal/config"
	"metalise/internal/events"
	"metalise/internal/generation"
	"metalise/internal/seeder"
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
	&SummaryCommand{},
	&SeedCommand{},
	&StatusCommand{},
	&GenerationsCommand{},
	&ModelsCommand{},
	&HelpCommand{},
}

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

	cmdName, args := parseArgs()

	cmd := findCommand(cmdName)
	if cmd == nil {
		showUsageAndExit()
	}

	var app *internal.Application
	if needsApp(cmd) {
		var err error
		app, err = internal.NewApp()
		if err != nil {
			log.Printf("Warning: Failed to initialize app: %v", err)
			log.Println("Proceeding with limited functionality...")
		}
	}

	defer func() {
		if app != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
			defer cancel()
			if err := app.Shutdown(shutdownCtx); err != nil {
				log.Printf("Warning: Cleanup error: %v", err)
			}
		}
	}()

	if err := cmd.Execute(ctx, app, args); err != nil {
		log.Fatalf("Command failed: %v", err)
	}

	log.Printf("Command %s completed successfully", cmd.Name())
}

// MigrateCommand runs database migrations
type MigrateCommand struct{}

func (c *MigrateCommand) Name() string        { return "migrate" }
func (c *MigrateCommand) Description() string { return "Runs database migrations" }

func (c *MigrateCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if app == nil {
		return fmt.Errorf("app initialization failed, cannot run migrations")
	}

	log.Println("Running database migrations...")
	if err := app.DBManager.MigrateDatabase(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	log.Println("Migrations completed successfully")
	return nil
}

// SummaryCommand prints the same JSON document as GET /api/analytics
type SummaryCommand struct{}

func (c *SummaryCommand) Name() string        { return "summary" }
func (c *SummaryCommand) Description() string { return "Prints the analytics summary as JSON" }

func (c *SummaryCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if app == nil {
		return fmt.Errorf("app initialization failed, cannot read analytics")
	}

	summary, err := analytics.GetSummary(ctx, app.DBManager.GetConnection(), slog.Default(), time.Now())
	if err != nil {
		return err
	}
	return printJSON(summary)
}

// SeedCommand populates the DB with synthetic traffic
type SeedCommand struct{}

func (c *SeedCommand) Name() string        { return "seed" }
func (c *SeedCommand) Description() string { return "Seeds the database with sample data: seed [-visits N] <days>" }

func (c *SeedCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	visits := fs.Int("visits", 40, "average number of visits per day")
	if err := fs.Parse(args); err != nil {
		return err
	}

	days := 7
	if fs.NArg() > 0 {
		n, err := strconv.Atoi(fs.Arg(0))
		if err != nil {
			return fmt.Errorf("invalid number of days %q: %w", fs.Arg(0), err)
		}
		days = n
	}

	if app == nil {
		return fmt.Errorf("unable to initialise app")
	}
	if cfg := config.GetConfig(); cfg.IsProduction() {
		return fmt.Errorf("refusing to seed a production database")
	}
	if err := app.DBManager.MigrateDatabase(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	stats, err := seeder.NewSeeder(app.DBManager, slog.Default(), *visits).Run(ctx, days)
	if err != nil {
		return err
	}
	log.Printf("Seeded %d days: %d visits, %d generations", stats.Days, stats.Visits, stats.Generations)
	return nil
}

// StatusCommand implements a command to check the system status
type StatusCommand struct{}

func (c *StatusCommand) Name() string        { return "status" }
func (c *StatusCommand) Description() string { return "Shows the current system status" }

func (c *StatusCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if app == nil {
		return fmt.Errorf("cannot check status: app initialization failed")
	}

	db := app.DBManager.GetConnection()

	var visitCount, generationCount, dayCount int64
	if err := db.Model(&events.VisitEvent{}).Count(&visitCount).Error; err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	if err := db.Model(&events.GenerationEvent{}).Count(&generationCount).Error; err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	if err := db.Model(&analytics.DailyStat{}).Count(&dayCount).Error; err != nil {
		return fmt.Errorf("database error: %w", err)
	}

	cfg := config.GetConfig()
	log.Println("System Status:")
	log.Println("- Database: Connected")
	log.Printf("- Environment: %s", cfg.Environment)
	log.Printf("- Visit events: %d", visitCount)
	log.Printf("- Generation events: %d", generationCount)
	log.Printf("- Days with activity: %d", dayCount)

	today := time.Now().UTC().Format(events.DateLayout)
	todayVisits, err := events.CountVisitsOn(db, today)
	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	log.Printf("- Visits today (%s): %d", today, todayVisits)
	log.Printf("- Image models: %v", cfg.ImageModels())
	log.Printf("- Live unique set: %T", app.LiveSet)

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get SQL DB: %w", err)
	}

	log.Printf("- Max Open Connections: %d", sqlDB.Stats().MaxOpenConnections)
	log.Printf("- Open Connections: %d", sqlDB.Stats().OpenConnections)
	log.Printf("- In Use: %d", sqlDB.Stats().InUse)
	log.Printf("- Idle: %d", sqlDB.Stats().Idle)

	return nil
}

// GenerationsCommand lists recent generation attempts
type GenerationsCommand struct{}

func (c *GenerationsCommand) Name() string { return "generations" }
func (c *GenerationsCommand) Description() string {
	return "Lists recent generation attempts: generations [-failed] [-date YYYY-MM-DD] [-error text] [-limit N]"
}

func (c *GenerationsCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet("generations", flag.ContinueOnError)
	failed := fs.Bool("failed", false, "only failed attempts")
	date := fs.String("date", "", "only attempts on this UTC day")
	errorFilter := fs.String("error", "", "only attempts whose error contains this text")
	limit := fs.Int("limit", 20, "maximum number of attempts to list")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if app == nil {
		return fmt.Errorf("app initialization failed, cannot read generations")
	}

	result, err := events.GetGenerations(app.DBManager.GetConnection(), events.GenerationFilters{
		Date:        *date,
		FailedOnly:  *failed,
		ErrorFilter: *errorFilter,
		Limit:       *limit,
	})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", "TIMESTAMP", "SUCCESS", "TEXT", "SECONDS", "ERROR")
	for _, g := range result.Generations {
		seconds, errMessage := "-", ""
		if g.ProcessingTimeSeconds != nil {
			seconds = strconv.FormatFloat(*g.ProcessingTimeSeconds, 'f', 1, 64)
		}
		if g.ErrorMessage != nil {
			errMessage = *g.ErrorMessage
		}
		fmt.Fprintf(w, "%s\t%v\t%v\t%s\t%s\n", g.Timestamp.UTC().Format(time.RFC3339), g.Success, g.IncludeText, seconds, errMessage)
	}
	w.Flush()

	fmt.Printf("Showing %d of %d attempts\n", len(result.Generations), result.Total)
	return nil
}

// ModelsCommand lists the Gemini models the configured key can use
type ModelsCommand struct{}

func (c *ModelsCommand) Name() string        { return "models" }
func (c *ModelsCommand) Description() string { return "Lists Gemini models that support content generation" }

func (c *ModelsCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	cfg := config.GetConfig()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	models, err := generation.NewGeminiClient(cfg.GeminiAPIKey).ListModels(ctx)
	if err != nil {
		return err
	}
	return printJSON(models)
}

// HelpCommand implements a command to show usage information
type HelpCommand struct{}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Description() string { return "Shows usage information" }

func (c *HelpCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	printUsage()
	return nil
}

// Helper functions

// needsApp reports whether the command reads or writes the database
func needsApp(cmd Command) bool {
	switch cmd.(type) {
	case *HelpCommand, *ModelsCommand:
		return false
	}
	return true
}

// printJSON writes v to stdout, indented when stdout is a terminal
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	if term.IsTerminal(int(os.Stdout.Fd())) {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

// parseArgs parses the command name and arguments
func parseArgs() (string, []string) {
	args := flag.Args()
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

func printUsage() {
	fmt.Println("Usage: metalisectl [command] [args...]")
	fmt.Println("Available commands:")

	for _, cmd := range commands {
		fmt.Printf("  %s: %s\n", cmd.Name(), cmd.Description())
	}
}

// showUsageAndExit shows usage information and exits
func showUsageAndExit() {
	printUsage()
	os.Exit(1)
}
