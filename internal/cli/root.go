// Package cli implements the scrapeflow command line: serving the API and
// watching scrape runs from a terminal.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/petrijr/scrapeflow/internal/config"
)

// Version is set at build time with -ldflags "-X .../internal/cli.Version=...".
var Version = "dev"

// App carries state shared by all commands.
type App struct {
	Loader     *config.Loader
	ConfigPath string
	Out        io.Writer
	Err        io.Writer
}

// NewApp creates an App writing to the process's stdout and stderr.
func NewApp() *App {
	return &App{
		Loader: config.NewLoader(),
		Out:    os.Stdout,
		Err:    os.Stderr,
	}
}

// Config loads the configuration, honouring --config.
func (a *App) Config() (config.Config, error) {
	return a.Loader.Load(a.ConfigPath)
}

// NewRootCommand builds the command tree.
func NewRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "scrapeflow",
		Short:         "Run news scraping workflows and stream their progress",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(app.Out)
	root.SetErr(app.Err)
	root.PersistentFlags().StringVar(&app.ConfigPath, "config", "", "path to a YAML config file")

	root.AddCommand(
		newServeCommand(app),
		newWatchCommand(app),
		newVersionCommand(app),
	)
	return root
}

// ExitError signals a specific process exit code from a command.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := NewApp()
	err := NewRootCommand(app).ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	fmt.Fprintln(app.Err, errorStyle.Render("error: "+err.Error()))
	return 1
}

// newLogger builds the process logger from the log settings.
func newLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	lvl, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var h slog.Handler
	if cfg.Format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h), nil
}
