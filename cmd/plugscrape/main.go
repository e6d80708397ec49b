// Command plugscrape exports the additional plugins listed on a Moodle
// admin/plugins.php page, either once from the command line or behind an
// HTTP API.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/use-agent/plugscrape/config"
)

const usage = `usage: plugscrape <command> [flags]

commands:
  export   export the plugin list of one page and exit
  serve    run the HTTP API
  locales  list the available languages

run "plugscrape <command> -h" for the flags of a command.
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run dispatches a subcommand and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	cfg := config.Load()
	logger := initLogger(cfg.Log, stderr)

	switch args[0] {
	case "export":
		return runExport(ctx, cfg, logger, args[1:], stdout, stderr)
	case "serve":
		return runServe(ctx, cfg, logger, args[1:], stderr)
	case "locales":
		return runLocales(cfg, logger, stdout, stderr)
	case "-h", "--help", "help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}
}

// initLogger configures slog based on the LogConfig. Logs go to w so that
// stdout stays free for exported content.
func initLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func runLocales(cfg *config.Config, logger *slog.Logger, stdout, stderr io.Writer) int {
	catalog, err := loadCatalog(cfg.Export, logger)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	for _, code := range catalog.Locales() {
		fmt.Fprintf(stdout, "%s\t%s\n", code, catalog.Lookup(code).Languages)
	}
	return 0
}
