// Command polyvol computes the daily Polymarket volatility index. It loads
// configuration, validates it, and runs one of the backfill, hourly, or
// markets commands.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/polyvol/internal/app"
	"github.com/alanyoungcy/polyvol/internal/calendar"
	"github.com/alanyoungcy/polyvol/internal/config"
)

const usage = `usage: polyvol [-config file] <command> [flags]

commands:
  backfill [-markets-file f] [-merge] [-out dir] DATE | START END | D1,D2,...
  hourly
  markets [-active] [-out path]
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("polyvol", flag.ContinueOnError)
	global.SetOutput(stderr)
	global.Usage = func() { fmt.Fprint(stderr, usage) }
	configPath := global.String("config", "polyvol.toml", "path to configuration file")
	if err := global.Parse(args); err != nil {
		return 2
	}
	if global.NArg() == 0 {
		global.Usage()
		return 2
	}
	command, rest := global.Arg(0), global.Args()[1:]

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	logger := newLogger(stdout, cfg.LogLevel).With(
		slog.String("run_id", uuid.NewString()),
		slog.String("command", command),
	)
	slog.SetDefault(logger)
	logger.Debug("configuration loaded",
		slog.String("config", *configPath),
		slog.Any("settings", config.RedactedConfig(cfg)),
	)

	loc, err := calendar.LoadLocation(cfg.Timezone)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application := app.New(cfg, logger)
	defer application.Close()

	switch command {
	case "backfill":
		fs := flag.NewFlagSet("backfill", flag.ContinueOnError)
		fs.SetOutput(stderr)
		marketsFile := fs.String("markets-file", "", "score against a dumped catalog instead of Gamma")
		merge := fs.Bool("merge", false, "merge results into the main series")
		out := fs.String("out", "", "data directory override")
		if err := fs.Parse(rest); err != nil {
			return 2
		}
		days, err := calendar.ParseDates(fs.Args(), loc)
		if err != nil {
			fmt.Fprintf(stderr, "polyvol backfill: %v\n", err)
			return 1
		}
		err = application.Backfill(ctx, app.BackfillOptions{
			Days:        days,
			MarketsFile: *marketsFile,
			Merge:       *merge,
			OutDir:      *out,
		})
		return exitCode(logger, err)

	case "hourly":
		if len(rest) > 0 {
			fmt.Fprintf(stderr, "polyvol hourly: unexpected arguments %v\n", rest)
			return 2
		}
		return exitCode(logger, application.Hourly(ctx, time.Now()))

	case "markets":
		fs := flag.NewFlagSet("markets", flag.ContinueOnError)
		fs.SetOutput(stderr)
		active := fs.Bool("active", false, "only markets that are not closed")
		out := fs.String("out", "", "output file or directory (default: data directory)")
		if err := fs.Parse(rest); err != nil {
			return 2
		}
		path, err := application.Markets(ctx, app.MarketsOptions{ActiveOnly: *active, Out: *out})
		if err == nil {
			fmt.Fprintln(stdout, path)
		}
		return exitCode(logger, err)

	default:
		fmt.Fprintf(stderr, "polyvol: unknown command %q\n", command)
		global.Usage()
		return 2
	}
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}

func exitCode(logger *slog.Logger, err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		logger.Info("interrupted")
		return 130
	default:
		logger.Error("command failed", slog.String("error", err.Error()))
		return 1
	}
}
