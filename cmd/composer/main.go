package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Gasiyu/Composer/internal/config"
	"github.com/Gasiyu/Composer/internal/library"
	"github.com/Gasiyu/Composer/internal/logging"
	"github.com/Gasiyu/Composer/internal/lyrics"
	"github.com/Gasiyu/Composer/internal/provider"
	"github.com/Gasiyu/Composer/internal/providers/lrclib"
	"github.com/Gasiyu/Composer/internal/settings"
	"github.com/Gasiyu/Composer/internal/telemetry"
)

var version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:           "composer [dir]",
		Short:         "Find, download and embed song lyrics for a local music library",
		Version:       version,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cfgPath, args)
		},
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file (default: $XDG_CONFIG_HOME/composer/config.toml)")

	root.AddCommand(
		newTUICmd(&cfgPath),
		newScanCmd(&cfgPath),
		newFetchCmd(&cfgPath),
		newSearchCmd(&cfgPath),
		newGetCmd(&cfgPath),
		newSettingsCmd(&cfgPath),
		newDoctorCmd(&cfgPath),
	)
	return root
}

// env is the wiring shared by every subcommand.
type env struct {
	cfg      *config.Config
	cfgPath  string
	logger   *slog.Logger
	logFile  *os.File
	reporter telemetry.Reporter
	store    *settings.SQLiteStore
	storeErr error
	settings *settings.Settings
	client   *lrclib.Client
}

func setup(cfgPath string) (*env, error) {
	if err := config.LoadEnv(); err != nil {
		return nil, err
	}
	cfg, resolved, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, logFile, err := logging.Setup(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("setup logging: %w", err)
	}
	logger.Info("starting composer", slog.String("config", resolved), slog.String("version", version))

	e := &env{cfg: cfg, cfgPath: resolved, logger: logger, logFile: logFile}

	e.reporter, err = telemetry.New(telemetry.Options{
		DSN:         cfg.Telemetry.SentryDSN,
		Environment: cfg.Telemetry.Environment,
		Release:     "composer@" + version,
		Logger:      logger,
	})
	if err != nil {
		logger.Warn("telemetry disabled", slog.Any("err", err))
		e.reporter = telemetry.Nop{}
	}

	// The app keeps working on defaults when the settings database cannot
	// be opened.
	dbPath, err := cfg.SettingsPath()
	if err == nil {
		e.store, err = settings.NewSQLiteStore(dbPath)
	}
	if err != nil {
		e.storeErr = err
		logger.Warn("settings store unavailable", slog.Any("err", err))
		e.settings = settings.New(nil, logger)
	} else {
		e.settings = settings.New(e.store, logger)
	}

	clientCfg := cfg.LRCLibClientConfig()
	clientCfg.Logger = logger
	e.client = lrclib.New(clientCfg)
	return e, nil
}

func (e *env) Close() {
	e.reporter.Flush(2 * time.Second)
	if e.store != nil {
		e.store.Close()
	}
	e.logger.Info("exiting")
	e.logFile.Close()
}

func (e *env) orchestrator(d lyrics.Dispatcher, events lyrics.Events) *lyrics.Orchestrator {
	return lyrics.New(lyrics.Options{
		Providers:  []provider.Provider{e.client},
		Settings:   e.settings,
		Dispatcher: d,
		Events:     events,
		Reporter:   e.reporter,
		Logger:     e.logger,
	})
}

func (e *env) scanner(events library.Events) *library.Scanner {
	return library.New(library.Options{
		Extensions: e.cfg.Library.Extensions,
		Events:     events,
		Logger:     e.logger,
	})
}

// roots returns the directory given on the command line, else the
// configured library roots.
func (e *env) roots(args []string) ([]string, error) {
	if len(args) > 0 {
		return args[:1], nil
	}
	roots := e.cfg.LibraryRoots()
	if len(roots) == 0 {
		return nil, fmt.Errorf("no library folder: pass a directory or set library.roots in %s", e.cfgPath)
	}
	return roots, nil
}
