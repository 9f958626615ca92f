package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Gasiyu/Composer/internal/app"
	"github.com/Gasiyu/Composer/internal/autodl"
	"github.com/Gasiyu/Composer/internal/library"
	"github.com/Gasiyu/Composer/internal/lyrics"
	"github.com/Gasiyu/Composer/internal/lyricsfile"
	"github.com/Gasiyu/Composer/internal/provider"
	"github.com/Gasiyu/Composer/internal/settings"
)

func newTUICmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "tui [dir]",
		Short: "Start the interactive front end (default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(*cfgPath, args)
		},
	}
}

func runTUI(cfgPath string, args []string) error {
	e, err := setup(cfgPath)
	if err != nil {
		return err
	}
	defer e.Close()

	var roots []string
	if len(args) > 0 {
		roots = args[:1]
	} else {
		roots = e.cfg.LibraryRoots()
	}

	bridge := app.NewBridge()
	orch := e.orchestrator(bridge, bridge.LyricsEvents())
	batch := autodl.New(autodl.Options{
		Fetcher:    orch,
		Dispatcher: bridge,
		OnProgress: bridge.BatchProgress,
		OnDone:     bridge.BatchDone,
		Logger:     e.logger,
	})
	defer batch.Reset()

	return app.Run(app.Deps{
		Config:   e.cfg,
		Bridge:   bridge,
		Lyrics:   orch,
		Scanner:  e.scanner(bridge.ScanEvents()),
		Batch:    batch,
		Settings: e.settings,
		Roots:    roots,
		Logger:   e.logger,
	})
}

// signalContext is cancelled on Ctrl+C.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func scanLibrary(ctx context.Context, e *env, args []string) ([]provider.Track, error) {
	roots, err := e.roots(args)
	if err != nil {
		return nil, err
	}
	s := e.scanner(library.Events{
		Progress: func(done, total int) {
			fmt.Fprintf(os.Stderr, "\r\033[K  Scanned %d/%d", done, total)
		},
	})
	tracks, err := s.Scan(ctx, roots...)
	fmt.Fprint(os.Stderr, "\r\033[K")
	return tracks, err
}

func newScanCmd(cfgPath *string) *cobra.Command {
	var missingOnly bool
	cmd := &cobra.Command{
		Use:   "scan [dir]",
		Short: "Scan the library and show which tracks have lyrics",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(*cfgPath)
			if err != nil {
				return err
			}
			defer e.Close()
			ctx, cancel := signalContext()
			defer cancel()

			tracks, err := scanLibrary(ctx, e, args)
			if err != nil {
				return err
			}
			missing := 0
			for _, t := range tracks {
				if !t.HasLyrics() {
					missing++
				} else if missingOnly {
					continue
				}
				fmt.Println(formatTrack(t))
			}
			fmt.Printf("\n%d tracks, %d without lyrics\n", len(tracks), missing)
			return nil
		},
	}
	cmd.Flags().BoolVar(&missingOnly, "missing", false, "only list tracks without lyrics")
	return cmd
}

func newFetchCmd(cfgPath *string) *cobra.Command {
	var all, dryRun bool
	cmd := &cobra.Command{
		Use:   "fetch [dir]",
		Short: "Download lyrics for every track that has none",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(*cfgPath)
			if err != nil {
				return err
			}
			defer e.Close()
			ctx, cancel := signalContext()
			defer cancel()

			tracks, err := scanLibrary(ctx, e, args)
			if err != nil {
				return err
			}
			pending := autodl.Select(tracks, all || e.settings.OverwriteExisting())
			if len(pending) == 0 {
				fmt.Println("Every track already has lyrics.")
				return nil
			}

			loop := lyrics.NewLoop(16)
			defer loop.Close()
			orch := e.orchestrator(loop, lyrics.Events{})
			if dryRun {
				return dryRunFetch(ctx, orch, pending)
			}

			done := make(chan autodl.Summary, 1)
			q := autodl.New(autodl.Options{
				Fetcher:    orch,
				Dispatcher: loop,
				OnProgress: printProgress,
				OnDone:     func(s autodl.Summary) { done <- s },
				Logger:     e.logger,
			})
			fmt.Printf("Fetching lyrics for %d tracks\n", len(pending))
			q.Start(pending)

			select {
			case s := <-done:
				fmt.Printf("\n%s saved, %s without results, %s failed\n",
					good.Sprint(s.Saved), fair.Sprint(s.NoResults), poor.Sprint(s.Failed))
				if s.Failed > 0 {
					return fmt.Errorf("%d downloads failed, see the log for details", s.Failed)
				}
				return nil
			case <-ctx.Done():
				return stopBatch(q)
			}
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include tracks that already have lyrics")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "search only, do not save anything")
	return cmd
}

// stopBatch abandons q and reports how far it got. Progress is read before
// Reset clears it.
func stopBatch(q *autodl.Queue) error {
	completed, total := q.Progress()
	q.Reset()
	return fmt.Errorf("interrupted after %d/%d tracks", completed, total)
}

func dryRunFetch(ctx context.Context, orch *lyrics.Orchestrator, tracks []provider.Track) error {
	for i, t := range tracks {
		results, err := orch.Search(ctx, t.Query())
		prefix := fmt.Sprintf("[%d/%d] %s", i+1, len(tracks), t)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			fmt.Printf("%s: %s\n", prefix, poor.Sprint(err))
		case len(results) == 0:
			fmt.Printf("%s: %s\n", prefix, fair.Sprint("no results"))
		default:
			fmt.Printf("%s: %s %s\n", prefix, accuracy(results[0]), describe(results[0]))
		}
	}
	return nil
}

func printProgress(p autodl.Progress) {
	status := good.Sprint(p.Outcome)
	switch p.Outcome {
	case autodl.OutcomeNoResults:
		status = fair.Sprint(p.Outcome)
	case autodl.OutcomeFailed:
		status = poor.Sprint(p.Outcome)
	}
	line := fmt.Sprintf("[%d/%d] %s: %s", p.Completed, p.Total, p.Track, status)
	if p.Outcome == autodl.OutcomeSaved {
		line += " " + accuracy(p.Candidate)
	}
	if p.Err != nil {
		line += " (" + p.Err.Error() + ")"
	}
	fmt.Println(line)
}

func newSearchCmd(cfgPath *string) *cobra.Command {
	var (
		album    string
		duration int
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "search <title> <artist>",
		Short: "Search lyrics and show ranked candidates",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(*cfgPath)
			if err != nil {
				return err
			}
			defer e.Close()
			ctx, cancel := signalContext()
			defer cancel()

			q := provider.Query{Title: args[0], Artist: args[1], Album: album, Duration: duration}
			results, err := e.orchestrator(nil, lyrics.Events{}).Search(ctx, q)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Println("No lyrics found.")
				return nil
			}
			for i, c := range results {
				if limit > 0 && i >= limit {
					break
				}
				fmt.Printf("%2d. %s %s %s\n", i+1, accuracy(c), describe(c), dim.Sprintf("id=%s", c.ID))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&album, "album", "", "album name")
	cmd.Flags().IntVar(&duration, "duration", 0, "track length in seconds")
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum results to show (0 for all)")
	return cmd
}

func newGetCmd(cfgPath *string) *cobra.Command {
	var (
		plain   bool
		saveDir string
	)
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Print one lyrics record by its LRCLib id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(*cfgPath)
			if err != nil {
				return err
			}
			defer e.Close()
			ctx, cancel := signalContext()
			defer cancel()

			c, ok := e.client.GetByID(ctx, args[0])
			if !ok {
				return fmt.Errorf("lyrics %s: %w", args[0], provider.ErrNotFound)
			}
			if saveDir != "" {
				path, backup, err := saveRecord(saveDir, c, plain)
				if err != nil {
					return err
				}
				fmt.Printf("Saved %s\n", path)
				if backup != "" {
					fmt.Println(dim.Sprint("Previous file kept as " + backup))
				}
				return nil
			}
			fmt.Println(describe(c))
			fmt.Println()
			if plain && c.PlainLyrics != "" {
				fmt.Println(c.PlainLyrics)
			} else {
				fmt.Println(c.LRCContent())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&plain, "plain", false, "print plain lyrics even when synced lyrics exist")
	cmd.Flags().StringVar(&saveDir, "save", "", "write the lyrics to \"<artist> - <title>.lrc\" in this directory instead of printing them")
	return cmd
}

// saveRecord writes c to dir under a file name built from its artist and
// title. An existing file is backed up first.
func saveRecord(dir string, c provider.Candidate, plain bool) (path, backup string, err error) {
	text := c.LRCContent()
	if plain && c.PlainLyrics != "" {
		text = c.PlainLyrics
	}
	name := lyricsfile.SafeFilename(c.Artist+" - "+c.Title) + lyricsfile.Ext
	path = filepath.Join(dir, name)
	backup, err = lyricsfile.Write(path, text, true)
	if err != nil {
		return "", "", fmt.Errorf("save lyrics: %w", err)
	}
	return path, backup, nil
}

func newSettingsCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change preferences",
	}
	withSettings := func(fn func(st *settings.Settings, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			e, err := setup(*cfgPath)
			if err != nil {
				return err
			}
			defer e.Close()
			if e.storeErr != nil && cmd.Name() != "list" && cmd.Name() != "get" {
				return fmt.Errorf("settings store unavailable: %w", e.storeErr)
			}
			return fn(e.settings, args)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List every setting with its value",
			Args:  cobra.NoArgs,
			RunE: withSettings(func(st *settings.Settings, _ []string) error {
				values := st.All()
				for _, d := range settings.Definitions() {
					fmt.Printf("%-28s %-24s %s\n", d.Key, values[d.Key], dim.Sprint(d.Description))
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "get <key>",
			Short: "Print one setting",
			Args:  cobra.ExactArgs(1),
			RunE: withSettings(func(st *settings.Settings, args []string) error {
				v, err := st.Get(args[0])
				if err != nil {
					return withKeys(err)
				}
				fmt.Println(v)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Change one setting",
			Args:  cobra.ExactArgs(2),
			RunE: withSettings(func(st *settings.Settings, args []string) error {
				if err := st.SetString(args[0], args[1]); err != nil {
					return withKeys(err)
				}
				v, _ := st.Get(args[0])
				fmt.Printf("%s = %s\n", args[0], v)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "reset [key]",
			Short: "Restore one setting, or all of them, to the default",
			Args:  cobra.MaximumNArgs(1),
			RunE: withSettings(func(st *settings.Settings, args []string) error {
				if len(args) == 1 {
					return withKeys(st.Reset(args[0]))
				}
				if err := st.ResetToDefaults(); err != nil {
					return err
				}
				fmt.Println("All settings restored to defaults.")
				return nil
			}),
		},
	)
	return cmd
}

// withKeys appends the valid keys to unknown-key errors.
func withKeys(err error) error {
	if errors.Is(err, settings.ErrUnknownKey) {
		keys := settings.Keys()
		sort.Strings(keys)
		return fmt.Errorf("%w (valid keys: %s)", err, strings.Join(keys, ", "))
	}
	return err
}
