package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/arunsworld/nursery"
	"github.com/spf13/cobra"

	"github.com/Gasiyu/Composer/internal/config"
	"github.com/Gasiyu/Composer/internal/lyricsfile"
)

type checkResult struct {
	name   string
	ok     bool
	detail string
	// optional checks only warn
	optional bool
}

func newDoctorCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, settings store, LRCLib and ffprobe",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(*cfgPath)
			if err != nil {
				return err
			}
			defer e.Close()

			fmt.Println("Composer doctor")
			fmt.Printf("%s Config: %s\n", good.Sprint("OK  "), e.cfgPath)

			results := runChecks(cmd.Context(), e)
			failed := 0
			for _, r := range results {
				switch {
				case r.ok:
					fmt.Printf("%s %s: %s\n", good.Sprint("OK  "), r.name, r.detail)
				case r.optional:
					fmt.Printf("%s %s: %s\n", fair.Sprint("WARN"), r.name, r.detail)
				default:
					failed++
					fmt.Printf("%s %s: %s\n", poor.Sprint("FAIL"), r.name, r.detail)
				}
			}
			e.logger.Info("doctor complete")
			if failed > 0 {
				return fmt.Errorf("%d checks failed", failed)
			}
			return nil
		},
	}
}

// runChecks runs the independent checks concurrently and returns them in a
// fixed order.
func runChecks(ctx context.Context, e *env) []checkResult {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	var (
		mu      sync.Mutex
		results = make([]checkResult, 4)
	)
	set := func(i int, r checkResult) {
		mu.Lock()
		results[i] = r
		mu.Unlock()
	}

	_ = nursery.RunConcurrently(
		func(context.Context, chan error) {
			r := checkResult{name: "Settings store"}
			switch {
			case e.storeErr != nil:
				r.detail = e.storeErr.Error()
			default:
				if err := e.store.Ping(ctx); err != nil {
					r.detail = err.Error()
				} else {
					r.ok, r.detail = true, "reachable"
				}
			}
			set(0, r)
		},
		func(context.Context, chan error) {
			ok, detail := e.client.Health(ctx)
			set(1, checkResult{name: "LRCLib", ok: ok, detail: detail})
		},
		func(context.Context, chan error) {
			r := checkResult{name: "ffprobe", optional: true}
			if path, err := config.FFprobePath(); err != nil {
				r.detail = "not found (track durations will be unknown)"
			} else {
				r.ok, r.detail = true, path
			}
			set(2, r)
		},
		func(context.Context, chan error) {
			set(3, checkRoots(e.cfg.LibraryRoots()))
		},
	)
	return results
}

func checkRoots(roots []string) checkResult {
	r := checkResult{name: "Library folders", optional: true}
	if len(roots) == 0 {
		r.detail = "none configured (pass a directory on the command line)"
		return r
	}
	for _, root := range roots {
		info, err := os.Stat(root)
		if err != nil || !info.IsDir() {
			r.detail = root + " is not a directory"
			return r
		}
		if !lyricsfile.CheckWritePermission(root) {
			r.detail = root + " is not writable, lyrics files cannot be saved"
			return r
		}
	}
	r.ok, r.detail = true, fmt.Sprintf("%d folder(s)", len(roots))
	return r
}
