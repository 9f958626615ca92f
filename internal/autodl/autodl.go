// Package autodl drains a batch of tracks through the lyrics orchestrator
// one track at a time after a library scan.
package autodl

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/Gasiyu/Composer/internal/lyrics"
	"github.com/Gasiyu/Composer/internal/provider"
	"github.com/Gasiyu/Composer/internal/queue"
)

// Fetcher is the part of the orchestrator the batch needs.
type Fetcher interface {
	Search(ctx context.Context, q provider.Query) ([]provider.Candidate, error)
	Download(ctx context.Context, t provider.Track, c provider.Candidate) lyrics.DownloadResult
}

// Outcome is what happened to one track.
type Outcome int

const (
	OutcomeSaved Outcome = iota
	OutcomeNoResults
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSaved:
		return "saved"
	case OutcomeNoResults:
		return "no results"
	default:
		return "failed"
	}
}

// Progress is reported after every processed track.
type Progress struct {
	Track     provider.Track
	Outcome   Outcome
	Candidate provider.Candidate
	Err       error
	Completed int
	Total     int
}

type Summary struct {
	Total     int
	Saved     int
	NoResults int
	Failed    int
}

type Options struct {
	Fetcher    Fetcher
	Dispatcher lyrics.Dispatcher
	OnProgress func(Progress)
	OnDone     func(Summary)
	Logger     *slog.Logger
}

type Queue struct {
	fetcher    Fetcher
	dispatcher lyrics.Dispatcher
	onProgress func(Progress)
	onDone     func(Summary)
	logger     *slog.Logger

	mu        sync.Mutex
	pending   *queue.Queue
	gen       uint64
	cancel    context.CancelFunc
	running   bool
	completed int
	total     int
	summary   Summary
}

func New(opts Options) *Queue {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	d := opts.Dispatcher
	if d == nil {
		d = lyrics.Immediate
	}
	return &Queue{
		fetcher:    opts.Fetcher,
		dispatcher: d,
		onProgress: opts.OnProgress,
		onDone:     opts.OnDone,
		logger:     logger.With(slog.String("component", "autodl")),
		pending:    queue.New(),
	}
}

// Select returns the tracks a batch should process: those without lyrics,
// or every track when overwrite is set.
func Select(tracks []provider.Track, overwrite bool) []provider.Track {
	if overwrite {
		return append([]provider.Track(nil), tracks...)
	}
	var out []provider.Track
	for _, t := range tracks {
		if !t.HasLyrics() {
			out = append(out, t)
		}
	}
	return out
}

// Start replaces any running batch with tracks. An empty list only resets.
func (q *Queue) Start(tracks []provider.Track) {
	q.Reset()
	if len(tracks) == 0 {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	pending := queue.New()
	pending.Add(tracks...)
	q.mu.Lock()
	q.pending = pending
	q.total = pending.Len()
	q.summary = Summary{Total: q.total}
	q.cancel = cancel
	q.running = true
	gen := q.gen
	q.mu.Unlock()

	q.logger.Info("auto-download started", slog.Int("tracks", pending.Len()))
	go q.run(ctx, gen, pending)
}

// Reset discards the current batch. Callbacks from it are never delivered
// after Reset returns.
func (q *Queue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cancel != nil {
		q.cancel()
		q.cancel = nil
	}
	q.gen++
	q.pending.Clear()
	q.running = false
	q.completed = 0
	q.total = 0
	q.summary = Summary{}
}

func (q *Queue) Running() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

// Pending returns the tracks not yet processed.
func (q *Queue) Pending() []provider.Track {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending.Items()
}

// Queued reports whether path is still waiting in the batch.
func (q *Queue) Queued(path string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending.Contains(path)
}

// Skip takes path out of the batch before it is processed. The batch total
// shrinks with it.
func (q *Queue) Skip(path string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.pending.Remove(path) {
		return false
	}
	q.total--
	q.summary.Total--
	q.logger.Debug("skipped track", slog.String("path", path))
	return true
}

// Next returns the track the batch processes after the current one.
func (q *Queue) Next() (provider.Track, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, err := q.pending.Peek()
	return t, err == nil
}

func (q *Queue) Progress() (completed, total int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.completed, q.total
}

func (q *Queue) run(ctx context.Context, gen uint64, pending *queue.Queue) {
	for {
		if ctx.Err() != nil {
			return
		}
		track, err := pending.Pop()
		if errors.Is(err, queue.ErrEmpty) {
			q.finish(gen)
			return
		}
		p := q.process(ctx, track)
		if ctx.Err() != nil {
			return
		}

		q.mu.Lock()
		if q.gen != gen {
			q.mu.Unlock()
			return
		}
		q.completed++
		p.Completed, p.Total = q.completed, q.total
		switch p.Outcome {
		case OutcomeSaved:
			q.summary.Saved++
		case OutcomeNoResults:
			q.summary.NoResults++
		default:
			q.summary.Failed++
		}
		q.mu.Unlock()

		q.deliver(gen, func() {
			if q.onProgress != nil {
				q.onProgress(p)
			}
		})
	}
}

func (q *Queue) process(ctx context.Context, track provider.Track) Progress {
	p := Progress{Track: track}
	results, err := q.fetcher.Search(ctx, track.Query())
	if err != nil {
		q.logger.Warn("auto-download search failed", slog.String("path", track.Path), slog.Any("err", err))
		p.Outcome, p.Err = OutcomeFailed, err
		return p
	}
	if len(results) == 0 {
		q.logger.Info("no lyrics found", slog.String("path", track.Path))
		p.Outcome = OutcomeNoResults
		return p
	}
	p.Candidate = results[0]
	res := q.fetcher.Download(ctx, track, results[0])
	if !res.OK() {
		p.Outcome, p.Err = OutcomeFailed, res.Err
		return p
	}
	p.Outcome = OutcomeSaved
	return p
}

func (q *Queue) finish(gen uint64) {
	q.mu.Lock()
	if q.gen != gen {
		q.mu.Unlock()
		return
	}
	q.running = false
	q.cancel = nil
	summary := q.summary
	q.mu.Unlock()

	q.logger.Info("auto-download finished",
		slog.Int("saved", summary.Saved),
		slog.Int("no_results", summary.NoResults),
		slog.Int("failed", summary.Failed))
	q.deliver(gen, func() {
		if q.onDone != nil {
			q.onDone(summary)
		}
	})
}

// deliver runs fn on the dispatcher if the batch is still current.
func (q *Queue) deliver(gen uint64, fn func()) {
	q.dispatcher.Dispatch(func() {
		q.mu.Lock()
		stale := q.gen != gen
		q.mu.Unlock()
		if !stale {
			fn()
		}
	})
}
