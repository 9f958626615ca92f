// Package lyrics coordinates searching lyrics providers and saving the
// chosen lyrics next to, or inside, audio files.
package lyrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/Gasiyu/Composer/internal/lyricsfile"
	"github.com/Gasiyu/Composer/internal/provider"
	"github.com/Gasiyu/Composer/internal/romanize"
	"github.com/Gasiyu/Composer/internal/settings"
	"github.com/Gasiyu/Composer/internal/tagwriter"
	"github.com/Gasiyu/Composer/internal/telemetry"
)

var (
	ErrNoProviders = errors.New("no lyrics provider configured for the selected sources")
	ErrNoLyrics    = errors.New("candidate has no lyrics text")
	ErrBusy        = errors.New("a download for this track is already running")
)

// Target is a storage destination for downloaded lyrics.
type Target string

const (
	TargetLRC      Target = "lrc"
	TargetMetadata Target = "metadata"
)

// FileWriter persists text to an .lrc path, optionally backing up the
// previous file first, and returns the backup path.
type FileWriter interface {
	Write(lrcPath, content string, backup bool) (string, error)
}

type FileWriterFunc func(lrcPath, content string, backup bool) (string, error)

func (f FileWriterFunc) Write(lrcPath, content string, backup bool) (string, error) {
	return f(lrcPath, content, backup)
}

// TagWriter embeds lyrics in an audio file.
type TagWriter interface {
	WriteLyrics(path, text, language string) error
}

type SearchResult struct {
	OpID       string
	Query      provider.Query
	Candidates []provider.Candidate
	Err        error
}

type SearchCallback func(SearchResult)

type DownloadResult struct {
	OpID       string
	Path       string
	LRCPath    string
	BackupPath string
	Saved      []Target
	// Err joins the failures of individual targets. It can be set on a
	// successful download when only some targets failed.
	Err error
}

// OK reports whether at least one target was written.
func (r DownloadResult) OK() bool { return len(r.Saved) > 0 }

type DownloadCallback func(DownloadResult)

// Events observes every operation. Nil fields are skipped. Handlers run on
// the dispatcher.
type Events struct {
	SearchStarted     func(q provider.Query)
	SearchCompleted   func(r SearchResult)
	SearchFailed      func(r SearchResult)
	DownloadStarted   func(path string)
	DownloadCompleted func(r DownloadResult)
	DownloadFailed    func(r DownloadResult)
}

type Options struct {
	Providers  []provider.Provider
	Settings   *settings.Settings
	Files      FileWriter
	Tags       TagWriter
	Romanizer  *romanize.Romanizer
	Dispatcher Dispatcher
	Events     Events
	Reporter   telemetry.Reporter
	Logger     *slog.Logger
}

type searchOp struct {
	id     string
	gen    uint64
	cancel context.CancelFunc
}

// Orchestrator runs searches and downloads on their own goroutines. At most
// one search per (artist, title) identity is live; starting another one
// supersedes it and the superseded result is never delivered.
type Orchestrator struct {
	providers  map[provider.Source]provider.Provider
	settings   *settings.Settings
	files      FileWriter
	tags       TagWriter
	romanizer  *romanize.Romanizer
	dispatcher Dispatcher
	events     Events
	reporter   telemetry.Reporter
	logger     *slog.Logger

	mu        sync.Mutex
	gens      map[provider.Identity]uint64
	searches  map[provider.Identity]*searchOp
	downloads map[string]string
}

func New(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		providers:  make(map[provider.Source]provider.Provider, len(opts.Providers)),
		settings:   opts.Settings,
		files:      opts.Files,
		tags:       opts.Tags,
		romanizer:  opts.Romanizer,
		dispatcher: opts.Dispatcher,
		events:     opts.Events,
		reporter:   opts.Reporter,
		logger:     logger.With(slog.String("component", "lyrics")),
		gens:       make(map[provider.Identity]uint64),
		searches:   make(map[provider.Identity]*searchOp),
		downloads:  make(map[string]string),
	}
	for _, p := range opts.Providers {
		o.providers[p.Source()] = p
	}
	if o.settings == nil {
		o.settings = settings.New(nil, logger)
	}
	if o.files == nil {
		o.files = FileWriterFunc(lyricsfile.Write)
	}
	if o.tags == nil {
		o.tags = tagwriter.New(logger)
	}
	if o.romanizer == nil {
		o.romanizer = romanize.New(logger)
	}
	if o.dispatcher == nil {
		o.dispatcher = Immediate
	}
	if o.reporter == nil {
		o.reporter = telemetry.Nop{}
	}
	return o
}

// SourcePriority returns the search order stored in settings.
func (o *Orchestrator) SourcePriority() []provider.Source {
	return o.settings.SourcePriority()
}

// SetSourcePriority stores a new search order. Unknown and repeated
// sources are dropped.
func (o *Orchestrator) SetSourcePriority(sources []provider.Source) error {
	var clean []provider.Source
	seen := make(map[provider.Source]bool)
	for _, s := range sources {
		if _, ok := provider.ParseSource(string(s)); !ok || seen[s] {
			continue
		}
		seen[s] = true
		clean = append(clean, s)
	}
	if len(clean) == 0 {
		clean = []provider.Source{provider.SourceLRCLib}
	}
	return o.settings.SetSourcePriority(clean)
}

// SearchAsync starts a search and returns its operation id. cb runs on the
// dispatcher unless the search is superseded or cancelled first.
func (o *Orchestrator) SearchAsync(q provider.Query, cb SearchCallback) string {
	id := q.Identity()
	ctx, cancel := context.WithCancel(context.Background())
	op := &searchOp{id: uuid.NewString(), cancel: cancel}

	o.mu.Lock()
	if prev, ok := o.searches[id]; ok {
		prev.cancel()
		o.logger.Debug("search superseded", slog.String("op", prev.id), slog.String("artist", q.Artist), slog.String("title", q.Title))
	}
	o.gens[id]++
	op.gen = o.gens[id]
	o.searches[id] = op
	o.mu.Unlock()

	o.reporter.Breadcrumb("search", q.Artist+" - "+q.Title)

	o.dispatcher.Dispatch(func() {
		if o.events.SearchStarted != nil {
			o.events.SearchStarted(q)
		}
	})
	go o.runSearch(ctx, q, id, op, cb)
	return op.id
}

func (o *Orchestrator) runSearch(ctx context.Context, q provider.Query, id provider.Identity, op *searchOp, cb SearchCallback) {
	defer op.cancel()
	res := SearchResult{OpID: op.id, Query: q}
	func() {
		defer func() {
			if r := recover(); r != nil {
				res.Err = fmt.Errorf("search panicked: %v", r)
			}
		}()
		res.Candidates, res.Err = o.Search(ctx, q)
	}()
	if ctx.Err() != nil {
		o.logger.Debug("dropping cancelled search", slog.String("op", op.id))
		return
	}

	o.dispatcher.Dispatch(func() {
		if !o.finishSearch(id, op) {
			o.logger.Debug("dropping stale search result", slog.String("op", op.id))
			return
		}
		if res.Err != nil {
			o.logger.Warn("search failed", slog.String("op", op.id), slog.Any("err", res.Err))
			o.reporter.CaptureError(context.Background(), res.Err, map[string]string{"op": "search"})
			if o.events.SearchFailed != nil {
				o.events.SearchFailed(res)
			}
		} else if o.events.SearchCompleted != nil {
			o.events.SearchCompleted(res)
		}
		if cb != nil {
			cb(res)
		}
	})
}

func (o *Orchestrator) finishSearch(id provider.Identity, op *searchOp) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.gens[id] != op.gen {
		return false
	}
	if cur, ok := o.searches[id]; ok && cur == op {
		delete(o.searches, id)
	}
	return true
}

// CancelAll abandons every in-flight search. Their results are dropped.
// Downloads already running are not affected.
func (o *Orchestrator) CancelAll() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for id, op := range o.searches {
		op.cancel()
		o.gens[id]++
		delete(o.searches, id)
	}
}

func (o *Orchestrator) IsSearching() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.searches) > 0
}

func (o *Orchestrator) IsDownloading(path string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.downloads[path]
	return ok
}

// Search queries every configured provider in priority order and returns
// the merged candidates.
func (o *Orchestrator) Search(ctx context.Context, q provider.Query) ([]provider.Candidate, error) {
	var (
		merged []provider.Candidate
		used   int
	)
	for _, src := range o.SourcePriority() {
		p, ok := o.providers[src]
		if !ok {
			o.logger.Debug("no provider for source", slog.String("source", string(src)))
			continue
		}
		used++
		merged = append(merged, p.Search(ctx, q)...)
	}
	if used == 0 {
		return nil, ErrNoProviders
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Merge(merged), nil
}

// Merge drops candidates whose lowercased (title, artist) already appeared
// and sorts the rest by score, highest first.
func Merge(candidates []provider.Candidate) []provider.Candidate {
	seen := make(map[[2]string]bool, len(candidates))
	out := make([]provider.Candidate, 0, len(candidates))
	for _, c := range candidates {
		key := c.DedupKey()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// DownloadAsync saves c for track on a new goroutine and delivers the
// result through the dispatcher.
func (o *Orchestrator) DownloadAsync(track provider.Track, c provider.Candidate, cb DownloadCallback) string {
	opID := uuid.NewString()
	go func() {
		res := o.download(context.Background(), opID, track, c)
		if cb != nil {
			o.dispatcher.Dispatch(func() { cb(res) })
		}
	}()
	return opID
}

// Download saves c for track to the storage targets selected in settings.
func (o *Orchestrator) Download(ctx context.Context, track provider.Track, c provider.Candidate) DownloadResult {
	return o.download(ctx, uuid.NewString(), track, c)
}

func (o *Orchestrator) download(ctx context.Context, opID string, track provider.Track, c provider.Candidate) DownloadResult {
	res := DownloadResult{OpID: opID, Path: track.Path}

	o.mu.Lock()
	if running, busy := o.downloads[track.Path]; busy {
		o.mu.Unlock()
		res.Err = fmt.Errorf("%w (op %s)", ErrBusy, running)
		o.notifyDownload(res)
		return res
	}
	o.downloads[track.Path] = opID
	o.mu.Unlock()
	o.reporter.Breadcrumb("download", track.Path)
	defer func() {
		o.mu.Lock()
		delete(o.downloads, track.Path)
		o.mu.Unlock()
	}()

	path := track.Path
	o.dispatcher.Dispatch(func() {
		if o.events.DownloadStarted != nil {
			o.events.DownloadStarted(path)
		}
	})

	if err := ctx.Err(); err != nil {
		res.Err = err
		o.notifyDownload(res)
		return res
	}
	o.persist(&res, c)
	o.notifyDownload(res)
	return res
}

func (o *Orchestrator) persist(res *DownloadResult, c provider.Candidate) {
	text := c.LRCContent()
	if strings.TrimSpace(text) == "" {
		res.Err = ErrNoLyrics
		return
	}
	method := o.settings.StorageMethod()
	if opts, ok := o.settings.RomanizeOptions(); ok {
		if scripts := romanize.Detect(text, opts); len(scripts) > 0 {
			o.logger.Debug("romanizing lyrics", slog.String("path", res.Path), slog.Any("scripts", scripts))
		}
		text = o.romanizer.Lyrics(text, opts)
	}

	var errs []error
	if method.WritesLRC() {
		lrcPath := lyricsfile.Path(res.Path)
		backup, err := o.files.Write(lrcPath, text, true)
		if err != nil {
			errs = append(errs, fmt.Errorf("write %s: %w", lrcPath, err))
		} else {
			res.LRCPath = lrcPath
			res.BackupPath = backup
			res.Saved = append(res.Saved, TargetLRC)
		}
	}
	if method.WritesMetadata() {
		if err := o.tags.WriteLyrics(res.Path, text, o.settings.Language()); err != nil {
			errs = append(errs, fmt.Errorf("embed lyrics: %w", err))
		} else {
			res.Saved = append(res.Saved, TargetMetadata)
		}
	}
	res.Err = errors.Join(errs...)
}

func (o *Orchestrator) notifyDownload(res DownloadResult) {
	if res.OK() {
		if res.Err != nil {
			o.logger.Warn("lyrics partially saved", slog.String("path", res.Path), slog.Any("err", res.Err))
		} else {
			o.logger.Info("lyrics saved", slog.String("path", res.Path), slog.String("lrc", res.LRCPath))
		}
	} else {
		o.logger.Error("lyrics download failed", slog.String("path", res.Path), slog.Any("err", res.Err))
		if !errors.Is(res.Err, ErrBusy) {
			o.reporter.CaptureError(context.Background(), res.Err, map[string]string{"op": "download"})
		}
	}
	o.dispatcher.Dispatch(func() {
		if res.OK() {
			if o.events.DownloadCompleted != nil {
				o.events.DownloadCompleted(res)
			}
		} else if o.events.DownloadFailed != nil {
			o.events.DownloadFailed(res)
		}
	})
}
