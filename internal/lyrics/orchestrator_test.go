package lyrics

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gasiyu/Composer/internal/provider"
	"github.com/Gasiyu/Composer/internal/romanize"
	"github.com/Gasiyu/Composer/internal/settings"
)

type fakeProvider struct {
	source  provider.Source
	results []provider.Candidate
	calls   atomic.Int32
	// block, when set, is received from before the first call returns.
	block   chan struct{}
	entered chan struct{}
}

func (f *fakeProvider) Source() provider.Source { return f.source }

func (f *fakeProvider) Search(ctx context.Context, q provider.Query) []provider.Candidate {
	n := f.calls.Add(1)
	if n == 1 && f.block != nil {
		if f.entered != nil {
			close(f.entered)
		}
		<-f.block
	}
	return append([]provider.Candidate(nil), f.results...)
}

func (f *fakeProvider) GetByID(context.Context, string) (provider.Candidate, bool) {
	return provider.Candidate{}, false
}

// queueDispatcher holds callbacks until the test drains them.
type queueDispatcher struct {
	mu  sync.Mutex
	fns []func()
}

func (d *queueDispatcher) Dispatch(fn func()) {
	d.mu.Lock()
	d.fns = append(d.fns, fn)
	d.mu.Unlock()
}

func (d *queueDispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.fns)
}

func (d *queueDispatcher) Drain() {
	d.mu.Lock()
	fns := d.fns
	d.fns = nil
	d.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

type failingTags struct{ calls atomic.Int32 }

func (f *failingTags) WriteLyrics(string, string, string) error {
	f.calls.Add(1)
	return errors.New("tag write failed")
}

type recordingTags struct {
	mu   sync.Mutex
	text string
	lang string
}

func (r *recordingTags) WriteLyrics(_ string, text, lang string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.text, r.lang = text, lang
	return nil
}

type recordingReporter struct {
	mu     sync.Mutex
	crumbs []string
	errs   []error
}

func (r *recordingReporter) CaptureError(_ context.Context, err error, _ map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recordingReporter) Breadcrumb(category, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.crumbs = append(r.crumbs, category+": "+message)
}

func (r *recordingReporter) Flush(time.Duration) bool { return true }

func (r *recordingReporter) snapshot() ([]string, []error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.crumbs...), append([]error(nil), r.errs...)
}

func cand(title, artist string, score float64) provider.Candidate {
	return provider.Candidate{Title: title, Artist: artist, Score: score, PlainLyrics: "la la", Source: provider.SourceLRCLib}
}

func newSettings(t *testing.T) *settings.Settings {
	t.Helper()
	store, err := settings.NewSQLiteStore(filepath.Join(t.TempDir(), "settings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return settings.New(store, nil)
}

func TestMergeDedupKeepsFirst(t *testing.T) {
	in := []provider.Candidate{
		cand("Song", "Artist", 0.9),
		cand("Other", "Artist", 0.7),
		cand(" song ", "ARTIST", 0.95),
		cand("Third", "Artist", 0.8),
	}
	out := Merge(in)
	require.Len(t, out, 3)
	assert.Equal(t, "Song", out[0].Title)
	assert.Equal(t, 0.9, out[0].Score)
	assert.Equal(t, "Third", out[1].Title)
	assert.Equal(t, "Other", out[2].Title)
}

func TestSearchFollowsSourcePriority(t *testing.T) {
	lrclib := &fakeProvider{source: provider.SourceLRCLib, results: []provider.Candidate{cand("Song", "Artist", 0.9)}}
	genius := &fakeProvider{source: provider.SourceGenius, results: []provider.Candidate{
		{Title: "Song", Artist: "Artist", Score: 0.5, PlainLyrics: "g", Source: provider.SourceGenius},
		{Title: "B-side", Artist: "Artist", Score: 0.6, PlainLyrics: "g", Source: provider.SourceGenius},
	}}
	o := New(Options{Providers: []provider.Provider{lrclib, genius}, Settings: newSettings(t)})

	got, err := o.Search(context.Background(), provider.Query{Title: "Song", Artist: "Artist"})
	require.NoError(t, err)
	assert.Len(t, got, 1, "only lrclib is enabled by default")
	assert.Equal(t, int32(0), genius.calls.Load())

	require.NoError(t, o.SetSourcePriority([]provider.Source{provider.SourceGenius, "bogus", provider.SourceLRCLib}))
	assert.Equal(t, []provider.Source{provider.SourceGenius, provider.SourceLRCLib}, o.SourcePriority())

	got, err = o.Search(context.Background(), provider.Query{Title: "Song", Artist: "Artist"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "B-side", got[0].Title)
	assert.Equal(t, provider.SourceGenius, got[1].Source, "first occurrence in priority order wins")
}

func TestSourcePriorityIsReadFromSettings(t *testing.T) {
	s := newSettings(t)
	o := New(Options{Settings: s})
	require.NoError(t, o.SetSourcePriority([]provider.Source{provider.SourceGenius, provider.SourceLRCLib}))

	other := New(Options{Settings: s})
	assert.Equal(t, []provider.Source{provider.SourceGenius, provider.SourceLRCLib}, other.SourcePriority(),
		"the order is persisted, not held by one orchestrator")

	require.NoError(t, s.SetSourcePriority([]provider.Source{provider.SourceLocal}))
	assert.Equal(t, []provider.Source{provider.SourceLocal}, o.SourcePriority(),
		"a change made through settings is seen on the next read")
}

func TestSearchWithoutProviders(t *testing.T) {
	o := New(Options{})
	_, err := o.Search(context.Background(), provider.Query{Title: "x", Artist: "y"})
	assert.ErrorIs(t, err, ErrNoProviders)

	var failed atomic.Bool
	done := make(chan SearchResult, 1)
	o = New(Options{Events: Events{SearchFailed: func(SearchResult) { failed.Store(true) }}})
	o.SearchAsync(provider.Query{Title: "x", Artist: "y"}, func(r SearchResult) { done <- r })
	select {
	case r := <-done:
		assert.ErrorIs(t, r.Err, ErrNoProviders)
		assert.True(t, failed.Load())
	case <-time.After(2 * time.Second):
		t.Fatal("callback not delivered")
	}
}

func TestSearchAsyncDelivers(t *testing.T) {
	p := &fakeProvider{source: provider.SourceLRCLib, results: []provider.Candidate{cand("Song", "Artist", 1)}}
	var started atomic.Bool
	o := New(Options{Providers: []provider.Provider{p}, Events: Events{
		SearchStarted: func(provider.Query) { started.Store(true) },
	}})

	done := make(chan SearchResult, 1)
	opID := o.SearchAsync(provider.Query{Title: "Song", Artist: "Artist"}, func(r SearchResult) { done <- r })
	select {
	case r := <-done:
		assert.Equal(t, opID, r.OpID)
		require.NoError(t, r.Err)
		assert.Len(t, r.Candidates, 1)
	case <-time.After(2 * time.Second):
		t.Fatal("callback not delivered")
	}
	assert.True(t, started.Load())
	assert.Eventually(t, func() bool { return !o.IsSearching() }, time.Second, 5*time.Millisecond)
}

func TestSupersededResultNeverDelivered(t *testing.T) {
	p := &fakeProvider{source: provider.SourceLRCLib, results: []provider.Candidate{cand("Song", "Artist", 1)}}
	d := &queueDispatcher{}
	o := New(Options{Providers: []provider.Provider{p}, Dispatcher: d})
	q := provider.Query{Title: "Song", Artist: "Artist"}

	var first, second atomic.Int32
	o.SearchAsync(q, func(SearchResult) { first.Add(1) })
	// started + completed are both queued before the next search begins.
	require.Eventually(t, func() bool { return d.Len() == 2 }, time.Second, time.Millisecond)

	o.SearchAsync(provider.Query{Title: "SONG", Artist: "artist"}, func(SearchResult) { second.Add(1) })
	require.Eventually(t, func() bool { return d.Len() == 4 }, time.Second, time.Millisecond)
	d.Drain()

	assert.Equal(t, int32(0), first.Load())
	assert.Equal(t, int32(1), second.Load())
	assert.False(t, o.IsSearching())
}

func TestSupersededInFlightSearch(t *testing.T) {
	p := &fakeProvider{
		source:  provider.SourceLRCLib,
		results: []provider.Candidate{cand("Song", "Artist", 1)},
		block:   make(chan struct{}),
		entered: make(chan struct{}),
	}
	o := New(Options{Providers: []provider.Provider{p}})
	q := provider.Query{Title: "Song", Artist: "Artist"}

	var first atomic.Int32
	second := make(chan struct{})
	o.SearchAsync(q, func(SearchResult) { first.Add(1) })
	<-p.entered
	o.SearchAsync(q, func(SearchResult) { close(second) })

	select {
	case <-second:
	case <-time.After(2 * time.Second):
		t.Fatal("second search not delivered")
	}
	close(p.block)
	assert.Never(t, func() bool { return first.Load() > 0 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestCancelAllDropsResults(t *testing.T) {
	p := &fakeProvider{
		source:  provider.SourceLRCLib,
		results: []provider.Candidate{cand("Song", "Artist", 1)},
		block:   make(chan struct{}),
		entered: make(chan struct{}),
	}
	o := New(Options{Providers: []provider.Provider{p}})

	var delivered atomic.Bool
	o.SearchAsync(provider.Query{Title: "Song", Artist: "Artist"}, func(SearchResult) { delivered.Store(true) })
	<-p.entered
	assert.True(t, o.IsSearching())
	o.CancelAll()
	assert.False(t, o.IsSearching())
	close(p.block)
	assert.Never(t, delivered.Load, 100*time.Millisecond, 10*time.Millisecond)
}

func TestDownloadBothWithFailingTagWriter(t *testing.T) {
	s := newSettings(t)
	require.NoError(t, s.SetStorageMethod(settings.StorageBoth))
	tags := &failingTags{}

	var completed, failed atomic.Int32
	o := New(Options{Settings: s, Tags: tags, Events: Events{
		DownloadCompleted: func(DownloadResult) { completed.Add(1) },
		DownloadFailed:    func(DownloadResult) { failed.Add(1) },
	}})

	dir := t.TempDir()
	track := provider.Track{Path: filepath.Join(dir, "song.flac"), Title: "Song", Artist: "Artist"}
	c := provider.Candidate{SyncedLyrics: "[00:01.00]hello", PlainLyrics: "hello"}

	res := o.Download(context.Background(), track, c)
	assert.True(t, res.OK())
	assert.Equal(t, []Target{TargetLRC}, res.Saved)
	assert.Equal(t, filepath.Join(dir, "song.lrc"), res.LRCPath)
	assert.ErrorContains(t, res.Err, "tag write failed")
	assert.Equal(t, int32(1), tags.calls.Load())
	assert.Equal(t, int32(1), completed.Load())
	assert.Equal(t, int32(0), failed.Load())

	data, err := os.ReadFile(res.LRCPath)
	require.NoError(t, err)
	assert.Equal(t, "[00:01.00]hello", string(data))

	// Second write of the same content backs up the first.
	res = o.Download(context.Background(), track, c)
	assert.Equal(t, filepath.Join(dir, "song.lrc.backup"), res.BackupPath)
}

func TestDownloadLRCWriteFailure(t *testing.T) {
	tests := []struct {
		name  string
		files FileWriter
		path  func(t *testing.T) string
	}{
		{
			name: "failing writer",
			files: FileWriterFunc(func(string, string, bool) (string, error) {
				return "", errors.New("disk full")
			}),
			path: func(t *testing.T) string { return filepath.Join(t.TempDir(), "song.mp3") },
		},
		{
			name: "directory is a file",
			path: func(t *testing.T) string {
				blocker := filepath.Join(t.TempDir(), "blocker")
				require.NoError(t, os.WriteFile(blocker, nil, 0o644))
				return filepath.Join(blocker, "song.mp3")
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSettings(t)
			require.NoError(t, s.SetStorageMethod(settings.StorageLRC))
			var completed, failed atomic.Int32
			reporter := &recordingReporter{}
			o := New(Options{Settings: s, Files: tt.files, Reporter: reporter, Events: Events{
				DownloadCompleted: func(DownloadResult) { completed.Add(1) },
				DownloadFailed:    func(DownloadResult) { failed.Add(1) },
			}})

			track := provider.Track{Path: tt.path(t)}
			var res DownloadResult
			require.NotPanics(t, func() {
				res = o.Download(context.Background(), track, cand("Song", "Artist", 1))
			})
			assert.False(t, res.OK())
			assert.Error(t, res.Err)
			assert.Empty(t, res.LRCPath)
			assert.Equal(t, int32(0), completed.Load())
			assert.Equal(t, int32(1), failed.Load())
			assert.False(t, o.IsDownloading(track.Path))

			crumbs, errs := reporter.snapshot()
			assert.Equal(t, []string{"download: " + track.Path}, crumbs)
			assert.Len(t, errs, 1)
		})
	}
}

func TestSearchAsyncLeavesBreadcrumb(t *testing.T) {
	reporter := &recordingReporter{}
	p := &fakeProvider{source: provider.SourceLRCLib}
	o := New(Options{Providers: []provider.Provider{p}, Reporter: reporter})

	done := make(chan struct{})
	o.SearchAsync(provider.Query{Title: "Song", Artist: "Artist"}, func(SearchResult) { close(done) })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("search not delivered")
	}
	crumbs, _ := reporter.snapshot()
	assert.Equal(t, []string{"search: Artist - Song"}, crumbs)
}

func TestDownloadMetadataOnlyFailure(t *testing.T) {
	s := newSettings(t)
	require.NoError(t, s.SetStorageMethod(settings.StorageMetadata))

	var failed atomic.Int32
	o := New(Options{Settings: s, Tags: &failingTags{}, Events: Events{
		DownloadFailed: func(DownloadResult) { failed.Add(1) },
	}})
	track := provider.Track{Path: filepath.Join(t.TempDir(), "song.mp3")}
	res := o.Download(context.Background(), track, cand("Song", "Artist", 1))
	assert.False(t, res.OK())
	assert.Error(t, res.Err)
	assert.Empty(t, res.LRCPath)
	assert.Equal(t, int32(1), failed.Load())
	assert.NoFileExists(t, filepath.Join(filepath.Dir(track.Path), "song.lrc"))
}

func TestDownloadReadsSettingsPerCall(t *testing.T) {
	s := newSettings(t)
	tags := &recordingTags{}
	translit := func(run string) string { return "roma" }
	o := New(Options{Settings: s, Tags: tags, Romanizer: romanize.NewWith(translit, nil)})

	dir := t.TempDir()
	track := provider.Track{Path: filepath.Join(dir, "a.mp3")}
	c := provider.Candidate{SyncedLyrics: "[00:01.00]愛してる"}

	res := o.Download(context.Background(), track, c)
	assert.Equal(t, []Target{TargetLRC}, res.Saved)

	require.NoError(t, s.SetStorageMethod(settings.StorageMetadata))
	require.NoError(t, s.SetRomanizationEnabled(true))
	require.NoError(t, s.SetLanguage("ja"))
	res = o.Download(context.Background(), track, c)
	assert.Equal(t, []Target{TargetMetadata}, res.Saved)
	assert.NoError(t, res.Err)
	assert.NotContains(t, tags.text, "愛")
	assert.Contains(t, tags.text, "[00:01.00]")
	assert.Equal(t, "ja", tags.lang)
}

func TestDownloadRejectsEmptyCandidate(t *testing.T) {
	o := New(Options{})
	res := o.Download(context.Background(), provider.Track{Path: filepath.Join(t.TempDir(), "a.mp3")}, provider.Candidate{})
	assert.False(t, res.OK())
	assert.ErrorIs(t, res.Err, ErrNoLyrics)
}

func TestDownloadAsyncCallback(t *testing.T) {
	o := New(Options{})
	track := provider.Track{Path: filepath.Join(t.TempDir(), "a.ogg")}
	done := make(chan DownloadResult, 1)
	opID := o.DownloadAsync(track, cand("A", "B", 1), func(r DownloadResult) { done <- r })
	select {
	case r := <-done:
		assert.Equal(t, opID, r.OpID)
		assert.True(t, r.OK())
		assert.FileExists(t, r.LRCPath)
	case <-time.After(2 * time.Second):
		t.Fatal("download callback not delivered")
	}
	assert.False(t, o.IsDownloading(track.Path))
}

func TestLoopRunsInOrder(t *testing.T) {
	l := NewLoop(8)
	var got []int
	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		i := i
		l.Dispatch(func() { got = append(got, i) })
	}
	l.Dispatch(func() { close(done) })
	<-done
	l.Close()
	l.Dispatch(func() { got = append(got, 99) })
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}
