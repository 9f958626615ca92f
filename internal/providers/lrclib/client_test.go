package lrclib

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gasiyu/Composer/internal/provider"
	"github.com/Gasiyu/Composer/internal/ratelimit"
)

func newTestClient(t *testing.T, h http.HandlerFunc, mod ...func(*Config)) *Client {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)
	cfg := Config{
		BaseURL: server.URL,
		Limiter: ratelimit.New(1000, time.Minute),
	}
	for _, m := range mod {
		m(&cfg)
	}
	return New(cfg)
}

func TestClient_Search(t *testing.T) {
	var gotHeaders http.Header
	var gotQuery map[string]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search", r.URL.Path)
		gotHeaders = r.Header.Clone()
		gotQuery = map[string]string{
			"track_name":  r.URL.Query().Get("track_name"),
			"artist_name": r.URL.Query().Get("artist_name"),
			"album_name":  r.URL.Query().Get("album_name"),
			"duration":    r.URL.Query().Get("duration"),
		}
		w.Write([]byte(`[
			{"id": 1, "trackName": "Yellow (Live)", "artistName": "Coldplay", "albumName": "Live 2003", "duration": 300, "plainLyrics": "look at the stars", "syncedLyrics": null},
			{"id": 2, "trackName": "Yellow", "artistName": "Coldplay", "albumName": "Parachutes", "duration": 269, "plainLyrics": "look at the stars", "syncedLyrics": "[00:01.00]look at the stars"},
			{"id": 3, "trackName": "Yellow", "artistName": "Coldplay", "albumName": "Parachutes", "duration": null, "plainLyrics": "", "syncedLyrics": ""}
		]`))
	})

	res := c.Search(context.Background(), provider.Query{Title: "Yellow", Artist: "Coldplay", Album: "Parachutes", Duration: 269})

	require.Len(t, res, 2, "candidate without lyrics must be dropped")
	assert.Equal(t, "2", res[0].ID)
	assert.Equal(t, 1.0, res[0].Score)
	assert.Equal(t, "1", res[1].ID)
	assert.Less(t, res[1].Score, res[0].Score)
	assert.Equal(t, provider.SourceLRCLib, res[0].Source)

	assert.Equal(t, DefaultUserAgent, gotHeaders.Get("User-Agent"))
	assert.Equal(t, "application/json", gotHeaders.Get("Accept"))
	assert.Equal(t, "application/json", gotHeaders.Get("Content-Type"))
	assert.Equal(t, map[string]string{
		"track_name":  "Yellow",
		"artist_name": "Coldplay",
		"album_name":  "Parachutes",
		"duration":    "269",
	}, gotQuery)
}

func TestClient_SearchOmitsEmptyOptionalParams(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.False(t, q.Has("album_name"))
		assert.False(t, q.Has("duration"))
		w.Write([]byte(`[]`))
	})
	c.SearchWithFallback(context.Background(), provider.Query{Title: "a", Artist: "b"}, false)
}

func TestClient_SearchUntaggedTrackSendsNoAlbum(t *testing.T) {
	var albums []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		albums = append(albums, r.URL.Query()["album_name"]...)
		w.Write([]byte(`[]`))
	})
	tr := provider.Track{Title: "Yellow", Artist: "Coldplay", Album: provider.UnknownAlbum}
	c.SearchWithFallback(context.Background(), tr.Query(), false)
	assert.Empty(t, albums)
}

func TestClient_LatinFallbackRetriesOnce(t *testing.T) {
	var mu sync.Mutex
	var calls [][2]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, [2]string{r.URL.Query().Get("track_name"), r.URL.Query().Get("artist_name")})
		mu.Unlock()
		w.Write([]byte(`[]`))
	})

	res := c.Search(context.Background(), provider.Query{Title: "愛 (Love)", Artist: "某 (Artist)"})

	assert.Empty(t, res)
	require.Len(t, calls, 2)
	assert.Equal(t, [2]string{"愛 (Love)", "某 (Artist)"}, calls[0])
	assert.Equal(t, [2]string{"Love", "Artist"}, calls[1])
}

func TestClient_LatinFallbackReturnsRetryResults(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("track_name") != "Love" {
			w.Write([]byte(`[]`))
			return
		}
		w.Write([]byte(`[{"id": 9, "trackName": "Love", "artistName": "Artist", "plainLyrics": "ai"}]`))
	})

	res := c.Search(context.Background(), provider.Query{Title: "愛 (Love)", Artist: "Artist"})
	require.Len(t, res, 1)
	assert.Equal(t, "9", res[0].ID)
}

func TestClient_NoFallbackForLatinNames(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`[]`))
	})
	c.Search(context.Background(), provider.Query{Title: "Café (Live)", Artist: "Zoë"})
	assert.Equal(t, 1, calls)
}

func TestClient_ErrorsDegradeToEmpty(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) }},
		{"rate limited", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTooManyRequests) }},
		{"malformed json", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`{"not": "a list"`)) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.handler)
			assert.Empty(t, c.Search(context.Background(), provider.Query{Title: "x", Artist: "y"}))
		})
	}
}

func TestClient_FailureLogLevel(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    []string
	}{
		{"rate limited", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTooManyRequests) },
			[]string{"level=WARN", `reason="rate limited"`}},
		{"server error", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) },
			[]string{"level=WARN", "reason=temporary"}},
		{"malformed json", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`{`)) },
			[]string{"level=ERROR", `reason="invalid response"`}},
		{"bad request", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadRequest) },
			[]string{"level=ERROR", "reason=error"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
			c := newTestClient(t, tt.handler, func(cfg *Config) { cfg.Logger = logger })
			c.SearchWithFallback(context.Background(), provider.Query{Title: "x", Artist: "y"}, false)

			var line string
			for _, l := range strings.Split(buf.String(), "\n") {
				if strings.Contains(l, `msg="search failed"`) {
					line = l
				}
			}
			require.NotEmpty(t, line, buf.String())
			for _, w := range tt.want {
				assert.Contains(t, line, w)
			}
		})
	}
}

func TestClient_GetByIDNotFoundLogsInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}, func(cfg *Config) { cfg.Logger = logger })

	_, ok := c.GetByID(context.Background(), "7")
	assert.False(t, ok)
	assert.Contains(t, buf.String(), "level=INFO")
	assert.Contains(t, buf.String(), `reason="not found"`)
	assert.NotContains(t, buf.String(), "level=ERROR")
}

func TestClient_HealthReportsFreeRequests(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}, func(cfg *Config) { cfg.Limiter = ratelimit.New(5, time.Minute) })

	ok, detail := c.Health(context.Background())
	assert.True(t, ok)
	assert.Equal(t, "ok, 4 requests left in window", detail)
}

func TestClient_Timeout(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		w.Write([]byte(`[]`))
	}, func(cfg *Config) {
		cfg.HTTPClient = &http.Client{Timeout: 50 * time.Millisecond}
	})
	assert.Empty(t, c.Search(context.Background(), provider.Query{Title: "x", Artist: "y"}))
}

func TestClient_SearchCache(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`[{"id": 1, "trackName": "x", "artistName": "y", "plainLyrics": "z"}]`))
	}, func(cfg *Config) {
		cfg.CacheSize = 8
		cfg.CacheTTL = time.Minute
	})

	q := provider.Query{Title: "x", Artist: "y"}
	first := c.Search(context.Background(), q)
	second := c.Search(context.Background(), q)
	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)
}

func TestClient_GetByID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/get/42":
			w.Write([]byte(`{"id": 42, "trackName": "Song", "artistName": "Band", "duration": 180.5, "syncedLyrics": "[00:01.00]hi"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	got, ok := c.GetByID(context.Background(), "42")
	require.True(t, ok)
	assert.Equal(t, "Song", got.Title)
	assert.True(t, got.HasSynced())
	assert.Equal(t, 180.5, got.Duration)

	_, ok = c.GetByID(context.Background(), "7")
	assert.False(t, ok)
}

func TestLatinFallback(t *testing.T) {
	tests := []struct {
		name   string
		in     provider.Query
		want   provider.Query
		wantOK bool
	}{
		{
			name:   "title and artist",
			in:     provider.Query{Title: "愛 (Love)", Artist: "某 ( Artist )"},
			want:   provider.Query{Title: "Love", Artist: "Artist"},
			wantOK: true,
		},
		{
			name:   "only qualifying fields change",
			in:     provider.Query{Title: "夜に駆ける (Racing Into The Night)", Artist: "YOASOBI", Album: "THE BOOK", Duration: 261},
			want:   provider.Query{Title: "Racing Into The Night", Artist: "YOASOBI", Album: "THE BOOK", Duration: 261},
			wantOK: true,
		},
		{
			name:   "album qualifies",
			in:     provider.Query{Title: "Song", Artist: "Band", Album: "アルバム (Album) (Deluxe)"},
			want:   provider.Query{Title: "Song", Artist: "Band", Album: "Album"},
			wantOK: true,
		},
		{
			name: "non-latin without parens",
			in:   provider.Query{Title: "愛", Artist: "某"},
		},
		{
			name: "latin with parens",
			in:   provider.Query{Title: "Song (Live)", Artist: "Band"},
		},
		{
			name: "empty group",
			in:   provider.Query{Title: "愛 ()", Artist: "Band"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := LatinFallback(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}
