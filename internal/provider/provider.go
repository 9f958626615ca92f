package provider

import (
	"context"
	"fmt"
	"math"
	"strings"
)

// Source identifies where a lyrics candidate came from.
type Source string

const (
	SourceLRCLib     Source = "lrclib"
	SourceGenius     Source = "genius"
	SourceMusixmatch Source = "musixmatch"
	SourceLocal      Source = "local"
)

// Sources lists every known source in declaration order.
func Sources() []Source {
	return []Source{SourceLRCLib, SourceGenius, SourceMusixmatch, SourceLocal}
}

// ParseSource returns the source for s and false when s is unknown.
func ParseSource(s string) (Source, bool) {
	src := Source(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Sources() {
		if src == known {
			return src, true
		}
	}
	return "", false
}

func (s Source) Name() string {
	switch s {
	case SourceLRCLib:
		return "LRCLib"
	case SourceGenius:
		return "Genius"
	case SourceMusixmatch:
		return "Musixmatch"
	case SourceLocal:
		return "Local"
	default:
		return string(s)
	}
}

// Provider searches one lyrics source. Implementations never return
// transport errors from Search; failures degrade to an empty result.
type Provider interface {
	Source() Source
	Search(ctx context.Context, q Query) []Candidate
	GetByID(ctx context.Context, id string) (Candidate, bool)
}

// Track is the metadata of one audio file as produced by a library scan.
type Track struct {
	Path              string
	Title             string
	Artist            string
	Album             string
	Duration          int // seconds, 0 when unknown
	HasLRC            bool
	HasEmbeddedLyrics bool
}

// HasLyrics reports whether the track already carries lyrics in any form.
func (t Track) HasLyrics() bool { return t.HasLRC || t.HasEmbeddedLyrics }

// Query returns the search parameters for t. The scanner's album
// placeholder is dropped so it never narrows a search.
func (t Track) Query() Query {
	album := t.Album
	if strings.EqualFold(strings.TrimSpace(album), UnknownAlbum) {
		album = ""
	}
	return Query{Title: t.Title, Artist: t.Artist, Album: album, Duration: t.Duration}
}

func (t Track) String() string {
	return fmt.Sprintf("%s - %s", t.Artist, t.Title)
}

// Query holds the target metadata a search is scored against.
type Query struct {
	Title    string
	Artist   string
	Album    string
	Duration int
}

// Identity keys in-flight searches. Two queries with the same
// case-insensitive artist and title share an identity.
type Identity struct {
	Artist string
	Title  string
}

func (q Query) Identity() Identity {
	return Identity{Artist: strings.ToLower(q.Artist), Title: strings.ToLower(q.Title)}
}

// Candidate is one lyrics record returned by a provider.
type Candidate struct {
	ID           string
	Title        string
	Artist       string
	Album        string
	Duration     float64
	PlainLyrics  string
	SyncedLyrics string
	Source       Source
	Score        float64
}

// Valid reports whether the candidate carries any lyrics text.
func (c Candidate) Valid() bool {
	return strings.TrimSpace(c.PlainLyrics) != "" || strings.TrimSpace(c.SyncedLyrics) != ""
}

func (c Candidate) HasSynced() bool {
	return strings.TrimSpace(c.SyncedLyrics) != ""
}

// LRCContent returns the text to persist, synced lyrics first.
func (c Candidate) LRCContent() string {
	if c.HasSynced() {
		return c.SyncedLyrics
	}
	return c.PlainLyrics
}

// DisplayDuration formats the duration as m:ss.
func (c Candidate) DisplayDuration() string {
	if c.Duration <= 0 {
		return "Unknown"
	}
	secs := int(c.Duration)
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

// AccuracyPercent returns the score as a whole percentage.
func (c Candidate) AccuracyPercent() int {
	return int(math.Round(c.Score * 100))
}

// Band buckets an accuracy score for display.
type Band int

const (
	BandPoor Band = iota
	BandFair
	BandGood
)

func (c Candidate) Band() Band {
	pct := c.AccuracyPercent()
	switch {
	case pct >= 80:
		return BandGood
	case pct >= 60:
		return BandFair
	default:
		return BandPoor
	}
}

// DedupKey is the case-insensitive title and artist pair used to merge
// results across providers.
func (c Candidate) DedupKey() [2]string {
	return [2]string{strings.ToLower(strings.TrimSpace(c.Title)), strings.ToLower(strings.TrimSpace(c.Artist))}
}

// Placeholders the scanner uses when tags are missing.
const (
	UnknownArtist = "Unknown Artist"
	UnknownAlbum  = "Unknown Album"
)
