// Package match scores lyrics candidates against a target track.
package match

import (
	"math"
	"strings"
	"unicode"

	"github.com/Gasiyu/Composer/internal/provider"
)

const (
	titleWeight    = 0.4
	artistWeight   = 0.4
	albumWeight    = 0.1
	durationWeight = 0.1

	closeDuration = 5.0
	nearDuration  = 30.0
)

// Score returns how well c matches q, in [0,1].
func Score(c provider.Candidate, q provider.Query) float64 {
	score := Similarity(c.Title, q.Title) * titleWeight
	score += Similarity(c.Artist, q.Artist) * artistWeight

	if albumUnknown(q.Album) {
		score += albumWeight
	} else {
		score += Similarity(c.Album, q.Album) * albumWeight
	}

	score += durationScore(c.Duration, float64(q.Duration))
	return math.Max(0, math.Min(1, score))
}

func albumUnknown(album string) bool {
	album = strings.TrimSpace(album)
	return album == "" || strings.EqualFold(album, provider.UnknownAlbum)
}

func durationScore(candidate, target float64) float64 {
	if candidate <= 0 || target <= 0 {
		return durationWeight / 2
	}
	diff := math.Abs(candidate - target)
	switch {
	case diff <= closeDuration:
		return durationWeight
	case diff <= nearDuration:
		return durationWeight / 2
	default:
		return 0
	}
}

// Similarity compares two strings case-insensitively, ignoring punctuation.
// Identical strings score 1, containment scores 0.8, anything else is the
// Jaccard index of their word sets. Only empty input scores 0 outright; a
// name made of punctuation normalises to "" and still matches itself.
func Similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	na, nb := normalize(a), normalize(b)
	if na == nb {
		return 1
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return 0.8
	}
	return jaccard(strings.Fields(na), strings.Fields(nb))
}

func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

func jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]bool, len(a))
	for _, w := range a {
		set[w] = true
	}
	union := len(set)
	inter := 0
	seen := make(map[string]bool, len(b))
	for _, w := range b {
		if seen[w] {
			continue
		}
		seen[w] = true
		if set[w] {
			inter++
		} else {
			union++
		}
	}
	return float64(inter) / float64(union)
}
