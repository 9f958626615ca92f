package app

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/sahilm/fuzzy"

	"github.com/Gasiyu/Composer/internal/provider"
)

// trackSource exposes tracks to fuzzy matching as "artist title album".
type trackSource []provider.Track

func (s trackSource) String(i int) string {
	t := s[i]
	return t.Artist + " " + t.Title + " " + t.Album
}

func (s trackSource) Len() int { return len(s) }

// filterState is the library filter typed after "/".
type filterState struct {
	input   string
	matches []fuzzy.Match
}

func (f *filterState) Reset() {
	f.input = ""
	f.matches = nil
}

func (f *filterState) Active() bool { return f.input != "" }

func (f *filterState) InsertRunes(rs []rune, tracks []provider.Track) {
	f.input += string(rs)
	f.update(tracks)
}

func (f *filterState) Backspace(tracks []provider.Track) {
	if f.input == "" {
		return
	}
	r := []rune(f.input)
	f.input = string(r[:len(r)-1])
	f.update(tracks)
}

func (f *filterState) update(tracks []provider.Track) {
	if f.input == "" {
		f.matches = nil
		return
	}
	f.matches = fuzzy.FindFrom(f.input, trackSource(tracks))
}

// Visible returns the indexes of tracks to show, best match first.
func (f *filterState) Visible(tracks []provider.Track) []int {
	if !f.Active() {
		out := make([]int, len(tracks))
		for i := range tracks {
			out[i] = i
		}
		return out
	}
	out := make([]int, 0, len(f.matches))
	for _, m := range f.matches {
		if m.Index < len(tracks) {
			out = append(out, m.Index)
		}
	}
	return out
}

// highlightFor returns the matched rune positions for track i, if any.
func (f *filterState) highlightFor(i int) []int {
	for _, m := range f.matches {
		if m.Index == i {
			return m.MatchedIndexes
		}
	}
	return nil
}

// highlightMatches highlights matched characters in a string.
func highlightMatches(s string, indices []int, style lipgloss.Style) string {
	if len(indices) == 0 {
		return s
	}
	matchSet := make(map[int]bool, len(indices))
	for _, idx := range indices {
		matchSet[idx] = true
	}
	var result strings.Builder
	for i, ch := range s {
		if matchSet[i] {
			result.WriteString(style.Render(string(ch)))
		} else {
			result.WriteRune(ch)
		}
	}
	return result.String()
}
