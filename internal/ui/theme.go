package ui

import (
	"sort"

	"github.com/charmbracelet/lipgloss"

	"github.com/Gasiyu/Composer/internal/provider"
)

type Theme struct {
	Name      string
	Accent    lipgloss.Style
	Dim       lipgloss.Style
	Text      lipgloss.Style
	Title     lipgloss.Style
	Error     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Border    lipgloss.Style
	Highlight lipgloss.Style
}

// palette is the set of colours a theme is built from.
type palette struct {
	accent, dim, text, title, err, ok, warn, border, highlight string
}

var palettes = map[string]palette{
	"rainbow": {"#FF6FF7", "#6C6F93", "#E6E6FA", "#8EEBFF", "#FF5F56", "#5CFF5C", "#FFD166", "#7C7CFF", "#FFA7C4"},
	"mono":    {"#FFFFFF", "#666666", "#CCCCCC", "#FFFFFF", "#FFFFFF", "#CCCCCC", "#AAAAAA", "#888888", "#FFFFFF"},
	"green":   {"#00FF00", "#005500", "#00CC00", "#00FF00", "#00FF00", "#00FF00", "#00CC00", "#008800", "#00FF00"},
	"dracula": {"#FF79C6", "#6272A4", "#F8F8F2", "#BD93F9", "#FF5555", "#50FA7B", "#FFB86C", "#6272A4", "#8BE9FD"},
	"nord":    {"#88C0D0", "#4C566A", "#D8DEE9", "#ECEFF4", "#BF616A", "#A3BE8C", "#EBCB8B", "#81A1C1", "#88C0D0"},
	"gruvbox": {"#FE8019", "#928374", "#EBDBB2", "#FABD2F", "#FB4934", "#B8BB26", "#FABD2F", "#928374", "#8EC07C"},
}

// ThemeNames returns the available theme names, sorted, plus "nocolor".
func ThemeNames() []string {
	names := make([]string, 0, len(palettes)+1)
	for n := range palettes {
		names = append(names, n)
	}
	sort.Strings(names)
	return append(names, "nocolor")
}

// GetTheme returns a theme by name. Unknown names fall back to rainbow.
func GetTheme(name string, noColor bool) Theme {
	if noColor || name == "nocolor" {
		return NoColor()
	}
	p, ok := palettes[name]
	if !ok {
		name, p = "rainbow", palettes["rainbow"]
	}
	return build(name, p)
}

// ValidTheme returns true if the theme name is valid.
func ValidTheme(name string) bool {
	if name == "nocolor" {
		return true
	}
	_, ok := palettes[name]
	return ok
}

func build(name string, p palette) Theme {
	fg := func(c string) lipgloss.Style { return lipgloss.NewStyle().Foreground(lipgloss.Color(c)) }
	t := Theme{
		Name:      name,
		Accent:    fg(p.accent).Bold(true),
		Dim:       fg(p.dim),
		Text:      fg(p.text),
		Title:     fg(p.title).Bold(true),
		Error:     fg(p.err).Bold(true),
		Success:   fg(p.ok).Bold(true),
		Warning:   fg(p.warn).Bold(true),
		Border:    fg(p.border),
		Highlight: fg(p.highlight).Bold(true),
	}
	// Single-hue themes need something other than colour to tell states apart.
	if name == "mono" || name == "green" {
		t.Error = t.Error.Underline(true)
		t.Highlight = t.Highlight.Underline(true)
	}
	return t
}

// NoColor is a high-contrast theme for NO_COLOR environments.
func NoColor() Theme {
	reset := lipgloss.NewStyle()
	return Theme{
		Name:      "nocolor",
		Accent:    reset.Bold(true),
		Dim:       reset,
		Text:      reset,
		Title:     reset.Bold(true),
		Error:     reset.Bold(true),
		Success:   reset.Bold(true),
		Warning:   reset.Bold(true),
		Border:    reset,
		Highlight: reset.Reverse(true),
	}
}

// Band returns the style for an accuracy band.
func (t Theme) Band(b provider.Band) lipgloss.Style {
	switch b {
	case provider.BandGood:
		return t.Success
	case provider.BandFair:
		return t.Warning
	default:
		return t.Error
	}
}

// LyricsStatus labels what lyrics a track already has.
type LyricsStatus int

const (
	StatusMissing LyricsStatus = iota
	StatusLRC
	StatusEmbedded
	StatusBoth
)

func StatusOf(tr provider.Track) LyricsStatus {
	switch {
	case tr.HasLRC && tr.HasEmbeddedLyrics:
		return StatusBoth
	case tr.HasLRC:
		return StatusLRC
	case tr.HasEmbeddedLyrics:
		return StatusEmbedded
	default:
		return StatusMissing
	}
}

// Badge renders a short status marker; emoji are replaced by ASCII when
// noEmoji is set.
func (t Theme) Badge(s LyricsStatus, noEmoji bool) string {
	var icon, label string
	style := t.Success
	switch s {
	case StatusBoth:
		icon, label = "🎵", "LRC+TAG"
	case StatusLRC:
		icon, label = "🎵", "LRC"
	case StatusEmbedded:
		icon, label = "🏷", "TAG"
	default:
		icon, label = "·", "none"
		style = t.Dim
	}
	if noEmoji {
		return style.Render("[" + label + "]")
	}
	return style.Render(icon + " " + label)
}
