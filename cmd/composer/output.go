package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/Gasiyu/Composer/internal/provider"
	"github.com/Gasiyu/Composer/internal/ui"
)

var (
	good = color.New(color.FgGreen, color.Bold)
	fair = color.New(color.FgYellow, color.Bold)
	poor = color.New(color.FgRed, color.Bold)
	dim  = color.New(color.Faint)
)

func bandColor(b provider.Band) *color.Color {
	switch b {
	case provider.BandGood:
		return good
	case provider.BandFair:
		return fair
	default:
		return poor
	}
}

// accuracy renders the score as a coloured percentage.
func accuracy(c provider.Candidate) string {
	return bandColor(c.Band()).Sprintf("%3d%%", c.AccuracyPercent())
}

// describe is the one-line summary of a candidate.
func describe(c provider.Candidate) string {
	kind := "plain"
	if c.HasSynced() {
		kind = "synced"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s — %s", c.Artist, c.Title)
	if c.Album != "" {
		b.WriteString(" · " + c.Album)
	}
	b.WriteString(dim.Sprintf(" [%s, %s, %s]", kind, c.DisplayDuration(), c.Source.Name()))
	return b.String()
}

var statusLabels = map[ui.LyricsStatus]string{
	ui.StatusMissing:  "none",
	ui.StatusLRC:      "lrc",
	ui.StatusEmbedded: "tag",
	ui.StatusBoth:     "lrc+tag",
}

func formatTrack(t provider.Track) string {
	status := ui.StatusOf(t)
	label := fmt.Sprintf("%-9s", "["+statusLabels[status]+"]")
	if status == ui.StatusMissing {
		label = poor.Sprint(label)
	} else {
		label = good.Sprint(label)
	}
	line := fmt.Sprintf("%s %s — %s", label, t.Artist, t.Title)
	if t.Duration > 0 {
		line += dim.Sprintf(" (%d:%02d)", t.Duration/60, t.Duration%60)
	}
	return line + dim.Sprint("  "+t.Path)
}
