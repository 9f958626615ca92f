package app

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// DiagnosticsState holds counters for the debug overlay.
type DiagnosticsState struct {
	// Searches
	SearchCount       int
	LastSearchLatency time.Duration
	TotalSearchTime   time.Duration
	EmptySearches     int

	// Downloads
	DownloadsSaved  int
	DownloadsFailed int
	LastError       string
	LastErrorAt     time.Time

	// Scans
	ScanCount    int
	LastScanTime time.Duration

	StartTime      time.Time
	LastUpdate     time.Time
	MemoryUsage    uint64
	GoroutineCount int

	pending map[string]time.Time
}

func NewDiagnosticsState() *DiagnosticsState {
	return &DiagnosticsState{
		StartTime: time.Now(),
		pending:   make(map[string]time.Time),
	}
}

// SearchStarted marks the start of operation opID.
func (d *DiagnosticsState) SearchStarted(opID string) {
	d.pending[opID] = time.Now()
}

// SearchFinished records the latency of opID if it was started here.
func (d *DiagnosticsState) SearchFinished(opID string, results int) {
	start, ok := d.pending[opID]
	if !ok {
		return
	}
	delete(d.pending, opID)
	d.RecordSearch(time.Since(start), results)
}

func (d *DiagnosticsState) RecordSearch(latency time.Duration, results int) {
	d.LastSearchLatency = latency
	d.SearchCount++
	d.TotalSearchTime += latency
	if results == 0 {
		d.EmptySearches++
	}
}

// AverageLatency returns the average search latency.
func (d *DiagnosticsState) AverageLatency() time.Duration {
	if d.SearchCount == 0 {
		return 0
	}
	return d.TotalSearchTime / time.Duration(d.SearchCount)
}

func (d *DiagnosticsState) RecordDownload(ok bool, err error) {
	if ok {
		d.DownloadsSaved++
	} else {
		d.DownloadsFailed++
	}
	if err != nil {
		d.LastError = err.Error()
		d.LastErrorAt = time.Now()
	}
}

// SuccessRate returns saved downloads as a percentage of all downloads.
func (d *DiagnosticsState) SuccessRate() float64 {
	total := d.DownloadsSaved + d.DownloadsFailed
	if total == 0 {
		return 0
	}
	return float64(d.DownloadsSaved) / float64(total) * 100
}

func (d *DiagnosticsState) RecordScan(took time.Duration) {
	d.ScanCount++
	d.LastScanTime = took
}

// Update refreshes runtime stats.
func (d *DiagnosticsState) Update() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	d.MemoryUsage = m.Alloc
	d.GoroutineCount = runtime.NumGoroutine()
	d.LastUpdate = time.Now()
}

func (d *DiagnosticsState) Uptime() time.Duration {
	return time.Since(d.StartTime)
}

// Render renders the diagnostics overlay.
func (d *DiagnosticsState) Render(m *Model) string {
	d.Update()

	var b strings.Builder
	b.WriteString(m.theme.Title.Render(" ═══ Diagnostics ═══ "))
	b.WriteString("\n\n")

	b.WriteString(m.theme.Dim.Render("Uptime: "))
	b.WriteString(m.theme.Text.Render(d.Uptime().Round(time.Second).String()))
	b.WriteString("\n\n")

	b.WriteString(m.theme.Accent.Render("Runtime"))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("  Memory: %s\n", formatBytes(d.MemoryUsage)))
	b.WriteString(fmt.Sprintf("  Goroutines: %d\n\n", d.GoroutineCount))

	b.WriteString(m.theme.Accent.Render("Library"))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("  Tracks: %d (%d without lyrics)\n", len(m.tracks), m.missingCount()))
	if d.ScanCount > 0 {
		b.WriteString(fmt.Sprintf("  Scans: %d, last took %s\n", d.ScanCount, d.LastScanTime.Round(time.Millisecond)))
	}
	b.WriteString("\n")

	b.WriteString(m.theme.Accent.Render("Searches"))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("  Count: %d (%d empty)\n", d.SearchCount, d.EmptySearches))
	if d.SearchCount > 0 {
		b.WriteString(fmt.Sprintf("  Last latency: %s\n", d.LastSearchLatency.Round(time.Millisecond)))
		b.WriteString(fmt.Sprintf("  Avg latency: %s\n", d.AverageLatency().Round(time.Millisecond)))
	}
	if m.lyrics != nil && m.lyrics.IsSearching() {
		b.WriteString(m.theme.Warning.Render("  ● In flight"))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString(m.theme.Accent.Render("Downloads"))
	b.WriteString("\n")
	if total := d.DownloadsSaved + d.DownloadsFailed; total > 0 {
		b.WriteString(fmt.Sprintf("  Saved: %d / Failed: %d\n", d.DownloadsSaved, d.DownloadsFailed))
		b.WriteString(fmt.Sprintf("  Success rate: %.1f%%\n", d.SuccessRate()))
	} else {
		b.WriteString("  None yet\n")
	}
	if d.LastError != "" && time.Since(d.LastErrorAt) < 5*time.Minute {
		b.WriteString(m.theme.Error.Render(fmt.Sprintf("  Last error: %s", d.LastError)))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString(m.theme.Accent.Render("Auto-download"))
	b.WriteString("\n")
	if m.batch != nil && m.batch.Running() {
		done, total := m.batch.Progress()
		b.WriteString(m.theme.Success.Render(fmt.Sprintf("  ● Running %d/%d", done, total)))
	} else {
		b.WriteString(m.theme.Dim.Render("  ○ Idle"))
	}
	b.WriteString("\n\n")
	b.WriteString(m.theme.Dim.Render("Press Ctrl+D to close"))

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Padding(1, 2).
		Width(44).
		Render(b.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Right, lipgloss.Top, box)
}

// formatBytes formats bytes as human-readable string.
func formatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
