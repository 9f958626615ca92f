package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Gasiyu/Composer/internal/autodl"
	"github.com/Gasiyu/Composer/internal/config"
	"github.com/Gasiyu/Composer/internal/lyrics"
	"github.com/Gasiyu/Composer/internal/lyricsfile"
	"github.com/Gasiyu/Composer/internal/provider"
	"github.com/Gasiyu/Composer/internal/romanize"
	"github.com/Gasiyu/Composer/internal/settings"
	"github.com/Gasiyu/Composer/internal/tagwriter"
	"github.com/Gasiyu/Composer/internal/ui"
)

type screen int

const (
	screenLibrary screen = iota
	screenResults
	screenSettings
	screenCount
)

// Searcher is the part of the lyrics orchestrator the UI drives.
type Searcher interface {
	SearchAsync(q provider.Query, cb lyrics.SearchCallback) string
	DownloadAsync(t provider.Track, c provider.Candidate, cb lyrics.DownloadCallback) string
	CancelAll()
	IsSearching() bool
	IsDownloading(path string) bool
}

type Scanner interface {
	Scan(ctx context.Context, roots ...string) ([]provider.Track, error)
}

// Batch runs auto-download over a set of tracks.
type Batch interface {
	Start(tracks []provider.Track)
	Reset()
	Running() bool
	Progress() (completed, total int)
	Queued(path string) bool
	Skip(path string) bool
	Next() (provider.Track, bool)
}

type Deps struct {
	Config   *config.Config
	Bridge   *Bridge
	Lyrics   Searcher
	Scanner  Scanner
	Batch    Batch
	Settings *settings.Settings
	Roots    []string
	Logger   *slog.Logger
}

// Languages offered when cycling the lyrics language setting.
var languages = []string{"en", "ja", "zh", "ko", "es", "fr", "de"}

type Model struct {
	cfg      *config.Config
	bridge   *Bridge
	lyrics   Searcher
	scanner  Scanner
	batch    Batch
	settings *settings.Settings
	roots    []string
	logger   *slog.Logger
	theme    ui.Theme
	commands *CommandRegistry
	diag     *DiagnosticsState

	screen   screen
	status   string
	errorMsg string
	width    int
	height   int

	tracks    []provider.Track
	selection int
	filter    filterState
	filtering bool

	scanning    bool
	scanGen     int
	scanDone    int
	scanTotal   int
	scanStarted time.Time
	scanCancel  context.CancelFunc

	searchOp    string
	searchTrack provider.Track
	candidates  []provider.Candidate
	resultSel   int
	searching   bool

	settingSel int

	batchDone  int
	batchTotal int

	showHelp        bool
	showDiagnostics bool

	// preview holds the lyrics shown by the viewer; empty when closed.
	preview      string
	previewTitle string
}

func New(d Deps) Model {
	cfg := d.Config
	if cfg == nil {
		cfg = &config.Config{}
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	bridge := d.Bridge
	if bridge == nil {
		bridge = NewBridge()
	}
	st := d.Settings
	if st == nil {
		st = settings.New(nil, logger)
	}
	return Model{
		cfg:      cfg,
		bridge:   bridge,
		lyrics:   d.Lyrics,
		scanner:  d.Scanner,
		batch:    d.Batch,
		settings: st,
		roots:    d.Roots,
		logger:   logger.With(slog.String("component", "app")),
		theme:    ui.GetTheme(cfg.UI.Theme, os.Getenv("NO_COLOR") != ""),
		commands: NewCommandRegistry(),
		diag:     NewDiagnosticsState(),
		screen:   screenLibrary,
		status:   "Starting",
	}
}

// Run starts the terminal UI and blocks until it exits.
func Run(d Deps) error {
	p := tea.NewProgram(New(d), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

type (
	scanDoneMsg struct {
		gen    int
		tracks []provider.Track
		err    error
	}
	scanProgressMsg struct{ done, total int }
	searchDoneMsg   struct {
		res   lyrics.SearchResult
		track provider.Track
	}
	downloadStartedMsg struct{ path string }
	downloadDoneMsg    struct{ res lyrics.DownloadResult }
	batchProgressMsg   struct{ p autodl.Progress }
	batchDoneMsg       struct{ s autodl.Summary }
	clearErrorMsg      struct{}
	startScanMsg       struct{}
)

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.bridge.wait(), func() tea.Msg { return startScanMsg{} })
}

// startScan cancels a running scan and starts a new one.
func (m *Model) startScan() (Model, tea.Cmd) {
	if m.scanner == nil || len(m.roots) == 0 {
		m.status = "No library folder configured"
		return *m, nil
	}
	if m.scanCancel != nil {
		m.scanCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.scanCancel = cancel
	m.scanGen++
	m.scanning = true
	m.scanDone, m.scanTotal = 0, 0
	m.scanStarted = time.Now()
	m.status = "Scanning " + strings.Join(m.roots, ", ")

	gen, scanner, roots := m.scanGen, m.scanner, m.roots
	return *m, func() tea.Msg {
		defer cancel()
		tracks, err := scanner.Scan(ctx, roots...)
		return scanDoneMsg{gen: gen, tracks: tracks, err: err}
	}
}

func (m Model) clearErrorCmd() tea.Cmd {
	return tea.Tick(5*time.Second, func(t time.Time) tea.Msg {
		return clearErrorMsg{}
	})
}

func (m Model) setError(err error) (Model, tea.Cmd) {
	m.errorMsg = err.Error()
	return m, m.clearErrorCmd()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil
	case clearErrorMsg:
		m.errorMsg = ""
		return m, nil
	case dispatchMsg:
		return m.runDispatched(msg)
	case startScanMsg:
		return m.startScan()
	case scanProgressMsg:
		if m.scanning {
			m.scanDone, m.scanTotal = msg.done, msg.total
		}
		return m, nil
	case scanDoneMsg:
		return m.handleScanDone(msg)
	case searchDoneMsg:
		return m.handleSearchDone(msg)
	case downloadStartedMsg:
		m.status = "Saving lyrics for " + m.trackName(msg.path)
		return m, nil
	case downloadDoneMsg:
		return m.handleDownloadDone(msg)
	case batchProgressMsg:
		m.batchDone, m.batchTotal = msg.p.Completed, msg.p.Total
		m.status = fmt.Sprintf("Auto-download %d/%d: %s (%s)", msg.p.Completed, msg.p.Total, msg.p.Track, msg.p.Outcome)
		return m, nil
	case batchDoneMsg:
		m.batchDone, m.batchTotal = 0, 0
		m.status = fmt.Sprintf("Auto-download finished: %d saved, %d without results, %d failed",
			msg.s.Saved, msg.s.NoResults, msg.s.Failed)
		return m, nil
	case tea.KeyMsg:
		if m.preview != "" {
			return m.handlePreviewKey(msg)
		}
		if m.filtering {
			return m.handleFilterKey(msg)
		}
		if cmd, ok := m.commands.Lookup(m.screen, msg.String()); ok {
			return cmd.Handler(&m)
		}
	}
	return m, nil
}

// runDispatched runs queued worker callbacks, then feeds whatever they
// posted back through Update.
func (m Model) runDispatched(fns dispatchMsg) (tea.Model, tea.Cmd) {
	for _, fn := range fns {
		fn()
	}
	cmds := []tea.Cmd{m.bridge.wait()}
	var model tea.Model = m
	for _, posted := range m.bridge.take() {
		var cmd tea.Cmd
		model, cmd = model.Update(posted)
		cmds = append(cmds, cmd)
	}
	return model, tea.Batch(cmds...)
}

func (m Model) handleScanDone(msg scanDoneMsg) (tea.Model, tea.Cmd) {
	if msg.gen != m.scanGen {
		return m, nil
	}
	m.scanning = false
	m.scanCancel = nil
	m.diag.RecordScan(time.Since(m.scanStarted))
	if msg.err != nil {
		if errors.Is(msg.err, context.Canceled) {
			m.status = "Scan cancelled"
			return m, nil
		}
		m.status = "Scan failed"
		return m.setError(msg.err)
	}
	m.tracks = msg.tracks
	m.selection = 0
	if m.filter.input != "" {
		m.filter.update(m.tracks)
	}
	m.status = fmt.Sprintf("%d tracks, %d without lyrics", len(m.tracks), m.missingCount())

	if m.settings.AutoDownload() && m.batch != nil {
		pending := autodl.Select(m.tracks, m.settings.OverwriteExisting())
		if len(pending) > 0 {
			m.batch.Start(pending)
			m.batchDone, m.batchTotal = 0, len(pending)
			m.status = fmt.Sprintf("Auto-downloading lyrics for %d tracks", len(pending))
		}
	}
	return m, nil
}

func (m Model) handleSearchDone(msg searchDoneMsg) (tea.Model, tea.Cmd) {
	m.diag.SearchFinished(msg.res.OpID, len(msg.res.Candidates))
	if msg.res.OpID != m.searchOp {
		return m, nil
	}
	m.searching = false
	if msg.res.Err != nil {
		m.candidates = nil
		m.status = "Search failed"
		return m.setError(msg.res.Err)
	}
	m.candidates = msg.res.Candidates
	m.resultSel = 0
	if len(m.candidates) == 0 {
		m.status = "No lyrics found for " + msg.track.String()
	} else {
		m.status = fmt.Sprintf("%d results for %s", len(m.candidates), msg.track)
	}
	return m, nil
}

func (m Model) handleDownloadDone(msg downloadDoneMsg) (tea.Model, tea.Cmd) {
	res := msg.res
	m.diag.RecordDownload(res.OK(), res.Err)
	if !res.OK() {
		m.status = "Could not save lyrics for " + m.trackName(res.Path)
		return m.setError(res.Err)
	}
	for i := range m.tracks {
		if m.tracks[i].Path != res.Path {
			continue
		}
		for _, t := range res.Saved {
			switch t {
			case lyrics.TargetLRC:
				m.tracks[i].HasLRC = true
			case lyrics.TargetMetadata:
				m.tracks[i].HasEmbeddedLyrics = true
			}
		}
	}
	m.status = "Lyrics saved for " + m.trackName(res.Path)
	if res.Err != nil {
		return m.setError(res.Err)
	}
	return m, nil
}

func (m Model) handleFilterKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyEsc:
		m.filtering = false
		m.filter.Reset()
		m.selection = 0
	case tea.KeyEnter:
		m.filtering = false
	case tea.KeyBackspace:
		m.filter.Backspace(m.tracks)
		m.selection = 0
	case tea.KeyUp:
		return m.moveUp()
	case tea.KeyDown:
		return m.moveDown()
	case tea.KeySpace:
		m.filter.InsertRunes([]rune{' '}, m.tracks)
		m.selection = 0
	case tea.KeyRunes:
		m.filter.InsertRunes(msg.Runes, m.tracks)
		m.selection = 0
	}
	return m, nil
}

func (m Model) handlePreviewKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc", "v", "q", "enter":
		m.preview, m.previewTitle = "", ""
	}
	return m, nil
}

func (m *Model) visible() []int { return m.filter.Visible(m.tracks) }

func (m *Model) selectedTrack() (provider.Track, bool) {
	vis := m.visible()
	if len(vis) == 0 {
		return provider.Track{}, false
	}
	return m.tracks[vis[clamp(m.selection, 0, len(vis)-1)]], true
}

func (m *Model) selectedCandidate() (provider.Candidate, bool) {
	if len(m.candidates) == 0 {
		return provider.Candidate{}, false
	}
	return m.candidates[clamp(m.resultSel, 0, len(m.candidates)-1)], true
}

func (m *Model) trackName(path string) string {
	for _, t := range m.tracks {
		if t.Path == path {
			return t.String()
		}
	}
	return path
}

func (m *Model) missingCount() int {
	n := 0
	for _, t := range m.tracks {
		if !t.HasLyrics() {
			n++
		}
	}
	return n
}

func (m *Model) cursor() *int {
	switch m.screen {
	case screenResults:
		return &m.resultSel
	case screenSettings:
		return &m.settingSel
	default:
		return &m.selection
	}
}

func (m *Model) listLen() int {
	switch m.screen {
	case screenResults:
		return len(m.candidates)
	case screenSettings:
		return len(settings.Definitions())
	default:
		return len(m.visible())
	}
}

func (m *Model) moveDown() (Model, tea.Cmd) {
	if c := m.cursor(); *c < m.listLen()-1 {
		*c++
	}
	return *m, nil
}

func (m *Model) moveUp() (Model, tea.Cmd) {
	if c := m.cursor(); *c > 0 {
		*c--
	}
	return *m, nil
}

func (m *Model) nextScreen() (Model, tea.Cmd) {
	m.screen = (m.screen + 1) % screenCount
	return *m, nil
}

func (m *Model) back() (Model, tea.Cmd) {
	m.screen = screenLibrary
	return *m, nil
}

func (m *Model) searchSelected() (Model, tea.Cmd) {
	t, ok := m.selectedTrack()
	if !ok {
		return *m, nil
	}
	return m.search(t)
}

func (m *Model) retrySearch() (Model, tea.Cmd) {
	if m.searchTrack.Path == "" {
		return *m, nil
	}
	return m.search(m.searchTrack)
}

func (m *Model) search(t provider.Track) (Model, tea.Cmd) {
	if m.lyrics == nil {
		return m.setError(lyrics.ErrNoProviders)
	}
	bridge := m.bridge
	m.searchTrack = t
	m.candidates = nil
	m.resultSel = 0
	m.searching = true
	m.screen = screenResults
	m.status = "Searching lyrics for " + t.String()
	m.searchOp = m.lyrics.SearchAsync(t.Query(), func(res lyrics.SearchResult) {
		bridge.post(searchDoneMsg{res: res, track: t})
	})
	m.diag.SearchStarted(m.searchOp)
	return *m, nil
}

func (m *Model) startFilter() (Model, tea.Cmd) {
	m.filtering = true
	return *m, nil
}

func (m *Model) clearFilter() (Model, tea.Cmd) {
	m.filter.Reset()
	m.selection = 0
	return *m, nil
}

func (m *Model) rescan() (Model, tea.Cmd) {
	if m.batch != nil {
		m.batch.Reset()
		m.batchDone, m.batchTotal = 0, 0
	}
	return m.startScan()
}

func (m *Model) fetchMissing() (Model, tea.Cmd) {
	if m.batch == nil {
		return *m, nil
	}
	pending := autodl.Select(m.tracks, m.settings.OverwriteExisting())
	if len(pending) == 0 {
		m.status = "Every track already has lyrics"
		return *m, nil
	}
	m.batch.Start(pending)
	m.batchDone, m.batchTotal = 0, len(pending)
	m.status = fmt.Sprintf("Auto-downloading lyrics for %d tracks", len(pending))
	return *m, nil
}

func (m *Model) cancelAll() (Model, tea.Cmd) {
	if m.lyrics != nil {
		m.lyrics.CancelAll()
	}
	if m.batch != nil {
		m.batch.Reset()
	}
	m.searching = false
	m.searchOp = ""
	m.batchDone, m.batchTotal = 0, 0
	m.status = "Cancelled"
	return *m, nil
}

func (m *Model) downloadSelected() (Model, tea.Cmd) {
	c, ok := m.selectedCandidate()
	if !ok || m.lyrics == nil {
		return *m, nil
	}
	if m.lyrics.IsDownloading(m.searchTrack.Path) {
		m.status = "Already saving lyrics for " + m.searchTrack.String()
		return *m, nil
	}
	if m.batch != nil && m.batch.Skip(m.searchTrack.Path) && m.batchTotal > 0 {
		m.batchTotal--
	}
	m.lyrics.DownloadAsync(m.searchTrack, c, nil)
	return *m, nil
}

// viewLyrics opens the saved lyrics of the selected track, preferring the
// .lrc file over the embedded tag.
func (m *Model) viewLyrics() (Model, tea.Cmd) {
	t, ok := m.selectedTrack()
	if !ok {
		return *m, nil
	}
	text, err := lyricsfile.Read(t.Path)
	if errors.Is(err, os.ErrNotExist) && t.HasEmbeddedLyrics {
		text, err = tagwriter.ReadLyrics(t.Path)
	}
	switch {
	case errors.Is(err, os.ErrNotExist):
		m.status = "No saved lyrics for " + t.String()
		return *m, nil
	case err != nil:
		return m.setError(err)
	case strings.TrimSpace(text) == "":
		m.status = "No saved lyrics for " + t.String()
		return *m, nil
	}
	m.preview, m.previewTitle = text, t.String()
	return *m, nil
}

// deleteLyrics removes the .lrc file of the selected track. Embedded
// lyrics are left alone.
func (m *Model) deleteLyrics() (Model, tea.Cmd) {
	vis := m.visible()
	if len(vis) == 0 {
		return *m, nil
	}
	idx := vis[clamp(m.selection, 0, len(vis)-1)]
	t := m.tracks[idx]
	if m.lyrics != nil && m.lyrics.IsDownloading(t.Path) {
		m.status = "Lyrics for " + t.String() + " are being saved"
		return *m, nil
	}
	removed, err := lyricsfile.Delete(t.Path)
	if err != nil {
		return m.setError(err)
	}
	if !removed {
		m.status = "No lyrics file for " + t.String()
		return *m, nil
	}
	m.tracks[idx].HasLRC = false
	m.logger.Info("lyrics file removed", slog.String("path", t.Path))
	m.status = "Removed lyrics file for " + t.String()
	return *m, nil
}

func (m *Model) openSettings() (Model, tea.Cmd) {
	m.screen = screenSettings
	return *m, nil
}

func (m *Model) changeSetting() (Model, tea.Cmd) {
	defs := settings.Definitions()
	if len(defs) == 0 {
		return *m, nil
	}
	d := defs[clamp(m.settingSel, 0, len(defs)-1)]
	next, err := nextSettingValue(m.settings, d.Key)
	if err == nil {
		err = m.settings.SetString(d.Key, next)
	}
	if err != nil {
		return m.setError(err)
	}
	if !m.settings.HasBackend() {
		m.status = "Settings store unavailable, change not saved"
		return *m, nil
	}
	m.status = fmt.Sprintf("%s = %s", d.Key, next)
	return *m, nil
}

func (m *Model) resetSettings() (Model, tea.Cmd) {
	if err := m.settings.ResetToDefaults(); err != nil {
		return m.setError(err)
	}
	m.status = "Settings reset to defaults"
	return *m, nil
}

func (m *Model) toggleHelp() (Model, tea.Cmd) {
	m.showHelp = !m.showHelp
	return *m, nil
}

func (m *Model) toggleDiagnostics() (Model, tea.Cmd) {
	m.showDiagnostics = !m.showDiagnostics
	return *m, nil
}

// nextSettingValue returns the value key moves to when changed in the
// settings screen.
func nextSettingValue(s *settings.Settings, key string) (string, error) {
	cur, err := s.Get(key)
	if err != nil {
		return "", err
	}
	switch key {
	case settings.KeyLanguage:
		return cycle(languages, cur), nil
	case settings.KeyStorageMethod:
		return cycle([]string{
			string(settings.StorageLRC), string(settings.StorageMetadata), string(settings.StorageBoth),
		}, cur), nil
	case settings.KeyRomanizationMode:
		return cycle([]string{string(romanize.ModeReplace), string(romanize.ModeMultiline)}, cur), nil
	case settings.KeySourcesPriority:
		srcs := s.SourcePriority()
		rotated := append(srcs[1:len(srcs):len(srcs)], srcs[0])
		names := make([]string, len(rotated))
		for i, src := range rotated {
			names[i] = string(src)
		}
		return strings.Join(names, ","), nil
	}
	b, err := strconv.ParseBool(cur)
	if err != nil {
		return "", err
	}
	return strconv.FormatBool(!b), nil
}

// cycle returns the value after cur in values, wrapping around. Unknown
// values restart at the first entry.
func cycle(values []string, cur string) string {
	for i, v := range values {
		if v == cur {
			return values[(i+1)%len(values)]
		}
	}
	return values[0]
}

func (m Model) View() string {
	if m.showHelp {
		return m.renderHelp()
	}
	if m.preview != "" {
		return m.renderPreview()
	}
	if m.showDiagnostics {
		return m.diag.Render(&m)
	}
	var main string
	switch m.screen {
	case screenLibrary:
		main = m.renderLibrary()
	case screenResults:
		main = m.renderResults()
	case screenSettings:
		main = m.renderSettings()
	}
	top := lipgloss.NewStyle().Bold(true).Render("Composer ▸ " + m.screenTitle())
	return lipgloss.JoinVertical(lipgloss.Left, top, main, m.renderStatusBar())
}

func (m Model) screenTitle() string {
	switch m.screen {
	case screenLibrary:
		return "Library"
	case screenResults:
		return "Results"
	case screenSettings:
		return "Settings"
	default:
		return ""
	}
}

// pageRows is how many list rows fit on screen.
func (m Model) pageRows() int {
	rows := m.cfg.UI.PageSize
	if m.height > 0 && (rows <= 0 || m.height-6 < rows) {
		rows = m.height - 6
	}
	if rows < 1 {
		rows = 1
	}
	return rows
}

// window returns the [start, end) slice of n rows that keeps sel visible.
func window(n, sel, rows int) (int, int) {
	if n <= rows {
		return 0, n
	}
	start := sel - rows/2
	start = clamp(start, 0, n-rows)
	return start, start + rows
}

func (m Model) renderLibrary() string {
	var b strings.Builder
	if m.filtering || m.filter.Active() {
		prompt := "/" + m.filter.input
		if m.filtering {
			prompt += "█"
		}
		b.WriteString(m.theme.Accent.Render(prompt) + "\n")
	}
	if len(m.tracks) == 0 {
		if m.scanning {
			b.WriteString(m.theme.Dim.Render("Scanning…") + "\n")
		} else {
			b.WriteString(m.theme.Dim.Render("No tracks. Press r to rescan.") + "\n")
		}
		return b.String()
	}
	vis := m.visible()
	if len(vis) == 0 {
		b.WriteString(m.theme.Dim.Render("No tracks match the filter") + "\n")
		return b.String()
	}
	start, end := window(len(vis), m.selection, m.pageRows())
	for row := start; row < end; row++ {
		idx := vis[row]
		t := m.tracks[idx]
		prefix := "  "
		if row == m.selection {
			prefix = "⏵ "
		}
		badge := m.theme.Badge(ui.StatusOf(t), m.cfg.UI.NoEmoji)
		var line string
		if m.filter.Active() {
			line = highlightMatches(trackSource(m.tracks).String(idx), m.filter.highlightFor(idx), m.theme.Highlight)
		} else {
			line = fmt.Sprintf("%s — %s", t.Artist, t.Title)
			if t.Album != "" && t.Album != provider.UnknownAlbum {
				line += m.theme.Dim.Render(" · " + t.Album)
			}
		}
		dur := ""
		if t.Duration > 0 {
			dur = m.theme.Dim.Render(fmt.Sprintf(" (%d:%02d)", t.Duration/60, t.Duration%60))
		}
		if m.batch != nil && m.batchTotal > 0 && m.batch.Queued(t.Path) {
			dur += m.theme.Dim.Render(" · queued")
		}
		b.WriteString(prefix + badge + " " + m.theme.Text.Render(line) + dur + "\n")
	}
	return b.String()
}

func (m Model) renderResults() string {
	var b strings.Builder
	if m.searchTrack.Path != "" {
		b.WriteString(m.theme.Title.Render("Lyrics for "+m.searchTrack.String()) + "\n")
	}
	if m.searching {
		b.WriteString(m.theme.Dim.Render("Searching…") + "\n")
		return b.String()
	}
	if len(m.candidates) == 0 {
		b.WriteString(m.theme.Dim.Render("No results. Press r to search again.") + "\n")
		return b.String()
	}
	start, end := window(len(m.candidates), m.resultSel, m.pageRows())
	for i := start; i < end; i++ {
		c := m.candidates[i]
		prefix := "  "
		if i == m.resultSel {
			prefix = "⏵ "
		}
		kind := "Plain"
		if c.HasSynced() {
			kind = "Synced"
		}
		acc := m.theme.Band(c.Band()).Render(fmt.Sprintf("%3d%%", c.AccuracyPercent()))
		line := fmt.Sprintf("%s — %s", c.Artist, c.Title)
		if c.Album != "" {
			line += " · " + c.Album
		}
		meta := m.theme.Dim.Render(fmt.Sprintf(" [%s, %s, %s]", kind, c.DisplayDuration(), c.Source.Name()))
		b.WriteString(prefix + acc + " " + m.theme.Text.Render(line) + meta + "\n")
	}
	return b.String()
}

func (m Model) renderPreview() string {
	lines := strings.Split(strings.TrimRight(m.preview, "\n"), "\n")
	if rows := m.pageRows(); len(lines) > rows {
		lines = append(lines[:rows-1:rows-1], m.theme.Dim.Render(fmt.Sprintf("… %d more lines", len(lines)-rows+1)))
	}
	top := m.theme.Title.Render("Lyrics for " + m.previewTitle)
	hint := m.theme.Dim.Render("esc to close")
	return lipgloss.JoinVertical(lipgloss.Left, top, strings.Join(lines, "\n"), hint)
}

func (m Model) renderSettings() string {
	var b strings.Builder
	if !m.settings.HasBackend() {
		b.WriteString(m.theme.Warning.Render("Settings store unavailable; showing defaults") + "\n")
	}
	values := m.settings.All()
	for i, d := range settings.Definitions() {
		prefix := "  "
		if i == m.settingSel {
			prefix = "⏵ "
		}
		b.WriteString(fmt.Sprintf("%s%s %s\n", prefix,
			m.theme.Accent.Render(fmt.Sprintf("%-28s", d.Key)),
			m.theme.Text.Render(values[d.Key])))
		if i == m.settingSel {
			b.WriteString("    " + m.theme.Dim.Render(d.Description) + "\n")
		}
	}
	return b.String()
}

func (m Model) renderHelp() string {
	lines := []string{m.theme.Title.Render("Help"), ""}
	category := ""
	for _, c := range m.commands.Commands() {
		if c.Category != category {
			if category != "" {
				lines = append(lines, "")
			}
			category = c.Category
			lines = append(lines, m.theme.Accent.Render(category))
		}
		lines = append(lines, fmt.Sprintf("  %-22s: %s", c.keyHelp(), c.Name))
	}
	lines = append(lines, "", m.theme.Dim.Render("In filter mode: type to narrow, enter keeps the filter, esc clears it"))
	return strings.Join(lines, "\n")
}

func (m Model) renderStatusBar() string {
	var parts []string
	if m.scanning {
		if m.scanTotal > 0 {
			parts = append(parts, fmt.Sprintf("Scanning %d/%d", m.scanDone, m.scanTotal))
		} else {
			parts = append(parts, "Scanning")
		}
	}
	if m.batchTotal > 0 {
		auto := fmt.Sprintf("Auto %d/%d", m.batchDone, m.batchTotal)
		if next, ok := m.nextQueued(); ok {
			auto += ", next " + next.String()
		}
		parts = append(parts, auto)
	}
	status := m.theme.Dim.Render(m.status)
	if m.errorMsg != "" {
		status = m.theme.Error.Render(m.errorMsg)
	}
	if len(parts) > 0 {
		status = m.theme.Accent.Render(strings.Join(parts, " · ")) + "  " + status
	}
	return status
}

func (m Model) nextQueued() (provider.Track, bool) {
	if m.batch == nil {
		return provider.Track{}, false
	}
	return m.batch.Next()
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
