package app

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Gasiyu/Composer/internal/autodl"
	"github.com/Gasiyu/Composer/internal/library"
	"github.com/Gasiyu/Composer/internal/lyrics"
)

type dispatchMsg []func()

// Bridge is the lyrics.Dispatcher for the terminal UI. Worker callbacks are
// queued and run inside Update; anything they post is fed back through
// Update as ordinary messages.
type Bridge struct {
	mu     sync.Mutex
	queue  []func()
	out    []tea.Msg
	signal chan struct{}
}

func NewBridge() *Bridge {
	return &Bridge{signal: make(chan struct{}, 1)}
}

// Dispatch never blocks, so it is safe to call from Update itself.
func (b *Bridge) Dispatch(fn func()) {
	b.mu.Lock()
	b.queue = append(b.queue, fn)
	b.mu.Unlock()
	select {
	case b.signal <- struct{}{}:
	default:
	}
}

func (b *Bridge) wait() tea.Cmd {
	return func() tea.Msg {
		<-b.signal
		b.mu.Lock()
		fns := b.queue
		b.queue = nil
		b.mu.Unlock()
		return dispatchMsg(fns)
	}
}

func (b *Bridge) post(msg tea.Msg) {
	b.mu.Lock()
	b.out = append(b.out, msg)
	b.mu.Unlock()
}

func (b *Bridge) take() []tea.Msg {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.out
	b.out = nil
	return out
}

// LyricsEvents forwards download notifications to the model.
func (b *Bridge) LyricsEvents() lyrics.Events {
	return lyrics.Events{
		DownloadStarted:   func(path string) { b.post(downloadStartedMsg{path: path}) },
		DownloadCompleted: func(r lyrics.DownloadResult) { b.post(downloadDoneMsg{res: r}) },
		DownloadFailed:    func(r lyrics.DownloadResult) { b.post(downloadDoneMsg{res: r}) },
	}
}

// ScanEvents reports scan progress. Scanner callbacks run on the scanning
// goroutine, so they are dispatched first.
func (b *Bridge) ScanEvents() library.Events {
	return library.Events{
		Progress: func(done, total int) {
			b.Dispatch(func() { b.post(scanProgressMsg{done: done, total: total}) })
		},
	}
}

func (b *Bridge) BatchProgress(p autodl.Progress) { b.post(batchProgressMsg{p: p}) }
func (b *Bridge) BatchDone(s autodl.Summary)      { b.post(batchDoneMsg{s: s}) }
