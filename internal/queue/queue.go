package queue

import (
	"errors"
	"sync"

	"github.com/Gasiyu/Composer/internal/provider"
)

var ErrEmpty = errors.New("queue is empty")

// Queue is a FIFO of tracks waiting for lyrics. Tracks are keyed by path;
// adding a path that is already queued is ignored.
type Queue struct {
	mu    sync.Mutex
	items []provider.Track
}

func New() *Queue {
	return &Queue{items: []provider.Track{}}
}

func (q *Queue) Items() []provider.Track {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]provider.Track, len(q.items))
	copy(out, q.items)
	return out
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Add appends tracks and returns how many were actually queued.
func (q *Queue) Add(tracks ...provider.Track) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	added := 0
	for _, t := range tracks {
		if q.indexOf(t.Path) >= 0 {
			continue
		}
		q.items = append(q.items, t)
		added++
	}
	return added
}

// Pop removes and returns the head of the queue.
func (q *Queue) Pop() (provider.Track, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return provider.Track{}, ErrEmpty
	}
	head := q.items[0]
	q.items[0] = provider.Track{}
	q.items = q.items[1:]
	return head, nil
}

func (q *Queue) Peek() (provider.Track, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return provider.Track{}, ErrEmpty
	}
	return q.items[0], nil
}

// Remove drops the track with the given path.
func (q *Queue) Remove(path string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	idx := q.indexOf(path)
	if idx < 0 {
		return false
	}
	q.items = append(q.items[:idx], q.items[idx+1:]...)
	return true
}

func (q *Queue) Contains(path string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.indexOf(path) >= 0
}

func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = []provider.Track{}
}

func (q *Queue) indexOf(path string) int {
	for i, t := range q.items {
		if t.Path == path {
			return i
		}
	}
	return -1
}
