package queue

import (
	"fmt"
	"sync"
	"testing"

	"github.com/Gasiyu/Composer/internal/provider"
)

func sampleTracks(n int) []provider.Track {
	var out []provider.Track
	for i := 0; i < n; i++ {
		out = append(out, provider.Track{Path: fmt.Sprintf("/music/t%d.mp3", i), Title: fmt.Sprintf("Track %d", i)})
	}
	return out
}

func TestQueueFIFO(t *testing.T) {
	q := New()
	if n := q.Add(sampleTracks(3)...); n != 3 {
		t.Fatalf("expected 3 added got %d", n)
	}
	for i := 0; i < 3; i++ {
		tr, err := q.Pop()
		if err != nil {
			t.Fatalf("pop %d: %v", i, err)
		}
		if want := fmt.Sprintf("Track %d", i); tr.Title != want {
			t.Fatalf("pop %d: expected %s got %s", i, want, tr.Title)
		}
	}
	if _, err := q.Pop(); err != ErrEmpty {
		t.Fatalf("expected ErrEmpty got %v", err)
	}
}

func TestQueueIgnoresDuplicatePaths(t *testing.T) {
	q := New()
	tracks := sampleTracks(2)
	q.Add(tracks...)
	if n := q.Add(tracks[1], provider.Track{Path: "/music/new.mp3"}); n != 1 {
		t.Fatalf("expected 1 added got %d", n)
	}
	if q.Len() != 3 {
		t.Fatalf("expected len 3 got %d", q.Len())
	}
}

func TestQueuePeekRemoveClear(t *testing.T) {
	q := New()
	if _, err := q.Peek(); err != ErrEmpty {
		t.Fatalf("expected ErrEmpty from empty peek")
	}
	q.Add(sampleTracks(3)...)
	head, _ := q.Peek()
	if head.Path != "/music/t0.mp3" || q.Len() != 3 {
		t.Fatalf("peek must not consume: %v len %d", head, q.Len())
	}
	if !q.Remove("/music/t1.mp3") || q.Remove("/music/t1.mp3") {
		t.Fatalf("remove should succeed exactly once")
	}
	if q.Contains("/music/t1.mp3") || !q.Contains("/music/t2.mp3") {
		t.Fatalf("unexpected contents %v", q.Items())
	}
	q.Clear()
	if q.Len() != 0 {
		t.Fatalf("expected empty queue after clear")
	}
}

func TestQueueItemsIsCopy(t *testing.T) {
	q := New()
	q.Add(sampleTracks(1)...)
	items := q.Items()
	items[0].Title = "changed"
	if head, _ := q.Peek(); head.Title != "Track 0" {
		t.Fatalf("Items leaked internal slice")
	}
}

func TestQueueConcurrentPop(t *testing.T) {
	q := New()
	q.Add(sampleTracks(100)...)
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = map[string]bool{}
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				tr, err := q.Pop()
				if err != nil {
					return
				}
				mu.Lock()
				seen[tr.Path] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if len(seen) != 100 {
		t.Fatalf("expected 100 unique pops got %d", len(seen))
	}
}
