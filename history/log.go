// Package history keeps the process-lifetime record of served predictions.
package history

import (
	"sync"
)

// Entry is one served prediction.
type Entry struct {
	Timestamp  string    `json:"timestamp"`
	Features   []float64 `json:"features"`
	Prediction int       `json:"prediction"`
}

// Log is an unbounded, append-only, in-memory sequence of entries. It is
// never persisted and never evicts.
type Log struct {
	mu          sync.RWMutex
	entries     []Entry
	subscribers map[int]chan Entry
	nextID      int
	dropped     uint64
}

func NewLog() *Log {
	return &Log{
		entries:     make([]Entry, 0),
		subscribers: make(map[int]chan Entry),
	}
}

// Append records entry and returns the new length of the log. Subscribers are
// notified in append order; a subscriber whose buffer is full misses the entry
// and the miss is counted in Dropped.
func (l *Log) Append(entry Entry) int {
	entry.Features = append([]float64(nil), entry.Features...)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, entry)
	for _, ch := range l.subscribers {
		select {
		case ch <- entry:
		default:
			l.dropped++
		}
	}
	return len(l.entries)
}

// Entries returns a copy of the log in insertion order. It is never nil.
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Dropped returns how many deliveries were skipped because a subscriber's
// buffer was full, summed over all subscribers.
func (l *Log) Dropped() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.dropped
}

// Subscribe returns a channel that receives entries appended from now on, and
// a function that cancels the subscription and closes the channel.
func (l *Log) Subscribe(buffer int) (<-chan Entry, func()) {
	ch := make(chan Entry, buffer)

	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.subscribers[id] = ch
	l.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.subscribers, id)
			l.mu.Unlock()
			close(ch)
		})
	}
}
