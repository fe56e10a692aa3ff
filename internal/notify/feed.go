package notify

import (
	"sync"

	"corsair/internal/domain"
)

// DefaultCapacity bounds the feed when no capacity is given.
const DefaultCapacity = 256

type key struct {
	jobID string
	typ   string
}

// Feed is the process-wide store of inbound push notifications, keyed by
// (job id, type). It is bounded: once full, the oldest entry is evicted.
// Consumers remove entries explicitly via Take, so the feed never grows
// with session lifetime.
type Feed struct {
	mu      sync.Mutex
	cap     int
	entries map[key]domain.Notification
	order   []key
	subs    map[chan struct{}]struct{}
}

func NewFeed(capacity int) *Feed {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Feed{
		cap:     capacity,
		entries: make(map[key]domain.Notification),
		subs:    make(map[chan struct{}]struct{}),
	}
}

// Publish records a notification and wakes subscribers. Events without a
// job id cannot be correlated and are dropped.
func (f *Feed) Publish(n domain.Notification) {
	if n.Data.ID == "" {
		return
	}
	k := key{jobID: n.Data.ID, typ: n.Type}
	f.mu.Lock()
	if _, exists := f.entries[k]; !exists {
		for len(f.order) >= f.cap {
			oldest := f.order[0]
			f.order = f.order[1:]
			delete(f.entries, oldest)
		}
		f.order = append(f.order, k)
	}
	f.entries[k] = n
	for ch := range f.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	f.mu.Unlock()
}

// Peek returns the notification for (jobID, typ) without consuming it.
func (f *Feed) Peek(jobID, typ string) (domain.Notification, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.entries[key{jobID: jobID, typ: typ}]
	return n, ok
}

// Take consumes and removes the notification for (jobID, typ).
func (f *Feed) Take(jobID, typ string) (domain.Notification, bool) {
	k := key{jobID: jobID, typ: typ}
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.entries[k]
	if !ok {
		return domain.Notification{}, false
	}
	delete(f.entries, k)
	for i, cur := range f.order {
		if cur == k {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
	return n, true
}

// Subscribe returns a channel signaled on every publish and a cancel func.
// The channel carries no data; subscribers re-check the feed on wakeup.
func (f *Feed) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	f.mu.Lock()
	f.subs[ch] = struct{}{}
	f.mu.Unlock()
	cancel := func() {
		f.mu.Lock()
		delete(f.subs, ch)
		f.mu.Unlock()
	}
	return ch, cancel
}

// Len returns the number of stored notifications.
func (f *Feed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}
