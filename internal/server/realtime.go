package server

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const (
	RealtimeEventEntryChanged = "entry-change"
	realtimeEventHeartbeat    = "heartbeat"
	realtimeSourceBackend     = "platepal-backend"

	defaultFeedBuffer = 16
)

// RealtimeMessage announces that entries of a user changed.
type RealtimeMessage struct {
	UserID    string
	EventType string
	EntryIDs  []string
	Timestamp time.Time
}

// RealtimeDispatcher fans entry changes out to every open stream of the same
// user. A stream whose buffer is full misses the message; others still get it.
type RealtimeDispatcher struct {
	mu       sync.RWMutex
	feeds    map[string]userFeed
	sequence atomic.Int64
	buffer   int
}

// userFeed holds the open streams of one user keyed by subscription number.
type userFeed map[int64]chan RealtimeMessage

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return newRealtimeDispatcher(defaultFeedBuffer)
}

func newRealtimeDispatcher(buffer int) *RealtimeDispatcher {
	if buffer < 1 {
		buffer = 1
	}
	return &RealtimeDispatcher{
		feeds:  make(map[string]userFeed),
		buffer: buffer,
	}
}

// Subscribe opens a stream of the user's entry changes. The stream is closed
// when ctx ends or the returned cancel func runs, whichever happens first.
// An empty user id yields an already closed stream.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context, userID string) (<-chan RealtimeMessage, func()) {
	stream := make(chan RealtimeMessage, d.buffer)
	if userID == "" {
		close(stream)
		return stream, func() {}
	}

	number := d.sequence.Add(1)
	d.mu.Lock()
	feed, ok := d.feeds[userID]
	if !ok {
		feed = make(userFeed)
		d.feeds[userID] = feed
	}
	feed[number] = stream
	d.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() { d.drop(userID, number) })
	}
	if done := ctx.Done(); done != nil {
		go func() {
			<-done
			cancel()
		}()
	}
	return stream, cancel
}

// Publish delivers the message to the user's open streams and reports how many
// accepted it.
func (d *RealtimeDispatcher) Publish(message RealtimeMessage) int {
	if message.UserID == "" || message.EventType == "" {
		return 0
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	delivered := 0
	for _, stream := range d.feeds[message.UserID] {
		select {
		case stream <- message:
			delivered++
		default:
		}
	}
	return delivered
}

// SubscriberCount reports the open streams of a user.
func (d *RealtimeDispatcher) SubscriberCount(userID string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.feeds[userID])
}

// drop removes and closes one stream. Publish holds the read lock while
// sending, so closing under the write lock never races a send.
func (d *RealtimeDispatcher) drop(userID string, number int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	feed := d.feeds[userID]
	stream, ok := feed[number]
	if !ok {
		return
	}
	delete(feed, number)
	close(stream)
	if len(feed) == 0 {
		delete(d.feeds, userID)
	}
}
