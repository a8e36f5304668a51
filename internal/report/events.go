package report

import (
	"sync"
	"time"

	"github.com/hamed0406/dpiprobe/internal/domain"
)

type EventType string

const (
	EventProbe EventType = "probe"
	EventRun   EventType = "run_complete"
)

// Event is one sequenced status update as served to API clients.
type Event struct {
	Seq        int64               `json:"seq"`
	Timestamp  time.Time           `json:"timestamp"`
	Type       EventType           `json:"type"`
	InstanceID string              `json:"instance_id,omitempty"`
	Result     *domain.ProbeResult `json:"result,omitempty"`
	Passed     int                 `json:"passed,omitempty"`
	Total      int                 `json:"total,omitempty"`
}

// EventBus is a bounded in-memory feed of events. It is a Sink, and readers
// either poll with Since or Subscribe for push delivery.
type EventBus struct {
	mu        sync.RWMutex
	nextSeq   int64
	maxEvents int
	events    []Event
	subs      map[chan Event]struct{}
}

func NewEventBus(maxEvents int) *EventBus {
	if maxEvents <= 0 {
		maxEvents = 500
	}
	return &EventBus{
		maxEvents: maxEvents,
		events:    make([]Event, 0, maxEvents),
		subs:      make(map[chan Event]struct{}),
	}
}

func (b *EventBus) OnProbeUpdate(instanceID string, res domain.ProbeResult) {
	r := res
	b.Publish(Event{Type: EventProbe, InstanceID: instanceID, Result: &r})
}

func (b *EventBus) OnRunComplete(successCount, totalCount int) {
	b.Publish(Event{Type: EventRun, Passed: successCount, Total: totalCount})
}

// Publish assigns the next sequence number, stores the event and hands it to
// subscribers. A subscriber whose buffer is full misses the event and has to
// catch up through Since.
func (b *EventBus) Publish(ev Event) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSeq++
	ev.Seq = b.nextSeq
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	b.events = append(b.events, ev)
	if len(b.events) > b.maxEvents {
		trim := len(b.events) - b.maxEvents
		b.events = append([]Event(nil), b.events[trim:]...)
	}

	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	return ev
}

// Since returns events with sequence strictly greater than seq.
func (b *EventBus) Since(seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Event, 0, len(b.events))
	for _, ev := range b.events {
		if ev.Seq > seq {
			out = append(out, ev)
		}
	}
	return out
}

// LastSeq is the sequence number of the newest event, 0 when none.
func (b *EventBus) LastSeq() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.nextSeq
}

// Subscribe registers a buffered channel for new events. The returned cancel
// func unregisters and closes it.
func (b *EventBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
}
