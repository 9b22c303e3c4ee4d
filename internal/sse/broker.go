// Package sse fans recipe change announcements out to open browser tabs.
package sse

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/starford/mise/internal/models"
)

// Event is one server-sent event.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// CalendarUpdated is broadcast, at most once per throttle interval, after a
// recipe change that may move calendar entries.
const CalendarUpdated = "calendar.updated"

// TemplatesReloaded tells open pages to reload after a template change.
const TemplatesReloaded = "templates.reloaded"

const (
	heartbeatInterval  = 25 * time.Second
	subscriberBuffer   = 64
	defaultCalendarGap = 2 * time.Second
)

// frame renders ev in the text/event-stream wire format.
func frame(ev Event) ([]byte, error) {
	payload, err := json.Marshal(ev.Data)
	if err != nil {
		return nil, err
	}
	return fmt.Appendf(nil, "event: %s\ndata: %s\n\n", ev.Type, payload), nil
}

// throttle lets one event through per interval.
type throttle struct {
	interval time.Duration
	last     time.Time
}

func (t *throttle) allow(now time.Time) bool {
	if !t.last.IsZero() && now.Sub(t.last) < t.interval {
		return false
	}
	t.last = now
	return true
}

// Broker keeps the set of open event streams. Sends never block: a
// subscriber whose buffer is full misses the event and catches up on its
// next fragment fetch.
type Broker struct {
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	subs     map[chan []byte]struct{}
	calendar throttle
	closed   bool
}

// NewBroker creates a broker. calendarThrottle bounds how often
// calendar.updated is sent; zero means two seconds.
func NewBroker(calendarThrottle time.Duration, logger *slog.Logger) *Broker {
	if calendarThrottle <= 0 {
		calendarThrottle = defaultCalendarGap
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		logger:   logger,
		now:      time.Now,
		subs:     make(map[chan []byte]struct{}),
		calendar: throttle{interval: calendarThrottle},
	}
}

// Close closes every subscriber channel. Later publishes are ignored.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		close(ch)
	}
	clear(b.subs)
}

// Subscribe registers a new stream. The channel is closed on Unsubscribe or
// Close; it is returned already closed once the broker is closed.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, subscriberBuffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a stream and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
}

// ClientCount returns the number of open streams.
func (b *Broker) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Publish sends ev to every stream.
func (b *Broker) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sendLocked(ev)
}

// PublishChange announces a successful mutation. Recipe changes may move
// calendar entries, so they are followed by a throttled calendar.updated.
func (b *Broker) PublishChange(kind string, recipeID models.ID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sendLocked(Event{Type: kind, Data: map[string]string{"recipe_id": recipeID.String()}})
	if strings.HasPrefix(kind, "recipe.") && b.calendar.allow(b.now()) {
		b.sendLocked(Event{Type: CalendarUpdated, Data: map[string]string{}})
	}
}

func (b *Broker) sendLocked(ev Event) {
	if b.closed || len(b.subs) == 0 {
		return
	}
	raw, err := frame(ev)
	if err != nil {
		b.logger.Warn("sse: encode event", slog.String("type", ev.Type), slog.String("error", err.Error()))
		return
	}
	for ch := range b.subs {
		select {
		case ch <- raw:
		default:
		}
	}
}

// ServeHTTP streams events to one subscriber (GET /events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		var msg []byte
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			msg = []byte(": ping\n\n")
		case m, ok := <-ch:
			if !ok {
				return
			}
			msg = m
		}
		if _, err := w.Write(msg); err != nil {
			return
		}
		flusher.Flush()
	}
}
