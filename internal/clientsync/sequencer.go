package clientsync

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/starford/mise/internal/models"
)

// Ordering selects how a Sequencer treats overlapping requests for one key.
type Ordering string

const (
	// OrderingNone renders every response in arrival order.
	OrderingNone Ordering = "none"
	// OrderingDropStale discards responses older than the newest rendered one.
	OrderingDropStale Ordering = "drop-stale"
	// OrderingCancel also cancels the previous in-flight request on Begin.
	OrderingCancel Ordering = "cancel"
)

// Orderings lists the accepted ordering policies.
var Orderings = []Ordering{OrderingNone, OrderingDropStale, OrderingCancel}

// ParseOrdering validates an ordering name. An empty name selects OrderingCancel.
func ParseOrdering(s string) (Ordering, error) {
	if s == "" {
		return OrderingCancel, nil
	}
	for _, o := range Orderings {
		if string(o) == s {
			return o, nil
		}
	}
	return "", fmt.Errorf("unknown ordering %q", s)
}

// Sequencer keys.
const (
	KeyRecipes = "recipes"
	KeyForm    = "form"
)

// CommentsKey is the sequencer key for one recipe's comment list.
func CommentsKey(id models.ID) string { return "comments:" + id.String() }

// Ticket identifies one request issued by Sequencer.Begin.
type Ticket struct {
	key        string
	seq        uint64
	cancel     context.CancelFunc
	superseded atomic.Bool
}

// Superseded reports whether a newer request for the same key made this one
// obsolete.
func (t *Ticket) Superseded() bool { return t.superseded.Load() }

// Sequencer orders responses per collection key so an older response never
// overwrites a newer rendering.
type Sequencer struct {
	ordering Ordering

	mu       sync.Mutex
	issued   map[string]uint64
	applied  map[string]uint64
	inflight map[string]*Ticket
}

// NewSequencer returns a Sequencer using the given policy.
func NewSequencer(ordering Ordering) *Sequencer {
	if ordering == "" {
		ordering = OrderingCancel
	}
	return &Sequencer{
		ordering: ordering,
		issued:   make(map[string]uint64),
		applied:  make(map[string]uint64),
		inflight: make(map[string]*Ticket),
	}
}

// Ordering returns the active policy.
func (s *Sequencer) Ordering() Ordering { return s.ordering }

// Begin issues a ticket for key. The returned context is cancelled when a
// newer request supersedes this one under OrderingCancel, or on Done.
func (s *Sequencer) Begin(ctx context.Context, key string) (context.Context, *Ticket) {
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.issued[key]++
	t := &Ticket{key: key, seq: s.issued[key], cancel: cancel}
	if prev := s.inflight[key]; prev != nil && s.ordering == OrderingCancel {
		prev.superseded.Store(true)
		prev.cancel()
	}
	s.inflight[key] = t
	return ctx, t
}

// Apply runs render unless the ticket's response is stale. It reports
// whether render ran.
func (s *Sequencer) Apply(t *Ticket, render func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ordering != OrderingNone {
		if t.Superseded() || t.seq < s.applied[t.key] {
			t.superseded.Store(true)
			return false
		}
	}
	if t.seq > s.applied[t.key] {
		s.applied[t.key] = t.seq
	}
	render()
	return true
}

// Stale reports whether t was superseded or a newer response for its key
// has already been rendered.
func (s *Sequencer) Stale(t *Ticket) bool {
	if s.ordering == OrderingNone {
		return false
	}
	if t.Superseded() {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return t.seq < s.applied[t.key]
}

// Done releases the ticket's context.
func (s *Sequencer) Done(t *Ticket) {
	s.mu.Lock()
	if s.inflight[t.key] == t {
		delete(s.inflight, t.key)
	}
	s.mu.Unlock()
	t.cancel()
}
