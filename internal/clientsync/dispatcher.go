package clientsync

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/starford/mise/internal/models"
)

// EventKind names a user interaction.
type EventKind string

const (
	EventSearch        EventKind = "search"
	EventSort          EventKind = "sort"
	EventRefresh       EventKind = "refresh"
	EventSubmitRecipe  EventKind = "submit-recipe"
	EventEditRecipe    EventKind = "edit-recipe"
	EventDeleteRecipe  EventKind = "delete-recipe"
	EventLoadComments  EventKind = "load-comments"
	EventAddComment    EventKind = "add-comment"
	EventEditComment   EventKind = "edit-comment"
	EventDeleteComment EventKind = "delete-comment"
)

// Event carries the payload of a user interaction. Only the fields relevant
// to Kind are set.
type Event struct {
	Kind      EventKind
	Query     ListQuery
	RecipeID  models.ID
	CommentID models.ID
	Draft     RecipeDraft
	// Text is the new comment for add-comment and the current text for
	// edit-comment.
	Text string
}

// Handler reacts to an event.
type Handler func(ctx context.Context, ev Event) error

type registration struct {
	id uint64
	h  Handler
}

// Dispatcher routes events to registered handlers. Each handler runs in its
// own goroutine so a slow request never blocks the next interaction.
type Dispatcher struct {
	logger *slog.Logger

	mu       sync.RWMutex
	nextID   uint64
	handlers map[EventKind][]registration

	wg sync.WaitGroup
}

// NewDispatcher creates an empty Dispatcher.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{logger: logger, handlers: make(map[EventKind][]registration)}
}

// On registers h for kind and returns a func that removes it.
func (d *Dispatcher) On(kind EventKind, h Handler) func() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	id := d.nextID
	d.handlers[kind] = append(d.handlers[kind], registration{id: id, h: h})

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		regs := d.handlers[kind]
		for i, r := range regs {
			if r.id == id {
				d.handlers[kind] = append(regs[:i:i], regs[i+1:]...)
				break
			}
		}
	}
}

// Dispatch starts every handler registered for ev.Kind and returns
// immediately. The returned channel is closed once those handlers have
// returned; it is nil when no handler is registered.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) <-chan struct{} {
	d.mu.RLock()
	regs := d.handlers[ev.Kind]
	d.mu.RUnlock()

	if len(regs) == 0 {
		return nil
	}

	var batch sync.WaitGroup
	for _, r := range regs {
		d.wg.Add(1)
		batch.Add(1)
		go func() {
			defer d.wg.Done()
			defer batch.Done()
			err := r.h(ctx, ev)
			if err != nil && !errors.Is(err, ErrSuperseded) {
				d.logger.Debug("event handler failed",
					slog.String("event", string(ev.Kind)),
					slog.String("error", err.Error()))
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		batch.Wait()
		close(done)
	}()
	return done
}

// Wait blocks until every dispatched handler has returned.
func (d *Dispatcher) Wait() { d.wg.Wait() }

// Bind registers the standard handlers that drive s and returns a func that
// removes them all.
func Bind(d *Dispatcher, s *Syncer) func() {
	list := func(ctx context.Context, ev Event) error { return s.ListRecipes(ctx, ev.Query) }
	offs := []func(){
		d.On(EventSearch, list),
		d.On(EventSort, list),
		d.On(EventRefresh, list),
		d.On(EventSubmitRecipe, func(ctx context.Context, ev Event) error {
			return s.SubmitRecipe(ctx, ev.RecipeID, ev.Draft)
		}),
		d.On(EventEditRecipe, func(ctx context.Context, ev Event) error {
			return s.EditRecipe(ctx, ev.RecipeID)
		}),
		d.On(EventDeleteRecipe, func(ctx context.Context, ev Event) error {
			return s.DeleteRecipe(ctx, ev.RecipeID)
		}),
		d.On(EventLoadComments, func(ctx context.Context, ev Event) error {
			return s.ListComments(ctx, ev.RecipeID)
		}),
		d.On(EventAddComment, func(ctx context.Context, ev Event) error {
			return s.AddComment(ctx, ev.RecipeID, ev.Text)
		}),
		d.On(EventEditComment, func(ctx context.Context, ev Event) error {
			return s.EditComment(ctx, ev.RecipeID, ev.CommentID, ev.Text)
		}),
		d.On(EventDeleteComment, func(ctx context.Context, ev Event) error {
			return s.DeleteComment(ctx, ev.RecipeID, ev.CommentID)
		}),
	}
	return func() {
		for _, off := range offs {
			off()
		}
	}
}
