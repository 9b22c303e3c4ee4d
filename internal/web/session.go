package web

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/mise/internal/clientsync"
)

const (
	sessionCookie = "mise_session"
	sessionIdle   = 30 * time.Minute
)

// session is one browser tab group. It owns the Sequencer that orders that
// browser's overlapping fragment requests and the notices waiting for the
// next full page render.
type session struct {
	id  string
	seq *clientsync.Sequencer

	mu       sync.Mutex
	flash    []clientsync.Notice
	lastSeen time.Time
}

func (s *session) pushFlash(notices ...clientsync.Notice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flash = append(s.flash, notices...)
}

func (s *session) takeFlash() []clientsync.Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.flash
	s.flash = nil
	return out
}

type sessionStore struct {
	ordering clientsync.Ordering
	idle     time.Duration
	now      func() time.Time

	mu   sync.Mutex
	byID map[string]*session
}

func newSessionStore(ordering clientsync.Ordering, now func() time.Time) *sessionStore {
	return &sessionStore{
		ordering: ordering,
		idle:     sessionIdle,
		now:      now,
		byID:     make(map[string]*session),
	}
}

// get returns the session named by the request cookie, creating one (and
// setting the cookie) when it is missing or expired.
func (st *sessionStore) get(w http.ResponseWriter, r *http.Request) *session {
	now := st.now()

	st.mu.Lock()
	defer st.mu.Unlock()

	for id, s := range st.byID {
		if now.Sub(s.lastSeen) > st.idle {
			delete(st.byID, id)
		}
	}

	if c, err := r.Cookie(sessionCookie); err == nil {
		if s, ok := st.byID[c.Value]; ok {
			s.lastSeen = now
			return s
		}
	}

	s := &session{
		id:       uuid.NewString(),
		seq:      clientsync.NewSequencer(st.ordering),
		lastSeen: now,
	}
	st.byID[s.id] = s
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    s.id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return s
}

func (st *sessionStore) len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.byID)
}

type sessionKey struct{}

func (st *sessionStore) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := st.get(w, r)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, s)))
	})
}

func sessionFrom(ctx context.Context) *session {
	s, _ := ctx.Value(sessionKey{}).(*session)
	return s
}
