// Package web serves the browser front end: a server-rendered page plus
// JSON fragment endpoints driven by a small embedded script.
package web

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"

	"github.com/starford/mise/internal/clientsync"
	"github.com/starford/mise/internal/sse"
)

const maxFormBytes = 1 << 20

// Server renders recipe pages and fragments for browsers.
type Server struct {
	client    clientsync.Client
	templates *Templates
	broker    *sse.Broker
	sessions  *sessionStore
	logger    *slog.Logger

	noticeTTL          time.Duration
	ordering           clientsync.Ordering
	commentConcurrency int
	corsOrigins        []string
	now                func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithBroker mounts the event stream and announces mutations through it.
func WithBroker(b *sse.Broker) Option {
	return func(s *Server) { s.broker = b }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithNoticeTTL sets how long notices stay on screen.
func WithNoticeTTL(d time.Duration) Option {
	return func(s *Server) { s.noticeTTL = d }
}

// WithOrdering sets the per-session response ordering policy.
func WithOrdering(o clientsync.Ordering) Option {
	return func(s *Server) { s.ordering = o }
}

// WithCommentConcurrency bounds parallel comment fetches per listing.
func WithCommentConcurrency(n int) Option {
	return func(s *Server) { s.commentConcurrency = n }
}

// WithCORSOrigins sets the origins allowed to read the calendar feed.
func WithCORSOrigins(origins ...string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// NewServer creates a Server backed by client.
func NewServer(client clientsync.Client, templates *Templates, opts ...Option) *Server {
	s := &Server{
		client:             client,
		templates:          templates,
		logger:             slog.Default(),
		noticeTTL:          clientsync.DefaultNoticeTTL,
		ordering:           clientsync.OrderingCancel,
		commentConcurrency: 4,
		corsOrigins:        []string{"*"},
		now:                time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	s.sessions = newSessionStore(s.ordering, s.now)
	return s
}

// syncer binds a Syncer to v. Requests of the same browser session share
// that session's Sequencer.
func (s *Server) syncer(v clientsync.View, sess *session) *clientsync.Syncer {
	opts := []clientsync.Option{
		clientsync.WithNoticeTTL(s.noticeTTL),
		clientsync.WithLogger(s.logger),
		clientsync.WithClock(s.now),
		clientsync.WithCommentConcurrency(s.commentConcurrency),
	}
	if sess != nil {
		opts = append(opts, clientsync.WithSequencer(sess.seq))
	}
	if s.broker != nil {
		opts = append(opts, clientsync.WithPublisher(s.broker))
	}
	return clientsync.New(s.client, v, opts...)
}

// Routes returns the front-end routes.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()

	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServerFS(staticFS())))

	calendarCORS := cors.New(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	})
	r.Route("/api", func(r chi.Router) {
		r.Use(calendarCORS.Handler)
		r.Get("/calendar", s.calendar)
	})

	if s.broker != nil {
		r.Get("/events", s.broker.ServeHTTP)
	}

	r.Group(func(r chi.Router) {
		r.Use(s.sessions.middleware)

		r.Get("/", s.index)
		r.Get("/fragments/recipes", s.recipesFragment)
		r.Get("/fragments/recipes/{id}/form", s.formFragment)
		r.Get("/fragments/recipes/{id}/comments", s.commentsFragment)

		r.Post("/recipes", s.submitRecipe)
		r.Post("/recipes/{id}/delete", s.deleteRecipe)
		r.Post("/recipes/{id}/comments", s.addComment)
		r.Post("/recipes/{id}/comments/{commentID}", s.editComment)
		r.Post("/recipes/{id}/comments/{commentID}/delete", s.deleteComment)
	})

	return r
}
