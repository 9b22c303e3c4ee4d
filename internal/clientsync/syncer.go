// Package clientsync turns user events into recipe backend calls and
// re-renders the affected views from the server's answers.
package clientsync

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/starford/mise/internal/apperr"
	"github.com/starford/mise/internal/dateparse"
	"github.com/starford/mise/internal/models"
)

// ErrSuperseded is returned when a newer request for the same view made the
// response irrelevant. No notice is shown for it.
var ErrSuperseded = errors.New("superseded by a newer request")

// DefaultNoticeTTL is how long notices stay visible.
const DefaultNoticeTTL = 3 * time.Second

const defaultCommentConcurrency = 4

// Client is the subset of the recipe REST client used by a Syncer.
type Client interface {
	ListRecipes(ctx context.Context, search, sortBy string) ([]models.Recipe, error)
	GetRecipe(ctx context.Context, id models.ID) (*models.Recipe, error)
	CreateRecipe(ctx context.Context, in models.RecipeInput) (*models.Recipe, error)
	UpdateRecipe(ctx context.Context, id models.ID, in models.RecipeInput) (*models.Recipe, error)
	DeleteRecipe(ctx context.Context, id models.ID) error
	ListComments(ctx context.Context, recipeID models.ID) ([]models.Comment, error)
	CreateComment(ctx context.Context, recipeID models.ID, in models.CommentInput) (*models.Comment, error)
	UpdateComment(ctx context.Context, recipeID, commentID models.ID, in models.CommentInput) (*models.Comment, error)
	DeleteComment(ctx context.Context, recipeID, commentID models.ID) error
}

// ListQuery filters and orders the recipe listing.
type ListQuery struct {
	Search string
	SortBy string
}

// Syncer binds a Client to a View.
type Syncer struct {
	client             Client
	view               View
	seq                *Sequencer
	publisher          Publisher
	logger             *slog.Logger
	now                func() time.Time
	noticeTTL          time.Duration
	commentConcurrency int
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithSequencer shares a Sequencer between syncers, e.g. per browser session.
func WithSequencer(seq *Sequencer) Option {
	return func(s *Syncer) { s.seq = seq }
}

// WithPublisher announces successful mutations.
func WithPublisher(p Publisher) Option {
	return func(s *Syncer) { s.publisher = p }
}

// WithNoticeTTL sets the notice lifetime.
func WithNoticeTTL(d time.Duration) Option {
	return func(s *Syncer) { s.noticeTTL = d }
}

// WithClock sets the time source used for comment dates and date parsing.
func WithClock(now func() time.Time) Option {
	return func(s *Syncer) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Syncer) { s.logger = l }
}

// WithCommentConcurrency bounds the parallel comment fetches after a listing.
func WithCommentConcurrency(n int) Option {
	return func(s *Syncer) { s.commentConcurrency = n }
}

// New creates a Syncer rendering into view.
func New(client Client, view View, opts ...Option) *Syncer {
	s := &Syncer{
		client:             client,
		view:               view,
		logger:             slog.Default(),
		now:                time.Now,
		noticeTTL:          DefaultNoticeTTL,
		commentConcurrency: defaultCommentConcurrency,
	}
	for _, o := range opts {
		o(s)
	}
	if s.seq == nil {
		s.seq = NewSequencer(OrderingCancel)
	}
	if s.commentConcurrency < 1 {
		s.commentConcurrency = 1
	}
	return s
}

// ListRecipes fetches the filtered listing, renders it and then loads every
// recipe's comments.
func (s *Syncer) ListRecipes(ctx context.Context, q ListQuery) error {
	ctx, t := s.seq.Begin(ctx, KeyRecipes)
	defer s.seq.Done(t)

	recipes, err := s.client.ListRecipes(ctx, q.Search, q.SortBy)
	if err != nil {
		return s.failFetch(t, "fetching recipes", err)
	}
	if !s.seq.Apply(t, func() { s.view.ShowRecipes(recipes) }) {
		return ErrSuperseded
	}
	return s.loadComments(ctx, t, recipes)
}

// loadComments fetches the comments of every listed recipe. A listing whose
// comment fetches were overtaken is incomplete and reported as ErrSuperseded;
// plain fetch failures were already shown as notices and do not count.
func (s *Syncer) loadComments(ctx context.Context, t *Ticket, recipes []models.Recipe) error {
	var incomplete atomic.Bool
	var g errgroup.Group
	g.SetLimit(s.commentConcurrency)
	for _, r := range recipes {
		if r.ID.Empty() {
			continue
		}
		g.Go(func() error {
			err := s.ListComments(ctx, r.ID)
			if errors.Is(err, ErrSuperseded) || errors.Is(err, context.Canceled) {
				incomplete.Store(true)
			}
			return nil
		})
	}
	_ = g.Wait()

	if !incomplete.Load() {
		return nil
	}
	if err := ctx.Err(); err != nil && !t.Superseded() {
		return err
	}
	return ErrSuperseded
}

// ListComments fetches and renders one recipe's comments.
func (s *Syncer) ListComments(ctx context.Context, recipeID models.ID) error {
	ctx, t := s.seq.Begin(ctx, CommentsKey(recipeID))
	defer s.seq.Done(t)

	comments, err := s.client.ListComments(ctx, recipeID)
	if err != nil {
		return s.failFetch(t, "fetching comments", err)
	}
	if !s.seq.Apply(t, func() { s.view.ShowComments(recipeID, comments) }) {
		return ErrSuperseded
	}
	return nil
}

// SubmitRecipe creates the recipe when id is empty and replaces it otherwise.
func (s *Syncer) SubmitRecipe(ctx context.Context, id models.ID, draft RecipeDraft) error {
	if id.Empty() {
		return s.CreateRecipe(ctx, draft)
	}
	return s.UpdateRecipe(ctx, id, draft)
}

// CreateRecipe validates draft, creates the recipe and re-fetches the listing.
// ErrSuperseded means the recipe was created but a newer listing overtook the
// re-fetch.
func (s *Syncer) CreateRecipe(ctx context.Context, draft RecipeDraft) error {
	in, err := draft.Input(s.now())
	if err != nil {
		return s.fail("adding recipe", err)
	}
	created, err := s.client.CreateRecipe(ctx, in)
	if err != nil {
		return s.fail("adding recipe", err)
	}
	s.succeed("Recipe added successfully!")
	s.publish(ChangeRecipeCreated, created.ID)
	return s.refresh(ctx)
}

// UpdateRecipe replaces the recipe with draft and re-fetches the listing.
func (s *Syncer) UpdateRecipe(ctx context.Context, id models.ID, draft RecipeDraft) error {
	in, err := draft.Input(s.now())
	if err != nil {
		return s.fail("updating recipe", err)
	}
	if _, err := s.client.UpdateRecipe(ctx, id, in); err != nil {
		return s.fail("updating recipe", err)
	}
	s.succeed("Recipe updated successfully!")
	s.publish(ChangeRecipeUpdated, id)
	return s.refresh(ctx)
}

// DeleteRecipe deletes the recipe and re-fetches the listing.
func (s *Syncer) DeleteRecipe(ctx context.Context, id models.ID) error {
	if err := s.client.DeleteRecipe(ctx, id); err != nil {
		return s.fail("deleting recipe", err)
	}
	s.succeed("Recipe deleted successfully!")
	s.publish(ChangeRecipeDeleted, id)
	return s.refresh(ctx)
}

// EditRecipe loads one recipe into the view's form and shows its comments.
func (s *Syncer) EditRecipe(ctx context.Context, id models.ID) error {
	formCtx, t := s.seq.Begin(ctx, KeyForm)
	defer s.seq.Done(t)

	r, err := s.client.GetRecipe(formCtx, id)
	if err != nil {
		return s.failFetch(t, "fetching recipe for edit", err)
	}

	var fillErr error
	applied := s.seq.Apply(t, func() {
		fillErr = s.view.FillForm(RecipeForm{
			ID:            r.ID,
			Name:          r.Name,
			Ingredients:   models.JoinIngredients(r.Ingredients),
			ScheduledDate: r.ScheduledDate,
		})
	})
	if !applied {
		return ErrSuperseded
	}
	if fillErr != nil {
		if errors.Is(fillErr, apperr.ErrFormUnavailable) {
			s.logger.Error("recipe form fields are missing", slog.String("recipe_id", id.String()))
		}
		return fillErr
	}
	return s.ListComments(formCtx, id)
}

// CalendarEvents fetches every recipe and hands the projected events to
// onSuccess, or the error to onFailure. The view is not touched.
func (s *Syncer) CalendarEvents(ctx context.Context, onSuccess func([]models.CalendarEvent), onFailure func(error)) {
	recipes, err := s.client.ListRecipes(ctx, "", "")
	if err != nil {
		s.logger.Warn("calendar fetch failed", slog.String("error", err.Error()))
		onFailure(err)
		return
	}
	onSuccess(models.CalendarEvents(recipes))
}

// AddComment attaches a comment dated today and re-fetches that recipe's comments.
func (s *Syncer) AddComment(ctx context.Context, recipeID models.ID, text string) error {
	if err := validateCommentText(text); err != nil {
		return s.fail("adding comment", err)
	}
	in := models.CommentInput{Comment: text, Date: dateparse.Today(s.now())}
	if _, err := s.client.CreateComment(ctx, recipeID, in); err != nil {
		return s.fail("adding comment", err)
	}
	s.succeed("Comment added successfully!")
	s.publish(ChangeCommentCreated, recipeID)
	return s.ListComments(ctx, recipeID)
}

// EditComment asks the view for replacement text and sends it. An empty
// answer cancels the edit without a request.
func (s *Syncer) EditComment(ctx context.Context, recipeID, commentID models.ID, current string) error {
	text, err := s.view.PromptComment(ctx, current)
	if err != nil {
		return err
	}
	if text == "" {
		return nil
	}
	return s.ReplaceComment(ctx, recipeID, commentID, text)
}

// ReplaceComment overwrites a comment's text, redating it to today.
func (s *Syncer) ReplaceComment(ctx context.Context, recipeID, commentID models.ID, text string) error {
	if err := validateCommentText(text); err != nil {
		return s.fail("updating comment", err)
	}
	in := models.CommentInput{Comment: text, Date: dateparse.Today(s.now())}
	if _, err := s.client.UpdateComment(ctx, recipeID, commentID, in); err != nil {
		return s.fail("updating comment", err)
	}
	s.succeed("Comment updated successfully!")
	s.publish(ChangeCommentUpdated, recipeID)
	return s.ListComments(ctx, recipeID)
}

// DeleteComment removes a comment and re-fetches that recipe's comments.
func (s *Syncer) DeleteComment(ctx context.Context, recipeID, commentID models.ID) error {
	if err := s.client.DeleteComment(ctx, recipeID, commentID); err != nil {
		return s.fail("deleting comment", err)
	}
	s.succeed("Comment deleted successfully!")
	s.publish(ChangeCommentDeleted, recipeID)
	return s.ListComments(ctx, recipeID)
}

// refresh re-lists with the default query after a recipe mutation. It
// returns ErrSuperseded when a newer listing overtook it; the mutation
// itself has succeeded by then.
func (s *Syncer) refresh(ctx context.Context) error {
	return s.ListRecipes(ctx, ListQuery{})
}

func (s *Syncer) failFetch(t *Ticket, action string, err error) error {
	if s.seq.Stale(t) {
		return ErrSuperseded
	}
	return s.fail(action, err)
}

func (s *Syncer) fail(action string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	attrs := []any{slog.String("action", action), slog.String("error", err.Error())}
	var reqErr *apperr.RequestError
	if errors.As(err, &reqErr) {
		attrs = append(attrs, slog.Int("status", reqErr.StatusCode))
	}
	s.logger.Warn("request failed", attrs...)
	s.notify(NoticeError, "Error "+action+": "+describe(err))
	return err
}

func describe(err error) string {
	if errors.Is(err, apperr.ErrInvalidInput) {
		return strings.TrimPrefix(err.Error(), apperr.ErrInvalidInput.Error()+": ")
	}
	return apperr.Describe(err)
}

func (s *Syncer) succeed(msg string) {
	s.notify(NoticeSuccess, msg)
}

func (s *Syncer) notify(kind NoticeKind, msg string) {
	s.view.Notify(Notice{
		ID:        uuid.NewString(),
		Kind:      kind,
		Message:   msg,
		TTL:       s.noticeTTL,
		CreatedAt: s.now(),
	})
}

func (s *Syncer) publish(kind string, id models.ID) {
	if s.publisher != nil {
		s.publisher.PublishChange(kind, id)
	}
}
