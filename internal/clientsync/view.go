package clientsync

import (
	"context"
	"time"

	"github.com/starford/mise/internal/models"
)

// NoticeKind classifies a transient message.
type NoticeKind string

const (
	NoticeSuccess NoticeKind = "success"
	NoticeError   NoticeKind = "error"
)

// Notice is a transient, auto-dismissing message for the user.
type Notice struct {
	ID        string        `json:"id"`
	Kind      NoticeKind    `json:"kind"`
	Message   string        `json:"message"`
	TTL       time.Duration `json:"-"`
	CreatedAt time.Time     `json:"created_at"`
}

// TTLMillis is the notice lifetime in milliseconds, for front-end timers.
func (n Notice) TTLMillis() int64 { return n.TTL.Milliseconds() }

// RecipeForm holds the values of the recipe edit form.
type RecipeForm struct {
	ID            models.ID `json:"id"`
	Name          string    `json:"name"`
	Ingredients   string    `json:"ingredients"`
	ScheduledDate string    `json:"scheduled_date"`
}

// View is the rendering target of a Syncer. Implementations must be safe for
// concurrent use: comment lists for several recipes are rendered in parallel.
type View interface {
	// ShowRecipes replaces the displayed recipe cards.
	ShowRecipes(recipes []models.Recipe)
	// ShowComments replaces the comment list of one recipe.
	ShowComments(recipeID models.ID, comments []models.Comment)
	// FillForm copies a recipe into the edit form and reveals its comment
	// section. It returns apperr.ErrFormUnavailable when the view has no form.
	FillForm(form RecipeForm) error
	// PromptComment asks for replacement comment text. An empty result
	// means the user cancelled.
	PromptComment(ctx context.Context, current string) (string, error)
	// Notify displays a transient message.
	Notify(n Notice)
}

// Publisher is told about successful mutations so other open views can
// re-fetch.
type Publisher interface {
	PublishChange(kind string, recipeID models.ID)
}

// Change kinds sent to a Publisher.
const (
	ChangeRecipeCreated  = "recipe.created"
	ChangeRecipeUpdated  = "recipe.updated"
	ChangeRecipeDeleted  = "recipe.deleted"
	ChangeCommentCreated = "comment.created"
	ChangeCommentUpdated = "comment.updated"
	ChangeCommentDeleted = "comment.deleted"
)
