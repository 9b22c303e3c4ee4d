package web

import (
	"context"
	"sync"

	"github.com/starford/mise/internal/apperr"
	"github.com/starford/mise/internal/clientsync"
	"github.com/starford/mise/internal/models"
)

// pageView collects what one request's sync operations rendered, so the
// handler can turn it into a page or a fragment envelope.
type pageView struct {
	hasForm bool
	// answer is the comment text already collected by the browser dialog.
	answer string

	mu       sync.Mutex
	listed   bool
	recipes  []models.Recipe
	comments map[models.ID][]models.Comment
	form     *clientsync.RecipeForm
	notices  []clientsync.Notice
}

var _ clientsync.View = (*pageView)(nil)

func newPageView(hasForm bool) *pageView {
	return &pageView{hasForm: hasForm, comments: make(map[models.ID][]models.Comment)}
}

func (v *pageView) ShowRecipes(recipes []models.Recipe) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.listed = true
	v.recipes = recipes
}

func (v *pageView) ShowComments(recipeID models.ID, comments []models.Comment) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.comments[recipeID] = comments
}

func (v *pageView) FillForm(form clientsync.RecipeForm) error {
	if !v.hasForm {
		return apperr.ErrFormUnavailable
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.form = &form
	return nil
}

func (v *pageView) PromptComment(context.Context, string) (string, error) {
	return v.answer, nil
}

func (v *pageView) Notify(n clientsync.Notice) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.notices = append(v.notices, n)
}

func (v *pageView) cards() []cardData {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]cardData, 0, len(v.recipes))
	for _, r := range v.recipes {
		out = append(out, cardData{Recipe: r, Comments: v.comments[r.ID]})
	}
	return out
}

func (v *pageView) commentsOf(id models.ID) (commentsData, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	c, ok := v.comments[id]
	return commentsData{RecipeID: id, Comments: c}, ok
}

func (v *pageView) snapshotNotices() []clientsync.Notice {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]clientsync.Notice(nil), v.notices...)
}

func (v *pageView) isListed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.listed
}

func (v *pageView) filledForm() *clientsync.RecipeForm {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.form
}
