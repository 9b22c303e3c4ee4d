package mcpserver

import (
	"context"
	"sync"

	"github.com/starford/mise/internal/clientsync"
	"github.com/starford/mise/internal/models"
)

// callView records what one tool call rendered.
type callView struct {
	mu       sync.Mutex
	recipes  []models.Recipe
	listed   bool
	comments map[models.ID][]models.Comment
	form     *clientsync.RecipeForm
	notices  []clientsync.Notice
}

func newCallView() *callView {
	return &callView{comments: make(map[models.ID][]models.Comment)}
}

func (v *callView) ShowRecipes(recipes []models.Recipe) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.recipes, v.listed = recipes, true
}

func (v *callView) ShowComments(id models.ID, comments []models.Comment) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.comments[id] = comments
}

func (v *callView) FillForm(form clientsync.RecipeForm) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.form = &form
	return nil
}

// PromptComment is never reached: edit_comment takes the text as an argument.
func (v *callView) PromptComment(context.Context, string) (string, error) {
	return "", nil
}

func (v *callView) Notify(n clientsync.Notice) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.notices = append(v.notices, n)
}

// toolResult is the JSON body of a successful tool call.
type toolResult struct {
	Notices  []string                       `json:"notices,omitempty"`
	Recipes  *[]models.Recipe               `json:"recipes,omitempty"`
	Recipe   *clientsync.RecipeForm         `json:"recipe,omitempty"`
	Comments map[models.ID][]models.Comment `json:"comments,omitempty"`
}

func (v *callView) result() toolResult {
	v.mu.Lock()
	defer v.mu.Unlock()

	res := toolResult{Recipe: v.form}
	for _, n := range v.notices {
		res.Notices = append(res.Notices, n.Message)
	}
	if v.listed {
		recipes := make([]models.Recipe, len(v.recipes))
		for i, r := range v.recipes {
			r.Comments = v.comments[r.ID]
			recipes[i] = r
		}
		res.Recipes = &recipes
	} else if len(v.comments) > 0 {
		res.Comments = v.comments
	}
	return res
}

func (v *callView) errorNotices() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []string
	for _, n := range v.notices {
		if n.Kind == clientsync.NoticeError {
			out = append(out, n.Message)
		}
	}
	return out
}
