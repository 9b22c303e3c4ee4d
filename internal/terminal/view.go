package terminal

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/starford/mise/internal/clientsync"
	"github.com/starford/mise/internal/dateparse"
	"github.com/starford/mise/internal/models"
)

// PromptFunc asks for replacement comment text. An empty answer cancels.
type PromptFunc func(ctx context.Context, current string) (string, error)

// View is a clientsync.View that writes to a terminal. Notices are printed
// as they arrive; listings, comment lists and the edit form are buffered
// until Flush so a listing and its comments come out as one block.
type View struct {
	out    io.Writer
	styles Styles
	prompt PromptFunc

	mu       sync.Mutex
	recipes  []models.Recipe
	listed   bool
	comments map[models.ID][]models.Comment
	changed  []models.ID
	form     *clientsync.RecipeForm
}

// ViewOption configures a View.
type ViewOption func(*View)

// WithPrompt sets how comment edits are asked for. Without one every edit
// is cancelled.
func WithPrompt(p PromptFunc) ViewOption {
	return func(v *View) { v.prompt = p }
}

// WithStyles overrides the styles derived from the output.
func WithStyles(s Styles) ViewOption {
	return func(v *View) { v.styles = s }
}

// NewView creates a View writing to out.
func NewView(out io.Writer, opts ...ViewOption) *View {
	v := &View{
		out:      out,
		styles:   NewStyles(out),
		comments: make(map[models.ID][]models.Comment),
	}
	for _, o := range opts {
		o(v)
	}
	return v
}

func (v *View) ShowRecipes(recipes []models.Recipe) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.recipes = recipes
	v.listed = true
	v.comments = make(map[models.ID][]models.Comment)
	v.changed = v.changed[:0]
}

func (v *View) ShowComments(recipeID models.ID, comments []models.Comment) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.isChanged(recipeID) {
		v.changed = append(v.changed, recipeID)
	}
	v.comments[recipeID] = comments
}

func (v *View) isChanged(id models.ID) bool {
	for _, c := range v.changed {
		if c == id {
			return true
		}
	}
	return false
}

func (v *View) FillForm(form clientsync.RecipeForm) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.form = &form
	return nil
}

func (v *View) PromptComment(ctx context.Context, current string) (string, error) {
	if v.prompt == nil {
		return "", nil
	}
	text, err := v.prompt(ctx, current)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (v *View) Notify(n clientsync.Notice) {
	v.mu.Lock()
	defer v.mu.Unlock()
	line := v.styles.Success.Render(iconSuccess + " " + n.Message)
	if n.Kind == clientsync.NoticeError {
		line = v.styles.Error.Render(iconError + " " + n.Message)
	}
	fmt.Fprintln(v.out, line)
}

// Printf writes a line that is not part of the view state, serialized with
// notices.
func (v *View) Printf(format string, args ...any) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fmt.Fprintf(v.out, format, args...)
}

// Flush writes everything shown since the last Flush.
func (v *View) Flush() {
	v.mu.Lock()
	defer v.mu.Unlock()

	var b strings.Builder
	switch {
	case v.listed:
		if len(v.recipes) == 0 {
			b.WriteString(v.styles.Muted.Render("No recipes found.") + "\n")
		}
		for _, r := range v.recipes {
			b.WriteString(v.card(r) + "\n")
		}
	default:
		for _, id := range v.changed {
			b.WriteString(v.commentBlock(id) + "\n")
		}
	}
	if v.form != nil {
		b.WriteString(v.formBlock(*v.form) + "\n")
	}

	v.listed = false
	v.changed = v.changed[:0]
	v.form = nil
	io.WriteString(v.out, b.String())
}

// Listing returns the recipes of the last listing.
func (v *View) Listing() []models.Recipe {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]models.Recipe(nil), v.recipes...)
}

// Comment looks up a comment shown for recipeID.
func (v *View) Comment(recipeID, commentID models.ID) (models.Comment, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, c := range v.comments[recipeID] {
		if c.ID == commentID {
			return c, true
		}
	}
	return models.Comment{}, false
}

// Calendar prints calendar entries as a table.
func (v *View) Calendar(events []models.CalendarEvent) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(v.styles.Label).
		Headers("DATE", "RECIPE").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return v.styles.Header.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	for _, e := range events {
		t.Row(dateparse.Display(e.Start), e.Title)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	fmt.Fprintln(v.out, t.String())
}

func (v *View) card(r models.Recipe) string {
	lines := []string{
		v.styles.Title.Render(fmt.Sprintf("#%s %s", r.ID, r.Name)),
		v.styles.Label.Render("Ingredients: ") + models.JoinIngredients(r.Ingredients),
		v.styles.Label.Render("Scheduled:   ") + dateparse.Display(r.ScheduledDate),
	}
	if comments, ok := v.comments[r.ID]; ok {
		lines = append(lines, v.commentLines(comments)...)
	}
	return v.styles.Card.Render(strings.Join(lines, "\n"))
}

func (v *View) commentBlock(id models.ID) string {
	title := fmt.Sprintf("Comments for recipe #%s", id)
	for _, r := range v.recipes {
		if r.ID == id {
			title = fmt.Sprintf("Comments for #%s %s", r.ID, r.Name)
			break
		}
	}
	lines := append([]string{v.styles.Title.Render(title)}, v.commentLines(v.comments[id])...)
	return strings.Join(lines, "\n")
}

func (v *View) commentLines(comments []models.Comment) []string {
	if len(comments) == 0 {
		return []string{v.styles.Muted.Render("No comments yet.")}
	}
	lines := make([]string, 0, len(comments))
	for _, c := range comments {
		lines = append(lines, fmt.Sprintf("  %s %s %s",
			v.styles.Label.Render("["+c.ID.String()+"]"),
			c.Comment,
			v.styles.Muted.Render("("+c.Date+")")))
	}
	return lines
}

func (v *View) formBlock(f clientsync.RecipeForm) string {
	return strings.Join([]string{
		v.styles.Title.Render(fmt.Sprintf("Editing #%s", f.ID)),
		v.styles.Label.Render("name:           ") + f.Name,
		v.styles.Label.Render("ingredients:    ") + f.Ingredients,
		v.styles.Label.Render("scheduled_date: ") + f.ScheduledDate,
	}, "\n")
}
