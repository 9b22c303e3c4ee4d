package web

import (
	"github.com/starford/mise/internal/clientsync"
	"github.com/starford/mise/internal/models"
)

// Envelope is the JSON answer of fragment and form endpoints. Target is a
// CSS selector whose elements get HTML as their content. Both are empty when
// nothing was re-rendered.
type Envelope struct {
	Target  string                 `json:"target,omitempty"`
	HTML    string                 `json:"html,omitempty"`
	Notices []NoticeDTO            `json:"notices"`
	Form    *clientsync.RecipeForm `json:"form,omitempty"`
}

// NoticeDTO is a notice as sent to the browser.
type NoticeDTO struct {
	ID      string `json:"id"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
	TTLMs   int64  `json:"ttl_ms"`
}

func noticeDTOs(notices []clientsync.Notice) []NoticeDTO {
	out := make([]NoticeDTO, 0, len(notices))
	for _, n := range notices {
		out = append(out, NoticeDTO{
			ID:      n.ID,
			Kind:    string(n.Kind),
			Message: n.Message,
			TTLMs:   n.TTLMillis(),
		})
	}
	return out
}

// cardData is one recipe card with its comments.
type cardData struct {
	Recipe   models.Recipe
	Comments []models.Comment
}

// CommentList returns the card's comments for the comments template.
func (c cardData) CommentList() commentsData {
	return commentsData{RecipeID: c.Recipe.ID, Comments: c.Comments}
}

type commentsData struct {
	RecipeID models.ID
	Comments []models.Comment
}

type sortOption struct {
	Value    string
	Label    string
	Selected bool
}

type pageData struct {
	Search      string
	SortOptions []sortOption
	Cards       []cardData
	Listed      bool
	Form        clientsync.RecipeForm
	Editing     bool
	EditList    commentsData
	Notices     []NoticeDTO
	NoticeTTLMs int64
}

func sortOptions(selected string) []sortOption {
	opts := []sortOption{{Value: "", Label: "Sort by", Selected: selected == ""}}
	labels := map[string]string{
		models.SortByName:          "Name",
		models.SortByDateAdded:     "Date added",
		models.SortByScheduledDate: "Scheduled date",
	}
	for _, key := range models.SortKeys {
		opts = append(opts, sortOption{Value: key, Label: labels[key], Selected: key == selected})
	}
	return opts
}
