// Package models defines the domain types for mise.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Sort keys understood by the recipe backend.
const (
	SortByName          = "name"
	SortByDateAdded     = "date_added"
	SortByScheduledDate = "scheduled_date"
)

// SortKeys lists the known sort keys in display order.
var SortKeys = []string{SortByName, SortByDateAdded, SortByScheduledDate}

// ID is a backend-assigned identifier. The backend sends recipe ids as
// numbers and comment ids as strings ("CMT3"); both decode into an ID.
type ID string

// Empty reports whether the id is unset.
func (id ID) Empty() bool { return id == "" }

func (id ID) String() string { return string(id) }

// UnmarshalJSON accepts a JSON string, number, or null.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("models: id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// Recipe is a named dish with ingredients and a scheduled date.
type Recipe struct {
	ID            ID        `json:"id"`
	Name          string    `json:"name"`
	Ingredients   []string  `json:"ingredients"`
	ScheduledDate string    `json:"scheduled_date"`
	Comments      []Comment `json:"comments,omitempty"`
}

// UnmarshalJSON fills nil slices and tolerates a null scheduled date.
func (r *Recipe) UnmarshalJSON(data []byte) error {
	type alias Recipe
	var raw struct {
		alias
		ScheduledDate *string `json:"scheduled_date"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Recipe(raw.alias)
	r.ScheduledDate = ""
	if raw.ScheduledDate != nil {
		r.ScheduledDate = *raw.ScheduledDate
	}
	if r.Ingredients == nil {
		r.Ingredients = []string{}
	}
	return nil
}

// Comment is a dated text annotation attached to one recipe.
type Comment struct {
	ID       ID     `json:"id"`
	RecipeID ID     `json:"-"`
	Comment  string `json:"comment"`
	Date     string `json:"date"`
}

// RecipeInput is the body of recipe create and replace requests.
type RecipeInput struct {
	Name          string   `json:"name"`
	Ingredients   []string `json:"ingredients"`
	ScheduledDate string   `json:"scheduled_date"`
}

// CommentInput is the body of comment create and replace requests.
type CommentInput struct {
	Comment string `json:"comment"`
	Date    string `json:"date"`
}

// CalendarEvent is one entry of the calendar feed.
type CalendarEvent struct {
	Title string `json:"title"`
	Start string `json:"start"`
}

// CalendarEvents projects recipes into calendar entries.
func CalendarEvents(recipes []Recipe) []CalendarEvent {
	events := make([]CalendarEvent, 0, len(recipes))
	for _, r := range recipes {
		events = append(events, CalendarEvent{Title: r.Name, Start: r.ScheduledDate})
	}
	return events
}

// ParseIngredients splits a comma-separated list and trims each entry.
// Blank entries are dropped.
func ParseIngredients(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// JoinIngredients is the inverse of ParseIngredients for form display.
func JoinIngredients(ingredients []string) string {
	return strings.Join(ingredients, ", ")
}
