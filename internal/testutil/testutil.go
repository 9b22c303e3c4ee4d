// Package testutil provides an in-memory recipe backend for tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/starford/mise/internal/models"
)

// Request is one request received by the Backend.
type Request struct {
	Method   string
	Path     string
	RawQuery string
	Body     string
	Header   http.Header
}

// Target returns "METHOD /path?query".
func (r Request) Target() string {
	if r.RawQuery == "" {
		return r.Method + " " + r.Path
	}
	return r.Method + " " + r.Path + "?" + r.RawQuery
}

type failure struct {
	method string
	prefix string
	status int
}

type storedRecipe struct {
	ID            int             `json:"id"`
	Name          string          `json:"name"`
	Ingredients   []string        `json:"ingredients"`
	ScheduledDate string          `json:"scheduled_date"`
	Comments      []storedComment `json:"comments"`
}

type storedComment struct {
	ID      string `json:"id"`
	Comment string `json:"comment"`
	Date    string `json:"date"`
}

// Backend is an httptest server implementing the recipe REST API in memory.
// Recipes get integer ids and comments get "CMT<n>" ids.
type Backend struct {
	Server *httptest.Server

	mu       sync.Mutex
	recipes  []storedRecipe
	requests []Request
	failures []failure
	hold     map[string]chan struct{}
	token    string
}

// NewBackend starts a Backend that is closed when the test ends.
func NewBackend(t testing.TB) *Backend {
	t.Helper()
	b := &Backend{hold: map[string]chan struct{}{}}

	r := chi.NewRouter()
	r.Use(b.record)
	r.Use(b.auth)
	r.Route("/recipes", func(r chi.Router) {
		r.Get("/", b.listRecipes)
		r.Post("/", b.createRecipe)
		r.Get("/{id}", b.getRecipe)
		r.Put("/{id}", b.updateRecipe)
		r.Delete("/{id}", b.deleteRecipe)
		r.Get("/{id}/comments", b.listComments)
		r.Post("/{id}/comments", b.createComment)
		r.Put("/{id}/comments/{cid}", b.updateComment)
		r.Delete("/{id}/comments/{cid}", b.deleteComment)
	})

	b.Server = httptest.NewServer(r)
	t.Cleanup(b.Server.Close)
	return b
}

// URL returns the recipe collection endpoint.
func (b *Backend) URL() string { return b.Server.URL + "/recipes" }

// Requests returns a copy of the request log.
func (b *Backend) Requests() []Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Request(nil), b.requests...)
}

// Targets returns "METHOD /path?query" for every logged request.
func (b *Backend) Targets() []string {
	reqs := b.Requests()
	out := make([]string, len(reqs))
	for i, r := range reqs {
		out[i] = r.Target()
	}
	return out
}

// ResetRequests clears the request log.
func (b *Backend) ResetRequests() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = nil
}

// Fail makes every request whose method matches and whose path starts with
// prefix answer status until ClearFailures is called. An empty method
// matches any method.
func (b *Backend) Fail(method, prefix string, status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = append(b.failures, failure{method: method, prefix: prefix, status: status})
}

// ClearFailures removes injected failures.
func (b *Backend) ClearFailures() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = nil
}

// Hold blocks requests whose "METHOD /path?query" target equals target until
// the returned release func is called.
func (b *Backend) Hold(target string) (release func()) {
	ch := make(chan struct{})
	b.mu.Lock()
	b.hold[target] = ch
	b.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.hold, target)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Seed stores a recipe directly and returns its id.
func (b *Backend) Seed(name string, ingredients []string, date string) models.ID {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextRecipeID()
	b.recipes = append(b.recipes, storedRecipe{
		ID: id, Name: name, Ingredients: ingredients, ScheduledDate: date, Comments: []storedComment{},
	})
	return models.ID(strconv.Itoa(id))
}

// SeedComment stores a comment directly and returns its id.
func (b *Backend) SeedComment(recipeID models.ID, text, date string) models.ID {
	b.mu.Lock()
	defer b.mu.Unlock()
	r := b.find(recipeID.String())
	if r == nil {
		panic(fmt.Sprintf("testutil: no recipe %s", recipeID))
	}
	id := nextCommentID(r.Comments)
	r.Comments = append(r.Comments, storedComment{ID: id, Comment: text, Date: date})
	return models.ID(id)
}

// RecipeIDs returns the stored recipe ids in insertion order.
func (b *Backend) RecipeIDs() []models.ID {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.ID, len(b.recipes))
	for i, r := range b.recipes {
		out[i] = models.ID(strconv.Itoa(r.ID))
	}
	return out
}

// RequireToken makes the backend answer 401 unless requests carry
// "Authorization: Bearer <token>". An empty token disables the check.
func (b *Backend) RequireToken(token string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.token = token
}

func (b *Backend) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		token := b.token
		b.mu.Unlock()

		if token != "" {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != token {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "unauthorized"})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))
		req := Request{
			Method:   r.Method,
			Path:     r.URL.Path,
			RawQuery: r.URL.RawQuery,
			Body:     string(body),
			Header:   r.Header.Clone(),
		}

		b.mu.Lock()
		b.requests = append(b.requests, req)
		hold := b.hold[req.Target()]
		b.mu.Unlock()

		if hold != nil {
			select {
			case <-hold:
			case <-r.Context().Done():
				return
			}
		}
		// failures injected while a request was held still apply to it
		if status := b.failureFor(r); status != 0 {
			writeJSON(w, status, map[string]string{"detail": http.StatusText(status)})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) failureFor(r *http.Request) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, f := range b.failures {
		if (f.method == "" || f.method == r.Method) && strings.HasPrefix(r.URL.Path, f.prefix) {
			return f.status
		}
	}
	return 0
}

func (b *Backend) listRecipes(w http.ResponseWriter, r *http.Request) {
	search := strings.ToLower(r.URL.Query().Get("search"))
	sortBy := r.URL.Query().Get("sort_by")

	b.mu.Lock()
	out := make([]storedRecipe, 0, len(b.recipes))
	for _, rec := range b.recipes {
		if search == "" || strings.Contains(strings.ToLower(rec.Name), search) {
			out = append(out, rec)
		}
	}
	b.mu.Unlock()

	switch sortBy {
	case models.SortByName:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	case models.SortByDateAdded:
		sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	case models.SortByScheduledDate:
		sort.SliceStable(out, func(i, j int) bool { return out[i].ScheduledDate < out[j].ScheduledDate })
	}
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) getRecipe(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec := b.find(chi.URLParam(r, "id"))
	if rec == nil {
		notFound(w, "Recipe not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (b *Backend) createRecipe(w http.ResponseWriter, r *http.Request) {
	var in models.RecipeInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Name == "" || in.Ingredients == nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "invalid recipe"})
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	rec := storedRecipe{
		ID:            b.nextRecipeID(),
		Name:          in.Name,
		Ingredients:   in.Ingredients,
		ScheduledDate: in.ScheduledDate,
		Comments:      []storedComment{},
	}
	b.recipes = append(b.recipes, rec)
	writeJSON(w, http.StatusOK, rec)
}

func (b *Backend) updateRecipe(w http.ResponseWriter, r *http.Request) {
	var in models.RecipeInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Name == "" || in.Ingredients == nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "invalid recipe"})
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	rec := b.find(chi.URLParam(r, "id"))
	if rec == nil {
		notFound(w, "Recipe not found")
		return
	}
	rec.Name = in.Name
	rec.Ingredients = in.Ingredients
	rec.ScheduledDate = in.ScheduledDate
	rec.Comments = []storedComment{}
	writeJSON(w, http.StatusOK, rec)
}

func (b *Backend) deleteRecipe(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := chi.URLParam(r, "id")
	for i, rec := range b.recipes {
		if strconv.Itoa(rec.ID) == id {
			b.recipes = append(b.recipes[:i], b.recipes[i+1:]...)
			writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Recipe deleted successfully"})
			return
		}
	}
	notFound(w, "Recipe not found")
}

func (b *Backend) listComments(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec := b.find(chi.URLParam(r, "id"))
	if rec == nil {
		notFound(w, "Recipe not found")
		return
	}
	writeJSON(w, http.StatusOK, rec.Comments)
}

func (b *Backend) createComment(w http.ResponseWriter, r *http.Request) {
	var in models.CommentInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "invalid comment"})
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	rec := b.find(chi.URLParam(r, "id"))
	if rec == nil {
		notFound(w, "Recipe not found")
		return
	}
	c := storedComment{ID: nextCommentID(rec.Comments), Comment: in.Comment, Date: in.Date}
	rec.Comments = append(rec.Comments, c)
	writeJSON(w, http.StatusOK, c)
}

func (b *Backend) updateComment(w http.ResponseWriter, r *http.Request) {
	var in models.CommentInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "invalid comment"})
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	rec := b.find(chi.URLParam(r, "id"))
	if rec == nil {
		notFound(w, "Recipe not found")
		return
	}
	cid := chi.URLParam(r, "cid")
	for i := range rec.Comments {
		if rec.Comments[i].ID == cid {
			rec.Comments[i] = storedComment{ID: cid, Comment: in.Comment, Date: in.Date}
			writeJSON(w, http.StatusOK, rec.Comments[i])
			return
		}
	}
	notFound(w, "Comment not found")
}

func (b *Backend) deleteComment(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec := b.find(chi.URLParam(r, "id"))
	if rec == nil {
		notFound(w, "Recipe not found")
		return
	}
	cid := chi.URLParam(r, "cid")
	kept := rec.Comments[:0]
	for _, c := range rec.Comments {
		if c.ID != cid {
			kept = append(kept, c)
		}
	}
	rec.Comments = kept
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Comment deleted successfully"})
}

// find must be called with b.mu held.
func (b *Backend) find(id string) *storedRecipe {
	for i := range b.recipes {
		if strconv.Itoa(b.recipes[i].ID) == id {
			return &b.recipes[i]
		}
	}
	return nil
}

// nextRecipeID must be called with b.mu held.
func (b *Backend) nextRecipeID() int {
	highest := 0
	for _, r := range b.recipes {
		if r.ID > highest {
			highest = r.ID
		}
	}
	return highest + 1
}

func nextCommentID(comments []storedComment) string {
	highest := 0
	for _, c := range comments {
		if n, err := strconv.Atoi(strings.TrimPrefix(c.ID, "CMT")); err == nil && n > highest {
			highest = n
		}
	}
	return fmt.Sprintf("CMT%d", highest+1)
}

func notFound(w http.ResponseWriter, detail string) {
	writeJSON(w, http.StatusNotFound, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
