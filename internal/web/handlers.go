package web

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/mise/internal/apperr"
	"github.com/starford/mise/internal/clientsync"
	"github.com/starford/mise/internal/models"
)

const displayAreaTarget = "#display-area"

// commentsTarget selects every comment list of one recipe: the list on its
// card and, while it is being edited, the one under the form.
func commentsTarget(id models.ID) string {
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(id.String())
	return `[data-comments-for="` + escaped + `"]`
}

func recipeParam(r *http.Request, name string) models.ID {
	return models.ID(chi.URLParam(r, name))
}

// wantsFragment reports whether the browser script sent the request. Plain
// form posts get a redirect back to the page instead.
func wantsFragment(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, apperr.ErrInvalidInput):
		return http.StatusUnprocessableEntity
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrRequestFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// index handles GET /.
func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	q := clientsync.ListQuery{
		Search: r.URL.Query().Get("search"),
		SortBy: r.URL.Query().Get("sort_by"),
	}

	v := newPageView(true)
	sy := s.syncer(v, sess)
	_ = sy.ListRecipes(r.Context(), q)

	data := pageData{
		Search:      q.Search,
		SortOptions: sortOptions(q.SortBy),
		NoticeTTLMs: s.noticeTTL.Milliseconds(),
	}
	if edit := models.ID(r.URL.Query().Get("edit")); !edit.Empty() {
		if err := sy.EditRecipe(r.Context(), edit); err == nil {
			data.Editing = true
			data.EditList, _ = v.commentsOf(edit)
		}
	}
	if f := v.filledForm(); f != nil {
		data.Form = *f
	}
	data.Cards = v.cards()
	data.Listed = v.isListed()
	data.Notices = noticeDTOs(append(sess.takeFlash(), v.snapshotNotices()...))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.Execute(w, "index", data); err != nil {
		s.logger.Error("render page failed", slog.String("error", err.Error()))
	}
}

// recipesFragment handles GET /fragments/recipes.
func (s *Server) recipesFragment(w http.ResponseWriter, r *http.Request) {
	v := newPageView(false)
	err := s.syncer(v, sessionFrom(r.Context())).ListRecipes(r.Context(), clientsync.ListQuery{
		Search: r.URL.Query().Get("search"),
		SortBy: r.URL.Query().Get("sort_by"),
	})
	s.respond(w, r, v, "", err)
}

// formFragment handles GET /fragments/recipes/{id}/form.
func (s *Server) formFragment(w http.ResponseWriter, r *http.Request) {
	id := recipeParam(r, "id")
	v := newPageView(true)
	err := s.syncer(v, sessionFrom(r.Context())).EditRecipe(r.Context(), id)
	s.respond(w, r, v, id, err)
}

// commentsFragment handles GET /fragments/recipes/{id}/comments.
func (s *Server) commentsFragment(w http.ResponseWriter, r *http.Request) {
	id := recipeParam(r, "id")
	v := newPageView(false)
	err := s.syncer(v, sessionFrom(r.Context())).ListComments(r.Context(), id)
	s.respond(w, r, v, id, err)
}

// submitRecipe handles POST /recipes. An empty recipe-id creates.
func (s *Server) submitRecipe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid form body"))
		return
	}
	id := models.ID(strings.TrimSpace(r.PostForm.Get("recipe-id")))
	draft := clientsync.RecipeDraft{
		Name:          r.PostForm.Get("recipe-name"),
		Ingredients:   r.PostForm.Get("ingredients"),
		ScheduledDate: r.PostForm.Get("recipe-date"),
	}

	v := newPageView(false)
	err := s.syncer(v, sessionFrom(r.Context())).SubmitRecipe(r.Context(), id, draft)
	s.respond(w, r, v, "", err)
}

// deleteRecipe handles POST /recipes/{id}/delete.
func (s *Server) deleteRecipe(w http.ResponseWriter, r *http.Request) {
	v := newPageView(false)
	err := s.syncer(v, sessionFrom(r.Context())).DeleteRecipe(r.Context(), recipeParam(r, "id"))
	s.respond(w, r, v, "", err)
}

// addComment handles POST /recipes/{id}/comments.
func (s *Server) addComment(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid form body"))
		return
	}
	id := recipeParam(r, "id")
	v := newPageView(false)
	err := s.syncer(v, sessionFrom(r.Context())).AddComment(r.Context(), id, r.PostForm.Get("comment-text"))
	s.respond(w, r, v, id, err)
}

// editComment handles POST /recipes/{id}/comments/{commentID}, the submit
// of the edit dialog. An empty text cancels.
func (s *Server) editComment(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid form body"))
		return
	}
	id := recipeParam(r, "id")
	v := newPageView(false)
	v.answer = r.PostForm.Get("comment-text")
	err := s.syncer(v, sessionFrom(r.Context())).EditComment(r.Context(), id, recipeParam(r, "commentID"), "")
	s.respond(w, r, v, id, err)
}

// deleteComment handles POST /recipes/{id}/comments/{commentID}/delete.
func (s *Server) deleteComment(w http.ResponseWriter, r *http.Request) {
	id := recipeParam(r, "id")
	v := newPageView(false)
	err := s.syncer(v, sessionFrom(r.Context())).DeleteComment(r.Context(), id, recipeParam(r, "commentID"))
	s.respond(w, r, v, id, err)
}

// calendar handles GET /api/calendar, the FullCalendar event feed.
func (s *Server) calendar(w http.ResponseWriter, r *http.Request) {
	s.syncer(newPageView(false), nil).CalendarEvents(r.Context(),
		func(events []models.CalendarEvent) {
			writeJSON(w, http.StatusOK, events)
		},
		func(err error) {
			writeJSON(w, http.StatusBadGateway, errorBody(apperr.Describe(err)))
		})
}

// respond writes the outcome of one sync operation. The re-rendered part of
// v, if any, is sent as HTML: the recipe listing, or else the comment list of
// recipeID. A superseded request gets 204, or only its notices when a
// mutation succeeded before its re-fetch was overtaken.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, v *pageView, recipeID models.ID, err error) {
	superseded := errors.Is(err, clientsync.ErrSuperseded)
	if superseded {
		if len(v.snapshotNotices()) == 0 {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		err = nil
	}
	if err != nil && statusFor(err) == http.StatusInternalServerError {
		s.logger.Error("sync operation failed", slog.String("path", r.URL.Path), slog.String("error", err.Error()))
	}

	if r.Method == http.MethodPost && !wantsFragment(r) {
		if sess := sessionFrom(r.Context()); sess != nil {
			sess.pushFlash(v.snapshotNotices()...)
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	env := Envelope{
		Notices: noticeDTOs(v.snapshotNotices()),
		Form:    v.filledForm(),
	}

	var renderErr error
	switch {
	case superseded:
	case v.isListed():
		env.Target = displayAreaTarget
		env.HTML, renderErr = s.templates.Render("recipes", v.cards())
	case !recipeID.Empty():
		if list, ok := v.commentsOf(recipeID); ok {
			env.Target = commentsTarget(recipeID)
			env.HTML, renderErr = s.templates.Render("comments", list)
		}
	}
	if renderErr != nil {
		s.logger.Error("render fragment failed", slog.String("path", r.URL.Path), slog.String("error", renderErr.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}

	writeJSON(w, statusFor(err), env)
}
