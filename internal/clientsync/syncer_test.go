package clientsync_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/starford/mise/internal/apperr"
	"github.com/starford/mise/internal/clientsync"
	"github.com/starford/mise/internal/models"
	"github.com/starford/mise/internal/recipeclient"
	"github.com/starford/mise/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	)
}

var fixedNow = time.Date(2024, 6, 10, 15, 30, 0, 0, time.UTC)

type recordingView struct {
	mu       sync.Mutex
	listings [][]models.Recipe
	comments map[models.ID][]models.Comment
	forms    []clientsync.RecipeForm
	notices  []clientsync.Notice
	formErr  error
	prompt   func(current string) (string, error)
}

func newRecordingView() *recordingView {
	return &recordingView{comments: map[models.ID][]models.Comment{}}
}

func (v *recordingView) ShowRecipes(recipes []models.Recipe) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.listings = append(v.listings, recipes)
}

func (v *recordingView) ShowComments(id models.ID, comments []models.Comment) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.comments[id] = comments
}

func (v *recordingView) FillForm(form clientsync.RecipeForm) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.formErr != nil {
		return v.formErr
	}
	v.forms = append(v.forms, form)
	return nil
}

func (v *recordingView) PromptComment(_ context.Context, current string) (string, error) {
	if v.prompt == nil {
		return "", nil
	}
	return v.prompt(current)
}

func (v *recordingView) Notify(n clientsync.Notice) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.notices = append(v.notices, n)
}

func (v *recordingView) lastListing() []models.Recipe {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.listings) == 0 {
		return nil
	}
	return v.listings[len(v.listings)-1]
}

func (v *recordingView) noticesOf(kind clientsync.NoticeKind) []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []string
	for _, n := range v.notices {
		if n.Kind == kind {
			out = append(out, n.Message)
		}
	}
	return out
}

func (v *recordingView) commentsOf(id models.ID) ([]models.Comment, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	c, ok := v.comments[id]
	return c, ok
}

type publishRecorder struct {
	mu      sync.Mutex
	changes []string
}

func (p *publishRecorder) PublishChange(kind string, id models.ID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, kind+" "+id.String())
}

func newSyncer(t *testing.T, opts ...clientsync.Option) (*clientsync.Syncer, *recordingView, *testutil.Backend) {
	t.Helper()
	backend := testutil.NewBackend(t)
	client, err := recipeclient.New(backend.URL())
	require.NoError(t, err)
	view := newRecordingView()
	opts = append([]clientsync.Option{clientsync.WithClock(func() time.Time { return fixedNow })}, opts...)
	return clientsync.New(client, view, opts...), view, backend
}

func names(recipes []models.Recipe) []string {
	out := make([]string, len(recipes))
	for i, r := range recipes {
		out[i] = r.Name
	}
	return out
}

func TestCreateRecipe_SendsBodyThenRelists(t *testing.T) {
	s, view, backend := newSyncer(t)
	backend.Seed("Waffles", []string{"egg"}, "")

	err := s.CreateRecipe(context.Background(), clientsync.RecipeDraft{
		Name:          "Pancakes",
		Ingredients:   "egg, flour, milk",
		ScheduledDate: "2024-05-01",
	})
	require.NoError(t, err)

	reqs := backend.Requests()
	require.GreaterOrEqual(t, len(reqs), 2)
	assert.Equal(t, "POST /recipes", reqs[0].Target())
	assert.JSONEq(t,
		`{"name":"Pancakes","ingredients":["egg","flour","milk"],"scheduled_date":"2024-05-01"}`,
		reqs[0].Body)
	assert.Equal(t, "GET /recipes?search=&sort_by=", reqs[1].Target())

	count := 0
	for _, r := range view.lastListing() {
		if r.Name == "Pancakes" {
			count++
		}
	}
	assert.Equal(t, 1, count)
	assert.Equal(t, []string{"Recipe added successfully!"}, view.noticesOf(clientsync.NoticeSuccess))
	assert.Empty(t, view.noticesOf(clientsync.NoticeError))
}

func TestListRecipes_LoadsEveryCommentList(t *testing.T) {
	s, view, backend := newSyncer(t, clientsync.WithCommentConcurrency(2))
	ids := []models.ID{
		backend.Seed("A", nil, ""),
		backend.Seed("B", nil, ""),
		backend.Seed("C", nil, ""),
	}
	backend.SeedComment(ids[1], "nice", "2024-01-01")

	require.NoError(t, s.ListRecipes(context.Background(), clientsync.ListQuery{}))

	assert.Equal(t, []string{"A", "B", "C"}, names(view.lastListing()))
	for _, id := range ids {
		_, ok := view.commentsOf(id)
		assert.True(t, ok, "comments of %s rendered", id)
	}
	got, _ := view.commentsOf(ids[1])
	require.Len(t, got, 1)
	assert.Equal(t, "nice", got[0].Comment)
	assert.Equal(t, ids[1], got[0].RecipeID)
}

func TestListRecipes_SearchQuery(t *testing.T) {
	s, _, backend := newSyncer(t)

	require.NoError(t, s.ListRecipes(context.Background(), clientsync.ListQuery{Search: "choco"}))
	assert.Equal(t, []string{"GET /recipes?search=choco&sort_by="}, backend.Targets())
}

func TestListRecipes_FailureKeepsPriorRendering(t *testing.T) {
	s, view, backend := newSyncer(t)
	backend.Seed("Waffles", nil, "")
	require.NoError(t, s.ListRecipes(context.Background(), clientsync.ListQuery{}))

	backend.Fail("GET", "/recipes", 500)
	err := s.ListRecipes(context.Background(), clientsync.ListQuery{Search: "w"})
	require.ErrorIs(t, err, apperr.ErrRequestFailed)

	assert.Equal(t, []string{"Waffles"}, names(view.lastListing()))
	assert.Equal(t,
		[]string{"Error fetching recipes: server is unavailable (status 500)"},
		view.noticesOf(clientsync.NoticeError))
}

func TestDeleteRecipe_RelistExcludesID(t *testing.T) {
	s, view, backend := newSyncer(t)
	keep := backend.Seed("Keep", nil, "")
	gone := backend.Seed("Gone", nil, "")

	require.NoError(t, s.DeleteRecipe(context.Background(), gone))

	var ids []models.ID
	for _, r := range view.lastListing() {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []models.ID{keep}, ids)
	assert.Equal(t, []string{"Recipe deleted successfully!"}, view.noticesOf(clientsync.NoticeSuccess))
}

func TestFailedMutations_NoticeWithoutRefetch(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		run     func(s *clientsync.Syncer, id models.ID) error
		message string
	}{
		{
			name:   "create",
			method: "POST",
			run: func(s *clientsync.Syncer, _ models.ID) error {
				return s.CreateRecipe(context.Background(), clientsync.RecipeDraft{Name: "X"})
			},
			message: "Error adding recipe: server is unavailable (status 500)",
		},
		{
			name:   "update",
			method: "PUT",
			run: func(s *clientsync.Syncer, id models.ID) error {
				return s.UpdateRecipe(context.Background(), id, clientsync.RecipeDraft{Name: "X"})
			},
			message: "Error updating recipe: server is unavailable (status 500)",
		},
		{
			name:   "delete",
			method: "DELETE",
			run: func(s *clientsync.Syncer, id models.ID) error {
				return s.DeleteRecipe(context.Background(), id)
			},
			message: "Error deleting recipe: server is unavailable (status 500)",
		},
		{
			name:   "add comment",
			method: "POST",
			run: func(s *clientsync.Syncer, id models.ID) error {
				return s.AddComment(context.Background(), id, "hi")
			},
			message: "Error adding comment: server is unavailable (status 500)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, view, backend := newSyncer(t)
			id := backend.Seed("Waffles", nil, "")
			backend.Fail(tt.method, "/recipes", 500)

			err := tt.run(s, id)
			require.ErrorIs(t, err, apperr.ErrRequestFailed)

			assert.Len(t, backend.Requests(), 1, "no re-fetch after failure")
			assert.Equal(t, []string{tt.message}, view.noticesOf(clientsync.NoticeError))
			assert.Empty(t, view.noticesOf(clientsync.NoticeSuccess))
		})
	}
}

func TestCreateRecipe_InvalidDraftSendsNothing(t *testing.T) {
	s, view, backend := newSyncer(t)

	err := s.CreateRecipe(context.Background(), clientsync.RecipeDraft{Name: "  ", ScheduledDate: "xyzzy"})
	require.ErrorIs(t, err, apperr.ErrInvalidInput)

	assert.Empty(t, backend.Requests())
	errs := view.noticesOf(clientsync.NoticeError)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "Error adding recipe: ")
	assert.Contains(t, errs[0], "name")
	assert.Contains(t, errs[0], "scheduled_date")
}

func TestCreateRecipe_NaturalLanguageDate(t *testing.T) {
	s, _, backend := newSyncer(t)

	require.NoError(t, s.CreateRecipe(context.Background(), clientsync.RecipeDraft{
		Name:          "Soup",
		ScheduledDate: "tomorrow",
	}))
	assert.JSONEq(t, `{"name":"Soup","ingredients":[],"scheduled_date":"2024-06-11"}`, backend.Requests()[0].Body)
}

func TestSubmitRecipe_RoutesByID(t *testing.T) {
	s, view, backend := newSyncer(t)
	id := backend.Seed("Old", nil, "")

	require.NoError(t, s.SubmitRecipe(context.Background(), id, clientsync.RecipeDraft{Name: "New"}))
	require.NoError(t, s.SubmitRecipe(context.Background(), "", clientsync.RecipeDraft{Name: "Other"}))

	targets := backend.Targets()
	assert.Contains(t, targets, "PUT /recipes/"+id.String())
	assert.Contains(t, targets, "POST /recipes")
	assert.Equal(t, []string{"New", "Other"}, names(view.lastListing()))
	assert.Equal(t,
		[]string{"Recipe updated successfully!", "Recipe added successfully!"},
		view.noticesOf(clientsync.NoticeSuccess))
}

func TestEditRecipe_FillsFormAndComments(t *testing.T) {
	s, view, backend := newSyncer(t)
	id := backend.Seed("Pancakes", []string{"egg", "flour"}, "2024-05-01")
	backend.SeedComment(id, "fluffy", "2024-05-02")

	require.NoError(t, s.EditRecipe(context.Background(), id))

	require.Len(t, view.forms, 1)
	assert.Equal(t, clientsync.RecipeForm{
		ID:            id,
		Name:          "Pancakes",
		Ingredients:   "egg, flour",
		ScheduledDate: "2024-05-01",
	}, view.forms[0])
	got, ok := view.commentsOf(id)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "fluffy", got[0].Comment)
}

func TestEditRecipe_MissingFormFailsLoudly(t *testing.T) {
	s, view, backend := newSyncer(t)
	id := backend.Seed("Pancakes", nil, "")
	view.formErr = apperr.ErrFormUnavailable

	err := s.EditRecipe(context.Background(), id)
	require.ErrorIs(t, err, apperr.ErrFormUnavailable)

	_, ok := view.commentsOf(id)
	assert.False(t, ok)
	assert.Equal(t, []string{"GET /recipes/" + id.String()}, backend.Targets())
}

func TestEditRecipe_NotFound(t *testing.T) {
	s, view, _ := newSyncer(t)

	err := s.EditRecipe(context.Background(), "42")
	require.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t,
		[]string{"Error fetching recipe for edit: server rejected the request (status 404)"},
		view.noticesOf(clientsync.NoticeError))
}

func TestEditComment_SendsTodayDate(t *testing.T) {
	s, view, backend := newSyncer(t)
	id := backend.Seed("Stew", nil, "")
	cid := backend.SeedComment(id, "Bland", "2024-01-01")

	var prompted string
	view.prompt = func(current string) (string, error) {
		prompted = current
		return "Too salty", nil
	}

	require.NoError(t, s.EditComment(context.Background(), id, cid, "Bland"))

	assert.Equal(t, "Bland", prompted)
	reqs := backend.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "PUT /recipes/"+id.String()+"/comments/"+cid.String(), reqs[0].Target())
	assert.JSONEq(t, `{"comment":"Too salty","date":"2024-06-10"}`, reqs[0].Body)
	assert.Equal(t, "GET /recipes/"+id.String()+"/comments", reqs[1].Target())

	got, _ := view.commentsOf(id)
	require.Len(t, got, 1)
	assert.Equal(t, "Too salty", got[0].Comment)
}

func TestEditComment_EmptyPromptCancels(t *testing.T) {
	s, view, backend := newSyncer(t)
	id := backend.Seed("Stew", nil, "")
	cid := backend.SeedComment(id, "Bland", "2024-01-01")
	view.prompt = func(string) (string, error) { return "", nil }

	require.NoError(t, s.EditComment(context.Background(), id, cid, "Bland"))
	assert.Empty(t, backend.Requests())
	assert.Empty(t, view.notices)
}

func TestComments_AddAndDelete(t *testing.T) {
	pub := &publishRecorder{}
	s, view, backend := newSyncer(t, clientsync.WithPublisher(pub))
	id := backend.Seed("Stew", nil, "")

	require.NoError(t, s.AddComment(context.Background(), id, "Great"))
	got, _ := view.commentsOf(id)
	require.Len(t, got, 1)
	assert.Equal(t, "2024-06-10", got[0].Date)

	require.NoError(t, s.DeleteComment(context.Background(), id, got[0].ID))
	got, _ = view.commentsOf(id)
	assert.Empty(t, got)

	assert.Equal(t,
		[]string{"Comment added successfully!", "Comment deleted successfully!"},
		view.noticesOf(clientsync.NoticeSuccess))
	assert.Equal(t, []string{"comment.created " + id.String(), "comment.deleted " + id.String()}, pub.changes)
}

func TestAddComment_BlankIsRejected(t *testing.T) {
	s, view, backend := newSyncer(t)
	id := backend.Seed("Stew", nil, "")

	err := s.AddComment(context.Background(), id, "   ")
	require.ErrorIs(t, err, apperr.ErrInvalidInput)
	assert.Empty(t, backend.Requests())
	assert.Len(t, view.noticesOf(clientsync.NoticeError), 1)
}

func TestCalendarEvents(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		s, view, backend := newSyncer(t)
		backend.Seed("Pancakes", nil, "2024-05-01")
		backend.Seed("Soup", nil, "")

		var events []models.CalendarEvent
		s.CalendarEvents(context.Background(),
			func(ev []models.CalendarEvent) { events = ev },
			func(err error) { t.Fatalf("unexpected failure: %v", err) })

		assert.Equal(t, []models.CalendarEvent{
			{Title: "Pancakes", Start: "2024-05-01"},
			{Title: "Soup", Start: ""},
		}, events)
		assert.Empty(t, view.listings)
		assert.Empty(t, view.notices)
	})

	t.Run("failure calls only onFailure", func(t *testing.T) {
		s, view, backend := newSyncer(t)
		backend.Fail("GET", "/recipes", 503)

		var failed error
		s.CalendarEvents(context.Background(),
			func([]models.CalendarEvent) { t.Fatal("onSuccess called") },
			func(err error) { failed = err })

		require.ErrorIs(t, failed, apperr.ErrRequestFailed)
		assert.Empty(t, view.notices)
	})
}

func waitForRequest(t *testing.T, backend *testutil.Backend, target string) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, got := range backend.Targets() {
			if got == target {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
}

func TestListRecipes_StaleResponseNeverWins(t *testing.T) {
	for _, ordering := range []clientsync.Ordering{clientsync.OrderingDropStale, clientsync.OrderingCancel} {
		for _, staleFails := range []bool{false, true} {
			name := string(ordering) + "/stale succeeds"
			if staleFails {
				name = string(ordering) + "/stale fails"
			}
			t.Run(name, func(t *testing.T) {
				s, view, backend := newSyncer(t, clientsync.WithSequencer(clientsync.NewSequencer(ordering)))
				backend.Seed("Choco cake", nil, "")
				backend.Seed("Cheese", nil, "")

				const slow = "GET /recipes?search=c&sort_by="
				release := backend.Hold(slow)
				defer release()

				errc := make(chan error, 1)
				go func() {
					errc <- s.ListRecipes(context.Background(), clientsync.ListQuery{Search: "c"})
				}()
				waitForRequest(t, backend, slow)

				require.NoError(t, s.ListRecipes(context.Background(), clientsync.ListQuery{Search: "choco"}))
				if staleFails {
					backend.Fail(http.MethodGet, "/recipes", http.StatusInternalServerError)
				}
				release()

				select {
				case err := <-errc:
					assert.True(t, errors.Is(err, clientsync.ErrSuperseded), "got %v", err)
				case <-time.After(2 * time.Second):
					t.Fatal("stale listing never returned")
				}
				assert.Equal(t, []string{"Choco cake"}, names(view.lastListing()))
				assert.Empty(t, view.noticesOf(clientsync.NoticeError))
			})
		}
	}
}

func TestListRecipes_OvertakenCommentFetchIsNotASuccess(t *testing.T) {
	s, view, backend := newSyncer(t)
	id := backend.Seed("Pancakes", nil, "")
	backend.SeedComment(id, "Fluffy", "2024-06-01")

	comments := "GET /recipes/" + id.String() + "/comments"
	release := backend.Hold(comments)
	defer release()

	first := make(chan error, 1)
	go func() { first <- s.ListRecipes(context.Background(), clientsync.ListQuery{}) }()
	waitForRequest(t, backend, comments)

	second := make(chan error, 1)
	go func() { second <- s.ListRecipes(context.Background(), clientsync.ListQuery{}) }()
	require.Eventually(t, func() bool {
		n := 0
		for _, got := range backend.Targets() {
			if got == comments {
				n++
			}
		}
		return n == 2
	}, 2*time.Second, 5*time.Millisecond)

	select {
	case err := <-first:
		assert.True(t, errors.Is(err, clientsync.ErrSuperseded), "got %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("overtaken listing never returned")
	}

	release()
	require.NoError(t, <-second)

	got, ok := view.commentsOf(id)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "Fluffy", got[0].Comment)
	assert.Empty(t, view.noticesOf(clientsync.NoticeError))
}

func TestListRecipes_NoOrderingRendersInArrivalOrder(t *testing.T) {
	s, view, backend := newSyncer(t, clientsync.WithSequencer(clientsync.NewSequencer(clientsync.OrderingNone)))
	backend.Seed("Choco cake", nil, "")
	backend.Seed("Cheese", nil, "")

	const slow = "GET /recipes?search=c&sort_by="
	release := backend.Hold(slow)
	defer release()

	done := make(chan error, 1)
	go func() { done <- s.ListRecipes(context.Background(), clientsync.ListQuery{Search: "c"}) }()
	waitForRequest(t, backend, slow)

	require.NoError(t, s.ListRecipes(context.Background(), clientsync.ListQuery{Search: "choco"}))
	release()
	require.NoError(t, <-done)

	assert.Equal(t, []string{"Choco cake", "Cheese"}, names(view.lastListing()))
}
