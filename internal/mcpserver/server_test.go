package mcpserver

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/mise/internal/models"
	"github.com/starford/mise/internal/recipeclient"
	"github.com/starford/mise/internal/testutil"
)

func testServer(t *testing.T) (*Server, *testutil.Backend) {
	t.Helper()
	backend := testutil.NewBackend(t)
	client, err := recipeclient.New(backend.URL())
	require.NoError(t, err)
	now := func() time.Time { return time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC) }
	return New(client, "test", WithClock(now)), backend
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	handlers := map[string]func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error){
		"list_recipes":        srv.listRecipes,
		"get_recipe":          srv.getRecipe,
		"create_recipe":       srv.createRecipe,
		"update_recipe":       srv.updateRecipe,
		"delete_recipe":       srv.deleteRecipe,
		"list_comments":       srv.listComments,
		"add_comment":         srv.addComment,
		"edit_comment":        srv.editComment,
		"delete_comment":      srv.deleteComment,
		"calendar_events":     srv.calendarEvents,
		"get_recipe_contract": srv.getRecipeContract,
	}
	h, ok := handlers[name]
	require.True(t, ok, "unknown tool %s", name)

	result, err := h(context.Background(), req)
	require.NoError(t, err, "tool %s", name)
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func decodeResult(t *testing.T, r *mcp.CallToolResult) toolResult {
	t.Helper()
	require.False(t, r.IsError, "tool error: %s", resultText(r))
	var out toolResult
	require.NoError(t, json.Unmarshal([]byte(resultText(r)), &out))
	return out
}

func TestToolsAreRegistered(t *testing.T) {
	srv, _ := testServer(t)
	tools := srv.MCPServer().ListTools()
	for _, name := range []string{
		"list_recipes", "get_recipe", "create_recipe", "update_recipe", "delete_recipe",
		"list_comments", "add_comment", "edit_comment", "delete_comment",
		"calendar_events", "get_recipe_contract",
	} {
		assert.Contains(t, tools, name)
	}
}

func TestCreateRecipeThenList(t *testing.T) {
	srv, backend := testServer(t)

	res := decodeResult(t, callTool(t, srv, "create_recipe", map[string]any{
		"name":           "Pancakes",
		"ingredients":    "egg, flour , milk",
		"scheduled_date": "2024-05-01",
	}))
	assert.Equal(t, []string{"Recipe added successfully!"}, res.Notices)
	require.NotNil(t, res.Recipes)
	require.Len(t, *res.Recipes, 1)
	assert.Equal(t, []string{"egg", "flour", "milk"}, (*res.Recipes)[0].Ingredients)

	assert.JSONEq(t,
		`{"name":"Pancakes","ingredients":["egg","flour","milk"],"scheduled_date":"2024-05-01"}`,
		backend.Requests()[0].Body)

	res = decodeResult(t, callTool(t, srv, "list_recipes", map[string]any{"search": "pan"}))
	require.Len(t, *res.Recipes, 1)
	assert.Equal(t, "Pancakes", (*res.Recipes)[0].Name)
}

func TestListRecipes_EmptyListingIsPresent(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "list_recipes", map[string]any{})
	assert.JSONEq(t, `{"recipes":[]}`, resultText(r))
}

func TestCreateRecipe_Invalid(t *testing.T) {
	srv, backend := testServer(t)

	r := callTool(t, srv, "create_recipe", map[string]any{"name": " "})
	assert.True(t, r.IsError)
	assert.Contains(t, resultText(r), "Error adding recipe: ")
	assert.Empty(t, backend.Requests())
}

func TestCreateRecipe_MissingName(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "create_recipe", map[string]any{})
	assert.True(t, r.IsError)
}

func TestGetRecipe(t *testing.T) {
	srv, backend := testServer(t)
	id := backend.Seed("Stew", []string{"beef", "carrot"}, "2024-07-01")
	backend.SeedComment(id, "Hearty", "2024-07-02")

	res := decodeResult(t, callTool(t, srv, "get_recipe", map[string]any{"id": id.String()}))
	require.NotNil(t, res.Recipe)
	assert.Equal(t, "beef, carrot", res.Recipe.Ingredients)
	require.Len(t, res.Comments[id], 1)
	assert.Equal(t, "Hearty", res.Comments[id][0].Comment)
}

func TestGetRecipe_NotFound(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_recipe", map[string]any{"id": "404"})
	assert.True(t, r.IsError)
	assert.Equal(t, "Error fetching recipe for edit: server rejected the request (status 404)", resultText(r))
}

func TestUpdateAndDeleteRecipe(t *testing.T) {
	srv, backend := testServer(t)
	id := backend.Seed("Old", nil, "")

	res := decodeResult(t, callTool(t, srv, "update_recipe", map[string]any{"id": id.String(), "name": "New"}))
	assert.Equal(t, []string{"Recipe updated successfully!"}, res.Notices)
	assert.Equal(t, "New", (*res.Recipes)[0].Name)

	res = decodeResult(t, callTool(t, srv, "delete_recipe", map[string]any{"id": id.String()}))
	assert.Equal(t, []string{"Recipe deleted successfully!"}, res.Notices)
	assert.Empty(t, *res.Recipes)
}

func TestCommentTools(t *testing.T) {
	srv, backend := testServer(t)
	id := backend.Seed("Stew", nil, "")
	rid := id.String()

	res := decodeResult(t, callTool(t, srv, "add_comment", map[string]any{"recipe_id": rid, "text": "Bland"}))
	require.Len(t, res.Comments[id], 1)
	cid := res.Comments[id][0].ID

	backend.ResetRequests()
	res = decodeResult(t, callTool(t, srv, "edit_comment", map[string]any{
		"recipe_id": rid, "comment_id": cid.String(), "text": "Too salty",
	}))
	assert.Equal(t, []string{"Comment updated successfully!"}, res.Notices)
	assert.Equal(t, "PUT /recipes/"+rid+"/comments/"+cid.String(), backend.Requests()[0].Target())
	assert.JSONEq(t, `{"comment":"Too salty","date":"2024-06-10"}`, backend.Requests()[0].Body)

	res = decodeResult(t, callTool(t, srv, "list_comments", map[string]any{"recipe_id": rid}))
	assert.Equal(t, "Too salty", res.Comments[id][0].Comment)

	res = decodeResult(t, callTool(t, srv, "delete_comment", map[string]any{"recipe_id": rid, "comment_id": cid.String()}))
	assert.Empty(t, res.Comments[id])
}

func TestCalendarEvents(t *testing.T) {
	srv, backend := testServer(t)
	backend.Seed("Pancakes", nil, "2024-05-01")

	r := callTool(t, srv, "calendar_events", nil)
	require.False(t, r.IsError)
	var events []models.CalendarEvent
	require.NoError(t, json.Unmarshal([]byte(resultText(r)), &events))
	assert.Equal(t, []models.CalendarEvent{{Title: "Pancakes", Start: "2024-05-01"}}, events)

	backend.Fail("GET", "/recipes", 500)
	r = callTool(t, srv, "calendar_events", nil)
	assert.True(t, r.IsError)
	assert.Contains(t, resultText(r), "status 500")
}

func TestRecipeContract(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_recipe_contract", nil)
	assert.Equal(t, RecipeFormatContract, resultText(r))

	contents, err := srv.readContractResource(context.Background(), mcp.ReadResourceRequest{})
	require.NoError(t, err)
	require.Len(t, contents, 1)
	assert.Equal(t, contractURI, contents[0].(mcp.TextResourceContents).URI)
}
