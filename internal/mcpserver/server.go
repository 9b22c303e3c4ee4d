// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the recipe operations for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/mise/internal/apperr"
	"github.com/starford/mise/internal/clientsync"
	"github.com/starford/mise/internal/models"
)

const contractURI = "mise://recipe-format"

// Server wraps the MCP server with the recipe tools.
type Server struct {
	mcp    *server.MCPServer
	client clientsync.Client
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. It must not write to stdout.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithClock sets the time source used for comment dates.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// New creates a new MCP server with all recipe tools registered.
func New(client clientsync.Client, version string, opts ...Option) *Server {
	s := &Server{client: client, logger: slog.Default(), now: time.Now}
	for _, o := range opts {
		o(s)
	}

	s.mcp = server.NewMCPServer(
		"mise",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_recipes",
		mcp.WithDescription("List recipes with their comments, optionally filtered by a name search and sorted."),
		mcp.WithString("search", mcp.Description("Case-insensitive substring of the recipe name")),
		mcp.WithString("sort_by", mcp.Description("Sort key"), mcp.Enum(models.SortKeys...)),
	), s.listRecipes)

	s.mcp.AddTool(mcp.NewTool("get_recipe",
		mcp.WithDescription("Fetch one recipe in edit-form shape together with its comments."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Recipe id")),
	), s.getRecipe)

	s.mcp.AddTool(mcp.NewTool("create_recipe",
		mcp.WithDescription("Create a recipe. Read the contract first via get_recipe_contract or the "+
			contractURI+" resource."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Recipe name")),
		mcp.WithString("ingredients", mcp.Description("Comma-separated ingredients")),
		mcp.WithString("scheduled_date", mcp.Description("YYYY-MM-DD or natural language such as 'next friday'")),
	), s.createRecipe)

	s.mcp.AddTool(mcp.NewTool("update_recipe",
		mcp.WithDescription("Replace every field of an existing recipe."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Recipe id")),
		mcp.WithString("name", mcp.Required(), mcp.Description("Recipe name")),
		mcp.WithString("ingredients", mcp.Description("Comma-separated ingredients")),
		mcp.WithString("scheduled_date", mcp.Description("YYYY-MM-DD or natural language")),
	), s.updateRecipe)

	s.mcp.AddTool(mcp.NewTool("delete_recipe",
		mcp.WithDescription("Delete a recipe."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Recipe id")),
	), s.deleteRecipe)

	s.mcp.AddTool(mcp.NewTool("list_comments",
		mcp.WithDescription("List the comments of one recipe."),
		mcp.WithString("recipe_id", mcp.Required(), mcp.Description("Recipe id")),
	), s.listComments)

	s.mcp.AddTool(mcp.NewTool("add_comment",
		mcp.WithDescription("Add a comment dated today to a recipe."),
		mcp.WithString("recipe_id", mcp.Required(), mcp.Description("Recipe id")),
		mcp.WithString("text", mcp.Required(), mcp.Description("Comment text")),
	), s.addComment)

	s.mcp.AddTool(mcp.NewTool("edit_comment",
		mcp.WithDescription("Replace a comment's text. Its date becomes today."),
		mcp.WithString("recipe_id", mcp.Required(), mcp.Description("Recipe id")),
		mcp.WithString("comment_id", mcp.Required(), mcp.Description("Comment id")),
		mcp.WithString("text", mcp.Required(), mcp.Description("New comment text")),
	), s.editComment)

	s.mcp.AddTool(mcp.NewTool("delete_comment",
		mcp.WithDescription("Delete a comment."),
		mcp.WithString("recipe_id", mcp.Required(), mcp.Description("Recipe id")),
		mcp.WithString("comment_id", mcp.Required(), mcp.Description("Comment id")),
	), s.deleteComment)

	s.mcp.AddTool(mcp.NewTool("calendar_events",
		mcp.WithDescription("List every recipe as a calendar event (title and scheduled date)."),
	), s.calendarEvents)

	s.mcp.AddTool(mcp.NewTool("get_recipe_contract",
		mcp.WithDescription("Returns the recipe and comment field contract. "+
			"Call this before creating or updating recipes."),
	), s.getRecipeContract)

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Recipe Format Contract",
			mcp.WithResourceDescription("Fields and rules for recipes and comments."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) syncer(v *callView) *clientsync.Syncer {
	return clientsync.New(s.client, v,
		clientsync.WithLogger(s.logger),
		clientsync.WithClock(s.now),
	)
}

// run executes op against a fresh view and turns the outcome into a tool
// result.
func (s *Server) run(ctx context.Context, op func(*clientsync.Syncer) error) (*mcp.CallToolResult, error) {
	v := newCallView()
	if err := op(s.syncer(v)); err != nil {
		if msgs := v.errorNotices(); len(msgs) > 0 {
			return mcp.NewToolResultError(strings.Join(msgs, "\n")), nil
		}
		return mcp.NewToolResultError(apperr.Describe(err)), nil
	}
	return jsonResult(v.result())
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(out)), nil
}

func draftFrom(req mcp.CallToolRequest) clientsync.RecipeDraft {
	return clientsync.RecipeDraft{
		Name:          req.GetString("name", ""),
		Ingredients:   req.GetString("ingredients", ""),
		ScheduledDate: req.GetString("scheduled_date", ""),
	}
}

func (s *Server) listRecipes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q := clientsync.ListQuery{
		Search: req.GetString("search", ""),
		SortBy: req.GetString("sort_by", ""),
	}
	return s.run(ctx, func(sy *clientsync.Syncer) error { return sy.ListRecipes(ctx, q) })
}

func (s *Server) getRecipe(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.run(ctx, func(sy *clientsync.Syncer) error { return sy.EditRecipe(ctx, models.ID(id)) })
}

func (s *Server) createRecipe(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if _, err := req.RequireString("name"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	draft := draftFrom(req)
	return s.run(ctx, func(sy *clientsync.Syncer) error { return sy.CreateRecipe(ctx, draft) })
}

func (s *Server) updateRecipe(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, err := req.RequireString("name"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	draft := draftFrom(req)
	return s.run(ctx, func(sy *clientsync.Syncer) error { return sy.UpdateRecipe(ctx, models.ID(id), draft) })
}

func (s *Server) deleteRecipe(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.run(ctx, func(sy *clientsync.Syncer) error { return sy.DeleteRecipe(ctx, models.ID(id)) })
}

func (s *Server) listComments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("recipe_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.run(ctx, func(sy *clientsync.Syncer) error { return sy.ListComments(ctx, models.ID(id)) })
}

func (s *Server) addComment(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("recipe_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.run(ctx, func(sy *clientsync.Syncer) error { return sy.AddComment(ctx, models.ID(id), text) })
}

func (s *Server) editComment(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("recipe_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	commentID, err := req.RequireString("comment_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.run(ctx, func(sy *clientsync.Syncer) error {
		return sy.ReplaceComment(ctx, models.ID(id), models.ID(commentID), text)
	})
}

func (s *Server) deleteComment(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("recipe_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	commentID, err := req.RequireString("comment_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.run(ctx, func(sy *clientsync.Syncer) error {
		return sy.DeleteComment(ctx, models.ID(id), models.ID(commentID))
	})
}

func (s *Server) calendarEvents(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var (
		events []models.CalendarEvent
		failed error
	)
	s.syncer(newCallView()).CalendarEvents(ctx,
		func(ev []models.CalendarEvent) { events = ev },
		func(err error) { failed = err })
	if failed != nil {
		return mcp.NewToolResultError("Error fetching calendar events: " + apperr.Describe(failed)), nil
	}
	return jsonResult(events)
}

func (s *Server) getRecipeContract(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(RecipeFormatContract), nil
}

func (s *Server) readContractResource(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     RecipeFormatContract,
		},
	}, nil
}
