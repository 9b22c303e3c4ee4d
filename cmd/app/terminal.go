package main

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/starford/mise/internal"
	"github.com/starford/mise/internal/apperr"
	"github.com/starford/mise/internal/clientsync"
	"github.com/starford/mise/internal/models"
	"github.com/starford/mise/internal/terminal"
)

// runOp loads the config and runs op against a terminal view.
func runOp(ctx context.Context, cmd *cli.Command, prompt terminal.PromptFunc, op internal.TerminalOp) error {
	opts, err := appOptions(cmd)
	if err != nil {
		return err
	}
	return internal.RunTerminal(ctx, op, prompt, opts...)
}

func requireArgs(cmd *cli.Command, n int) error {
	if cmd.NArg() < n {
		return fmt.Errorf("%s: expected %s", cmd.Name, cmd.ArgsUsage)
	}
	return nil
}

func draftFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "name", Usage: "Recipe name", Required: true},
		&cli.StringFlag{Name: "ingredients", Usage: "Comma-separated ingredients"},
		&cli.StringFlag{Name: "date", Usage: "Scheduled date: YYYY-MM-DD or text such as \"next friday\""},
	}
}

func draftFrom(cmd *cli.Command) clientsync.RecipeDraft {
	return clientsync.RecipeDraft{
		Name:          cmd.String("name"),
		Ingredients:   cmd.String("ingredients"),
		ScheduledDate: cmd.String("date"),
	}
}

func recipesCommand() *cli.Command {
	return &cli.Command{
		Name:  "recipes",
		Usage: "List and change recipes",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List recipes with their comments",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "search", Usage: "Filter by name"},
					&cli.StringFlag{Name: "sort-by", Usage: "name, date_added or scheduled_date"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					q := clientsync.ListQuery{Search: cmd.String("search"), SortBy: cmd.String("sort-by")}
					if q.SortBy != "" && !slices.Contains(models.SortKeys, q.SortBy) {
						return fmt.Errorf("sort-by must be one of %s", strings.Join(models.SortKeys, ", "))
					}
					return runOp(ctx, cmd, nil, func(ctx context.Context, s *clientsync.Syncer, _ *terminal.View) error {
						return s.ListRecipes(ctx, q)
					})
				},
			},
			{
				Name:      "show",
				Usage:     "Show one recipe as edit form values with its comments",
				ArgsUsage: "<id>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if err := requireArgs(cmd, 1); err != nil {
						return err
					}
					id := models.ID(cmd.Args().Get(0))
					return runOp(ctx, cmd, nil, func(ctx context.Context, s *clientsync.Syncer, _ *terminal.View) error {
						return s.EditRecipe(ctx, id)
					})
				},
			},
			{
				Name:  "add",
				Usage: "Add a recipe",
				Flags: draftFlags(),
				Action: func(ctx context.Context, cmd *cli.Command) error {
					draft := draftFrom(cmd)
					return runOp(ctx, cmd, nil, func(ctx context.Context, s *clientsync.Syncer, _ *terminal.View) error {
						return s.CreateRecipe(ctx, draft)
					})
				},
			},
			{
				Name:      "update",
				Usage:     "Replace a recipe",
				ArgsUsage: "<id>",
				Flags:     draftFlags(),
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if err := requireArgs(cmd, 1); err != nil {
						return err
					}
					id, draft := models.ID(cmd.Args().Get(0)), draftFrom(cmd)
					return runOp(ctx, cmd, nil, func(ctx context.Context, s *clientsync.Syncer, _ *terminal.View) error {
						return s.UpdateRecipe(ctx, id, draft)
					})
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete a recipe",
				ArgsUsage: "<id>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if err := requireArgs(cmd, 1); err != nil {
						return err
					}
					id := models.ID(cmd.Args().Get(0))
					return runOp(ctx, cmd, nil, func(ctx context.Context, s *clientsync.Syncer, _ *terminal.View) error {
						return s.DeleteRecipe(ctx, id)
					})
				},
			},
		},
	}
}

func commentsCommand() *cli.Command {
	return &cli.Command{
		Name:  "comments",
		Usage: "List and change a recipe's comments",
		Commands: []*cli.Command{
			{
				Name:      "list",
				Usage:     "List a recipe's comments",
				ArgsUsage: "<recipe-id>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if err := requireArgs(cmd, 1); err != nil {
						return err
					}
					id := models.ID(cmd.Args().Get(0))
					return runOp(ctx, cmd, nil, func(ctx context.Context, s *clientsync.Syncer, _ *terminal.View) error {
						return s.ListComments(ctx, id)
					})
				},
			},
			{
				Name:      "add",
				Usage:     "Add a comment dated today",
				ArgsUsage: "<recipe-id> <text>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if err := requireArgs(cmd, 2); err != nil {
						return err
					}
					id, text := models.ID(cmd.Args().Get(0)), strings.Join(cmd.Args().Tail(), " ")
					return runOp(ctx, cmd, nil, func(ctx context.Context, s *clientsync.Syncer, _ *terminal.View) error {
						return s.AddComment(ctx, id, text)
					})
				},
			},
			{
				Name:      "edit",
				Usage:     "Replace a comment's text, in a dialog unless --text is given",
				ArgsUsage: "<recipe-id> <comment-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "text", Usage: "New comment text"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if err := requireArgs(cmd, 2); err != nil {
						return err
					}
					recipeID, commentID := models.ID(cmd.Args().Get(0)), models.ID(cmd.Args().Get(1))
					var prompt terminal.PromptFunc
					if cmd.IsSet("text") {
						prompt = terminal.FixedPrompt(cmd.String("text"))
					}
					return runOp(ctx, cmd, prompt, func(ctx context.Context, s *clientsync.Syncer, v *terminal.View) error {
						if err := s.ListComments(ctx, recipeID); err != nil {
							return err
						}
						current, ok := v.Comment(recipeID, commentID)
						if !ok {
							err := fmt.Errorf("comment %s on recipe %s: %w", commentID, recipeID, apperr.ErrNotFound)
							v.Notify(clientsync.Notice{Kind: clientsync.NoticeError, Message: "Error updating comment: " + err.Error()})
							return err
						}
						return s.EditComment(ctx, recipeID, commentID, current.Comment)
					})
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete a comment",
				ArgsUsage: "<recipe-id> <comment-id>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if err := requireArgs(cmd, 2); err != nil {
						return err
					}
					recipeID, commentID := models.ID(cmd.Args().Get(0)), models.ID(cmd.Args().Get(1))
					return runOp(ctx, cmd, nil, func(ctx context.Context, s *clientsync.Syncer, _ *terminal.View) error {
						return s.DeleteComment(ctx, recipeID, commentID)
					})
				},
			},
		},
	}
}

func calendarCommand() *cli.Command {
	return &cli.Command{
		Name:  "calendar",
		Usage: "Show recipes by scheduled date",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runOp(ctx, cmd, nil, func(ctx context.Context, s *clientsync.Syncer, v *terminal.View) error {
				var failed error
				s.CalendarEvents(ctx, v.Calendar, func(err error) {
					failed = err
					v.Notify(clientsync.Notice{
						Kind:    clientsync.NoticeError,
						Message: "Error fetching calendar events: " + apperr.Describe(err),
					})
				})
				return failed
			})
		},
	}
}
