package terminal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/starford/mise/internal/apperr"
	"github.com/starford/mise/internal/clientsync"
	"github.com/starford/mise/internal/models"
)

const shellHelp = `Commands:
  list                                  re-fetch the recipe list
  search [text]                         filter recipes by name, empty clears
  sort name|date_added|scheduled_date   change the list order
  add <name> | <ingredients> | [date]   add a recipe
  update <id> <name> | <ingredients> | [date]
  show <id>                             load a recipe into the edit form
  delete <id>                           delete a recipe
  comments <id>                         list a recipe's comments
  comment <id> <text>                   add a comment
  edit-comment <id> <comment-id>        replace a comment's text
  delete-comment <id> <comment-id>      delete a comment
  calendar                              show scheduled recipes
  help, quit
`

type pendingPrompt struct {
	current string
	reply   chan string
	asked   bool
}

// Shell reads commands line by line and turns them into dispatched events.
// A command is started only once the previous one has finished, except that
// a pending comment prompt takes the next line as its answer.
type Shell struct {
	in     io.Reader
	view   *View
	d      *clientsync.Dispatcher
	syncer *clientsync.Syncer

	prompts chan pendingPrompt
	query   clientsync.ListQuery
}

// NewShell creates a Shell writing to out. Attach a Syncer built on View()
// before calling Run.
func NewShell(in io.Reader, out io.Writer, logger *slog.Logger) *Shell {
	if logger == nil {
		logger = slog.Default()
	}
	sh := &Shell{
		in:      in,
		d:       clientsync.NewDispatcher(logger),
		prompts: make(chan pendingPrompt),
	}
	sh.view = NewView(out, WithPrompt(sh.prompt))
	return sh
}

// View is the view the shell renders into.
func (sh *Shell) View() *View { return sh.view }

// Attach binds s to the shell's events and returns a func that unbinds it.
func (sh *Shell) Attach(s *clientsync.Syncer) func() {
	sh.syncer = s
	return clientsync.Bind(sh.d, s)
}

// prompt hands the request to the Run loop and waits for its answer.
func (sh *Shell) prompt(ctx context.Context, current string) (string, error) {
	p := pendingPrompt{current: current, reply: make(chan string, 1)}
	select {
	case sh.prompts <- p:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	select {
	case text := <-p.reply:
		return text, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

type shellState struct {
	queued   []string
	waiting  []pendingPrompt
	inflight int
	eof      bool
	closing  bool
	finished chan struct{}
}

// Run processes commands until input ends, quit is entered or ctx is done.
func (sh *Shell) Run(ctx context.Context) error {
	if sh.syncer == nil {
		return fmt.Errorf("terminal: shell has no syncer attached")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	var scanErr error
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(sh.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr = sc.Err()
	}()

	st := &shellState{finished: make(chan struct{})}
	sh.view.Printf("mise shell, type help for commands\n")
	sh.track(ctx, st, sh.d.Dispatch(ctx, clientsync.Event{Kind: clientsync.EventRefresh, Query: sh.query}))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				lines = nil
				st.eof = true
			} else {
				st.queued = append(st.queued, line)
			}
		case p := <-sh.prompts:
			st.waiting = append(st.waiting, p)
		case <-st.finished:
			st.inflight--
			if st.inflight == 0 {
				sh.view.Flush()
			}
		}

		sh.drain(ctx, st)
		if (st.eof || st.closing) && st.inflight == 0 {
			if st.eof && !st.closing {
				return scanErr
			}
			return nil
		}
	}
}

// drain answers pending prompts and starts queued commands while idle.
func (sh *Shell) drain(ctx context.Context, st *shellState) {
	for {
		switch {
		case len(st.waiting) > 0 && len(st.queued) > 0:
			st.waiting[0].reply <- st.queued[0]
			st.waiting, st.queued = st.waiting[1:], st.queued[1:]
			continue
		case len(st.waiting) > 0 && (st.eof || st.closing):
			for _, p := range st.waiting {
				p.reply <- ""
			}
			st.waiting = nil
			continue
		case len(st.waiting) > 0:
			if !st.waiting[0].asked {
				sh.view.Printf("Edit your comment (was %q), empty line cancels:\n", st.waiting[0].current)
				st.waiting[0].asked = true
			}
			return
		case st.closing:
			st.queued = nil
			return
		case st.inflight > 0:
			return
		case len(st.queued) > 0:
			line := st.queued[0]
			st.queued = st.queued[1:]
			sh.exec(ctx, st, line)
			continue
		}
		if !st.eof {
			sh.view.Printf("mise> ")
		}
		return
	}
}

func (sh *Shell) track(ctx context.Context, st *shellState, done <-chan struct{}) {
	if done == nil {
		return
	}
	st.inflight++
	go func() {
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		select {
		case st.finished <- struct{}{}:
		case <-ctx.Done():
		}
	}()
}

func (sh *Shell) exec(ctx context.Context, st *shellState, line string) {
	cmd, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)

	ev := clientsync.Event{}
	switch cmd {
	case "":
		return
	case "help":
		sh.view.Printf("%s", shellHelp)
		return
	case "quit", "exit":
		st.closing = true
		return
	case "list", "ls":
		ev = clientsync.Event{Kind: clientsync.EventRefresh}
	case "search":
		sh.query.Search = rest
		ev = clientsync.Event{Kind: clientsync.EventSearch}
	case "sort":
		if rest != "" && !slices.Contains(models.SortKeys, rest) {
			sh.usage("sort keys are %s", strings.Join(models.SortKeys, ", "))
			return
		}
		sh.query.SortBy = rest
		ev = clientsync.Event{Kind: clientsync.EventSort}
	case "add":
		if rest == "" {
			sh.usage("add <name> | <ingredients> | [date]")
			return
		}
		sh.query = clientsync.ListQuery{}
		ev = clientsync.Event{Kind: clientsync.EventSubmitRecipe, Draft: splitDraft(rest)}
	case "update":
		id, draft, _ := strings.Cut(rest, " ")
		if id == "" {
			sh.usage("update <id> <name> | <ingredients> | [date]")
			return
		}
		sh.query = clientsync.ListQuery{}
		ev = clientsync.Event{Kind: clientsync.EventSubmitRecipe, RecipeID: models.ID(id), Draft: splitDraft(draft)}
	case "show", "edit":
		if rest == "" {
			sh.usage("show <id>")
			return
		}
		ev = clientsync.Event{Kind: clientsync.EventEditRecipe, RecipeID: models.ID(rest)}
	case "delete", "rm":
		if rest == "" {
			sh.usage("delete <id>")
			return
		}
		sh.query = clientsync.ListQuery{}
		ev = clientsync.Event{Kind: clientsync.EventDeleteRecipe, RecipeID: models.ID(rest)}
	case "comments":
		if rest == "" {
			sh.usage("comments <id>")
			return
		}
		ev = clientsync.Event{Kind: clientsync.EventLoadComments, RecipeID: models.ID(rest)}
	case "comment":
		id, text, _ := strings.Cut(rest, " ")
		if id == "" {
			sh.usage("comment <id> <text>")
			return
		}
		ev = clientsync.Event{Kind: clientsync.EventAddComment, RecipeID: models.ID(id), Text: strings.TrimSpace(text)}
	case "edit-comment", "delete-comment":
		fields := strings.Fields(rest)
		if len(fields) != 2 {
			sh.usage("%s <id> <comment-id>", cmd)
			return
		}
		recipeID, commentID := models.ID(fields[0]), models.ID(fields[1])
		ev = clientsync.Event{Kind: clientsync.EventDeleteComment, RecipeID: recipeID, CommentID: commentID}
		if cmd == "edit-comment" {
			current, _ := sh.view.Comment(recipeID, commentID)
			ev = clientsync.Event{Kind: clientsync.EventEditComment, RecipeID: recipeID, CommentID: commentID, Text: current.Comment}
		}
	case "calendar":
		sh.track(ctx, st, sh.calendar(ctx))
		return
	default:
		sh.usage("unknown command %q, type help", cmd)
		return
	}

	ev.Query = sh.query
	sh.track(ctx, st, sh.d.Dispatch(ctx, ev))
}

func (sh *Shell) calendar(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		sh.syncer.CalendarEvents(ctx, sh.view.Calendar, func(err error) {
			sh.view.Notify(clientsync.Notice{
				Kind:    clientsync.NoticeError,
				Message: "Error fetching calendar events: " + apperr.Describe(err),
			})
		})
	}()
	return done
}

func (sh *Shell) usage(format string, args ...any) {
	sh.view.Notify(clientsync.Notice{Kind: clientsync.NoticeError, Message: fmt.Sprintf(format, args...)})
}

// splitDraft reads "name | ingredients | date".
func splitDraft(s string) clientsync.RecipeDraft {
	parts := strings.SplitN(s, "|", 3)
	for len(parts) < 3 {
		parts = append(parts, "")
	}
	return clientsync.RecipeDraft{
		Name:          strings.TrimSpace(parts[0]),
		Ingredients:   strings.TrimSpace(parts[1]),
		ScheduledDate: strings.TrimSpace(parts[2]),
	}
}
