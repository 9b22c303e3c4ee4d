package internal

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/starford/mise/internal/clientsync"
	"github.com/starford/mise/internal/terminal"
	"github.com/starford/mise/internal/testutil"
)

func terminalConfig(backendURL string) *Config {
	cfg := NewDefaultConfig()
	cfg.Backend.BaseURL = backendURL
	cfg.App.LogLevel = slog.LevelError
	return cfg
}

func runTerminal(t *testing.T, cfg *Config, op TerminalOp, prompt terminal.PromptFunc) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := RunTerminal(context.Background(), op, prompt,
		WithConfig(cfg),
		WithVersion("test"),
		WithIO(os.Stdin, &out, io.Discard),
	)
	return out.String(), err
}

func TestRunTerminal_ListsRecipes(t *testing.T) {
	backend := testutil.NewBackend(t)
	id := backend.Seed("Pancakes", []string{"egg", "flour"}, "2024-05-01")
	backend.SeedComment(id, "fluffy", "2024-05-02")

	out, err := runTerminal(t, terminalConfig(backend.URL()), func(ctx context.Context, s *clientsync.Syncer, _ *terminal.View) error {
		return s.ListRecipes(ctx, clientsync.ListQuery{})
	}, nil)
	if err != nil {
		t.Fatalf("RunTerminal: %v", err)
	}
	for _, want := range []string{"#1 Pancakes", "egg, flour", "May 1, 2024", "fluffy"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRunTerminal_SendsToken(t *testing.T) {
	backend := testutil.NewBackend(t)
	backend.RequireToken("s3cret")
	cfg := terminalConfig(backend.URL())
	cfg.Backend.Auth = AuthConfig{Mode: AuthModeToken, Token: "s3cret"}

	if _, err := runTerminal(t, cfg, func(ctx context.Context, s *clientsync.Syncer, _ *terminal.View) error {
		return s.ListRecipes(ctx, clientsync.ListQuery{})
	}, nil); err != nil {
		t.Fatalf("RunTerminal: %v", err)
	}

	reqs := backend.Requests()
	if len(reqs) == 0 {
		t.Fatal("no request reached the backend")
	}
	if got := reqs[0].Header.Get("Authorization"); got != "Bearer s3cret" {
		t.Errorf("Authorization = %q", got)
	}
	if got := reqs[0].Header.Get("User-Agent"); got != "mise/test" {
		t.Errorf("User-Agent = %q", got)
	}
}

func TestRunTerminal_WrongTokenIsRejected(t *testing.T) {
	backend := testutil.NewBackend(t)
	backend.RequireToken("s3cret")
	cfg := terminalConfig(backend.URL())
	cfg.Backend.Auth = AuthConfig{Mode: AuthModeToken, Token: "guess"}

	out, err := runTerminal(t, cfg, func(ctx context.Context, s *clientsync.Syncer, _ *terminal.View) error {
		return s.ListRecipes(ctx, clientsync.ListQuery{})
	}, nil)
	if !errors.Is(err, ErrCommandFailed) {
		t.Fatalf("err = %v, want ErrCommandFailed", err)
	}
	if !strings.Contains(out, "status 401") {
		t.Errorf("expected a 401 notice:\n%s", out)
	}
}

func TestRunTerminal_FailureIsReported(t *testing.T) {
	backend := testutil.NewBackend(t)
	backend.Fail("GET", "/recipes", 500)

	out, err := runTerminal(t, terminalConfig(backend.URL()), func(ctx context.Context, s *clientsync.Syncer, _ *terminal.View) error {
		return s.ListRecipes(ctx, clientsync.ListQuery{})
	}, nil)
	if !errors.Is(err, ErrCommandFailed) {
		t.Fatalf("err = %v, want ErrCommandFailed", err)
	}
	if !strings.Contains(out, "Error fetching recipes") {
		t.Errorf("failure notice missing:\n%s", out)
	}
}

func TestRunTerminal_EditCommentWithText(t *testing.T) {
	backend := testutil.NewBackend(t)
	id := backend.Seed("Pancakes", nil, "")
	cid := backend.SeedComment(id, "fluffy", "2024-05-02")

	out, err := runTerminal(t, terminalConfig(backend.URL()), func(ctx context.Context, s *clientsync.Syncer, _ *terminal.View) error {
		return s.EditComment(ctx, id, cid, "fluffy")
	}, terminal.FixedPrompt("crispy"))
	if err != nil {
		t.Fatalf("RunTerminal: %v", err)
	}
	if !strings.Contains(out, "Comment updated successfully!") || !strings.Contains(out, "crispy") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestRunTerminal_RequiresConfig(t *testing.T) {
	err := RunTerminal(context.Background(), func(context.Context, *clientsync.Syncer, *terminal.View) error {
		return nil
	}, nil)
	if err == nil || !strings.Contains(err.Error(), "config is required") {
		t.Fatalf("err = %v", err)
	}
}
