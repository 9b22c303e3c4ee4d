package terminal

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"
)

// ErrNotInteractive is returned by DialogPrompt when input is not a terminal.
var ErrNotInteractive = errors.New("comment edit needs an interactive terminal; pass the new text instead")

// IsInteractive reports whether f is attached to a terminal.
func IsInteractive(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// DialogPrompt asks for the replacement comment in a huh dialog read from in.
// Aborting the dialog cancels the edit.
func DialogPrompt(in *os.File, out io.Writer) PromptFunc {
	return func(ctx context.Context, current string) (string, error) {
		if !IsInteractive(in) {
			return "", ErrNotInteractive
		}
		text := current
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewText().
					Title("Edit your comment").
					Description("Clear the text to cancel").
					CharLimit(2000).
					Value(&text),
			),
		).WithInput(in).WithOutput(out)

		if err := form.RunWithContext(ctx); err != nil {
			if errors.Is(err, huh.ErrUserAborted) {
				return "", nil
			}
			return "", err
		}
		return text, nil
	}
}

// FixedPrompt answers every prompt with text.
func FixedPrompt(text string) PromptFunc {
	return func(context.Context, string) (string, error) { return text, nil }
}
