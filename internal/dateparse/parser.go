// Package dateparse normalizes scheduled-date input into the backend's
// calendar date format.
//
// Input is tried in two layers:
//  1. Calendar date (2024-05-01), passed through unchanged
//  2. Natural language (tomorrow, next friday, in 3 days)
package dateparse

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// Layout is the wire format of scheduled dates.
const Layout = "2006-01-02"

var parser = newParser()

func newParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// Normalize returns s as a YYYY-MM-DD date. Empty input stays empty.
// Relative expressions are resolved against now.
func Normalize(s string, now time.Time) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	if t, err := time.Parse(Layout, s); err == nil {
		return t.Format(Layout), nil
	}
	res, err := parser.Parse(s, now)
	if err != nil {
		return "", fmt.Errorf("dateparse: %q: %w", s, err)
	}
	if res == nil {
		return "", fmt.Errorf("dateparse: %q is not a date", s)
	}
	return res.Time.Format(Layout), nil
}

// Today returns the UTC calendar date of now.
func Today(now time.Time) string {
	return now.UTC().Format(Layout)
}

// Display renders a scheduled date for people. Anything unparsable is
// shown as is.
func Display(s string) string {
	if s == "" {
		return "not scheduled"
	}
	t, err := time.Parse(Layout, s)
	if err != nil {
		return s
	}
	return t.Format("Jan 2, 2006")
}
