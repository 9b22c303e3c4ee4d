package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"os"
	"sync"

	"github.com/starford/mise/internal/dateparse"
	"github.com/starford/mise/internal/models"
)

//go:embed templates/*.tmpl
var embeddedTemplates embed.FS

//go:embed static
var embeddedStatic embed.FS

var templateFuncs = template.FuncMap{
	"ingredients": models.JoinIngredients,
	"displayDate": dateparse.Display,
}

// Templates holds the parsed page templates. When Dir is set the templates
// are read from disk instead of the embedded copies and can be reloaded.
type Templates struct {
	dir string

	mu  sync.RWMutex
	set *template.Template
}

// LoadTemplates parses the templates from dir, or the embedded ones when dir
// is empty.
func LoadTemplates(dir string) (*Templates, error) {
	t := &Templates{dir: dir}
	if err := t.Reload(); err != nil {
		return nil, err
	}
	return t, nil
}

// Dir returns the override directory, if any.
func (t *Templates) Dir() string { return t.dir }

// Reload re-parses the templates. On error the previous set stays active.
func (t *Templates) Reload() error {
	var fsys fs.FS
	if t.dir != "" {
		fsys = os.DirFS(t.dir)
	} else {
		sub, err := fs.Sub(embeddedTemplates, "templates")
		if err != nil {
			return err
		}
		fsys = sub
	}

	set, err := template.New("mise").Funcs(templateFuncs).ParseFS(fsys, "*.tmpl")
	if err != nil {
		return fmt.Errorf("parse templates: %w", err)
	}

	t.mu.Lock()
	t.set = set
	t.mu.Unlock()
	return nil
}

// Execute renders the named template into w.
func (t *Templates) Execute(w io.Writer, name string, data any) error {
	t.mu.RLock()
	set := t.set
	t.mu.RUnlock()
	return set.ExecuteTemplate(w, name, data)
}

// Render renders the named template into a string.
func (t *Templates) Render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func staticFS() fs.FS {
	sub, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		panic(err)
	}
	return sub
}
