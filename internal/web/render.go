// Package web serves the movie page and the JSON endpoints its script talks to.
package web

import (
	"bytes"
	"fmt"
	stdhtml "html"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
)

// Renderer holds parsed page templates and the shared partials they include.
type Renderer struct {
	pages    map[string]*template.Template
	partials *template.Template
	mu       sync.RWMutex
}

// NewRenderer parses templatesDir: base.html, every partials/*.html, and each other .html
// file as a page named by its path relative to the directory (e.g. "movies/index.html").
func NewRenderer(templatesDir string) (*Renderer, error) {
	r := &Renderer{pages: make(map[string]*template.Template)}
	if err := r.parseTemplates(os.DirFS(templatesDir)); err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return r, nil
}

// Render executes a page inside the base layout.
func (r *Renderer) Render(w http.ResponseWriter, templateName string, data any) error {
	r.mu.RLock()
	tmpl, ok := r.pages[templateName]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("template %q not found", templateName)
	}

	// Buffer so a failing template does not leave a half-written 200.
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base", data); err != nil {
		return fmt.Errorf("failed to execute template %q: %w", templateName, err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, err := buf.WriteTo(w)
	return err
}

// RenderFragment executes a named partial, e.g. "movie-list", without the layout.
func (r *Renderer) RenderFragment(w io.Writer, name string, data any) error {
	r.mu.RLock()
	partials := r.partials
	r.mu.RUnlock()
	if partials.Lookup(name) == nil {
		return fmt.Errorf("fragment %q not found", name)
	}
	if err := partials.ExecuteTemplate(w, name, data); err != nil {
		return fmt.Errorf("failed to execute fragment %q: %w", name, err)
	}
	return nil
}

// RenderError writes a plain error page.
func (r *Renderer) RenderError(w http.ResponseWriter, code int, message string) {
	r.mu.RLock()
	tmpl, ok := r.pages["error.html"]
	r.mu.RUnlock()

	if ok {
		var buf bytes.Buffer
		data := PageData{Title: http.StatusText(code), Error: message}
		if err := tmpl.ExecuteTemplate(&buf, "base", data); err == nil {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.WriteHeader(code)
			buf.WriteTo(w)
			return
		}
	}

	http.Error(w, fmt.Sprintf("Error %d: %s", code, message), code)
}

func (r *Renderer) parseTemplates(fsys fs.FS) error {
	shared := template.New("base").Funcs(createFuncMap())

	baseContent, err := fs.ReadFile(fsys, "base.html")
	if err != nil {
		return fmt.Errorf("failed to read base template: %w", err)
	}
	if _, err := shared.Parse(string(baseContent)); err != nil {
		return fmt.Errorf("failed to parse base template: %w", err)
	}

	partialFiles, err := fs.Glob(fsys, "partials/*.html")
	if err != nil {
		return fmt.Errorf("failed to list partials: %w", err)
	}
	for _, name := range partialFiles {
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("failed to read partial %s: %w", name, err)
		}
		if _, err := shared.New(name).Parse(string(content)); err != nil {
			return fmt.Errorf("failed to parse partial %s: %w", name, err)
		}
	}

	pages := make(map[string]*template.Template)
	err = fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || p == "base.html" || strings.HasPrefix(p, "partials/") || path.Ext(p) != ".html" {
			return nil
		}

		content, err := fs.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("failed to read template %s: %w", p, err)
		}
		tmpl, err := shared.Clone()
		if err != nil {
			return fmt.Errorf("failed to clone layout for %s: %w", p, err)
		}
		if _, err := tmpl.New(p).Parse(string(content)); err != nil {
			return fmt.Errorf("failed to parse template %s: %w", p, err)
		}
		pages[p] = tmpl
		return nil
	})
	if err != nil {
		return err
	}
	if len(pages) == 0 {
		return fmt.Errorf("no page templates found")
	}

	r.mu.Lock()
	r.pages = pages
	r.partials = shared
	r.mu.Unlock()
	return nil
}

func createFuncMap() template.FuncMap {
	return template.FuncMap{
		"urlAttr": urlAttr,
		"add":     add,
	}
}

var contentPolicy = func() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AddTargetBlankToFullyQualifiedLinks(true)
	return p
}()

// renderMarkdown converts page copy such as the about page to sanitized HTML.
func renderMarkdown(s string) template.HTML {
	if strings.TrimSpace(s) == "" {
		return ""
	}

	extensions := parser.CommonExtensions | parser.NoEmptyLineBeforeBlock
	p := parser.NewWithExtensions(extensions)
	doc := p.Parse([]byte(s))

	renderer := html.NewRenderer(html.RendererOptions{
		Flags: html.HrefTargetBlank | html.NofollowLinks | html.NoreferrerLinks,
	})
	htmlContent := markdown.Render(doc, renderer)

	return template.HTML(contentPolicy.SanitizeBytes(htmlContent))
}

// blockedURL replaces a URL whose scheme is not allowed. It is the value
// html/template itself substitutes for unsafe URLs.
const blockedURL = "about:invalid#zGotmplZ"

// urlAttr renders name="value" for a src or href attribute. html/template would
// percent-encode the value and reject data: URLs; here the value is written as
// given, HTML-escaped, as long as it is relative or uses http, https or data:image/.
func urlAttr(name, value string) template.HTMLAttr {
	if !allowedURL(value) {
		value = blockedURL
	}
	return template.HTMLAttr(name + `="` + stdhtml.EscapeString(value) + `"`)
}

func allowedURL(value string) bool {
	// Browsers drop tabs and newlines anywhere in a URL and trim leading
	// controls and spaces before reading the scheme.
	u := strings.Map(func(r rune) rune {
		if r == '\t' || r == '\n' || r == '\r' {
			return -1
		}
		return r
	}, value)
	u = strings.TrimLeftFunc(u, func(r rune) bool { return r <= ' ' })
	u = strings.ToLower(u)

	colon := strings.IndexByte(u, ':')
	if colon < 0 {
		return true
	}
	// A colon after the first '/', '?' or '#' belongs to the path, query or fragment.
	if cut := strings.IndexAny(u, "/?#"); cut >= 0 && cut < colon {
		return true
	}
	switch u[:colon] {
	case "http", "https":
		return true
	case "data":
		return strings.HasPrefix(u, "data:image/")
	}
	return false
}

// add is used for 1-based numbering in templates.
func add(a, b int) int {
	return a + b
}
