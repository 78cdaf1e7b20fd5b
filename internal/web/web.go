// Package web holds the embedded page templates and static assets.
package web

import (
	"embed"
	"html/template"
	"io/fs"
	"net/http"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

var funcs = template.FuncMap{
	"mark": func(ok bool) string {
		if ok {
			return "✓"
		}
		return "✗"
	},
}

// Templates parses the page templates.
func Templates() (*template.Template, error) {
	return template.New("").Funcs(funcs).ParseFS(templateFS, "templates/*.html")
}

// MustTemplates is like Templates but panics on a parse error.
func MustTemplates() *template.Template {
	return template.Must(Templates())
}

// Static serves the embedded assets rooted at static/.
func Static() http.FileSystem {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.FS(sub)
}
