// Package web holds the embedded HTML of the chat page.
package web

import (
	"embed"
	"html/template"
)

//go:embed templates/*.html
var files embed.FS

// Templates parses every embedded page.
func Templates() (*template.Template, error) {
	return template.ParseFS(files, "templates/*.html")
}
