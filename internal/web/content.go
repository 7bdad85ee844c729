package web

import (
	"embed"
	"html/template"
	"io/fs"
)

//go:embed templates
var ContentFS embed.FS

// GetHTMLTemplate loads a page template from the embedded content.
func GetHTMLTemplate(name string) (*template.Template, error) {
	templateFS, err := fs.Sub(ContentFS, "templates")
	if err != nil {
		return nil, err
	}
	return template.New(name + ".tmpl.html").ParseFS(templateFS, name+".tmpl.html")
}
