package views

import (
	"errors"
	"html/template"
	"io"
	"io/fs"
)

var indexTmpl *template.Template

// LoadTemplatesFS parses the page templates under dir in fsys. The loaded
// set is only replaced when parsing succeeds.
func LoadTemplatesFS(fsys fs.FS, dir string) error {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return err
	}
	tmpl, err := template.ParseFS(sub, "*.html")
	if err != nil {
		return err
	}
	indexTmpl = tmpl
	return nil
}

// LoadTemplates parses the embedded templates. Call it once during startup;
// the server must not start if it fails.
func LoadTemplates() error {
	return LoadTemplatesFS(viewsFS, "templates")
}

// Routes is the listing shown on the index page, in display order.
var Routes = []string{
	"/api/v1.0/precipitation",
	"/api/v1.0/stations",
	"/api/v1.0/tobs",
	"/api/v1.0/[start]",
	"/api/v1.0/[start]/[end]",
}

type IndexData struct {
	Routes []string
}

func RenderIndex(w io.Writer, data *IndexData) error {
	if indexTmpl == nil {
		return errors.New("index template not loaded: call views.LoadTemplates during startup")
	}
	return indexTmpl.ExecuteTemplate(w, "index.html", data)
}
