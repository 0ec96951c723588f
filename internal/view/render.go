package view

import (
	"bytes"
	"embed"
	"html/template"
	"io"
)

//go:embed templates/*.html.tmpl
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html.tmpl"))

// Battery is the optional footer readout.
type Battery struct {
	Percent int
}

// Page is everything the board page needs.
type Page struct {
	Clock          string
	Countdown      string
	Mode           string
	View           *View // nil until the first frame has been cycled in
	Battery        *Battery
	RefreshSeconds int
}

// WritePage renders the full board page.
func WritePage(w io.Writer, p Page) error {
	if p.RefreshSeconds <= 0 {
		p.RefreshSeconds = 1
	}
	return templates.ExecuteTemplate(w, "page", p)
}

// Fragment renders only the display-area markup for v.
func Fragment(v View) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "display", v); err != nil {
		return "", err
	}
	return buf.String(), nil
}
