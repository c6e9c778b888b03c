// Package templates renders the viewer's pages and htmx fragments. The
// markup lives in embedded html/template files; each exported function wraps
// one of them as a templ.Component so handlers render every response the
// same way.
package templates

import (
	"context"
	"embed"
	"html/template"
	"io"

	"github.com/a-h/templ"

	"github.com/csg33k/response-viewer/internal/domain"
	"github.com/csg33k/response-viewer/internal/history"
	"github.com/csg33k/response-viewer/internal/retrieval"
	"github.com/csg33k/response-viewer/internal/workspace"
)

//go:embed html/*.html
var files embed.FS

var tmpl = template.Must(template.New("").Funcs(template.FuncMap{
	"itoa":      itoa,
	"seq":       seq,
	"selectID":  selectID,
	"levelOf":   levelName,
	"when":      formatTime,
	"ids":       joinIDs,
	"status":    statusClass,
	"flashOf":   flashOf,
	"historyOf": historyOf,
}).ParseFS(files, "html/*.html"))

func component(name string, data any) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return tmpl.ExecuteTemplate(w, name, data)
	})
}

type historyData struct {
	history.View
	AutoLoad bool
}

type flash struct {
	Message string
	Error   bool
}

func flashOf(msg string) flash { return flash{Message: msg} }

// historyOf marks a placeholder view to load the real history on display.
func historyOf(v history.View) historyData {
	return historyData{View: v, AutoLoad: v.Loading}
}

// Page is the full document.
func Page(p workspace.Page) templ.Component { return component("page", p) }

// Main is the filter, response bar, history and summary region.
func Main(p workspace.Page) templ.Component { return component("main", p) }

// History is the version navigator. With autoLoad the fragment fetches the
// real history as soon as it is shown.
func History(v history.View, autoLoad bool) templ.Component {
	return component("history", historyData{View: v, AutoLoad: autoLoad})
}

// Slots is the list of retrieval inputs.
func Slots(slots []retrieval.Slot) templ.Component { return component("slots", slots) }

// Jobs is the polled list of retrieval jobs.
func Jobs(jobs []domain.RetrievalJob) templ.Component { return component("jobs", jobs) }

// Flash is a one-line message.
func Flash(msg string, isError bool) templ.Component {
	return component("flash", flash{Message: msg, Error: isError})
}

// Recheck is the recheck button and its status line.
func Recheck(r workspace.Recheck) templ.Component { return component("recheck", r) }
