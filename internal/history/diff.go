package history

import (
	"html/template"
	"log/slog"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/csg33k/response-viewer/internal/domain"
)

const (
	noPreviousMarker = "<i>*No previous version exists*</i>"
	nullMarker       = "<i>*NULL*</i>"
)

// Panes is the left/right pair shown side by side in the diff view.
type Panes struct {
	Left  template.HTML
	Right template.HTML
}

// policy accepts the markup the grading server sends for responses,
// including the inline colours it uses to highlight matched phrases.
var policy = func() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowStyles("background-color").OnElements("span", "p")
	p.AllowAttrs("class").OnElements("span")
	return p
}()

func sanitize(s string) string { return policy.Sanitize(s) }

// content renders a version body, making null content explicit.
func content(c *string) string {
	if c == nil {
		return nullMarker
	}
	return sanitize(*c)
}

// Render picks the rendering for snap's format and returns the panes for
// version p. Out-of-range pointers render empty panes.
func Render(snap *domain.HistorySnapshot, p int, log *slog.Logger) Panes {
	if p < 1 || p > snap.N() {
		return Panes{}
	}
	if snap.Format == domain.FormatOld {
		return RenderOld(snap, p)
	}
	return Fold(snap.Versions[p-1].Segments, log)
}

// RenderOld shows the submission before version p on the left and the one
// it produced on the right.
func RenderOld(snap *domain.HistorySnapshot, p int) Panes {
	before, after := snap.Change(p)
	if after == nil {
		return Panes{}
	}
	right := template.HTML(content(after.Content))
	if before == nil {
		return Panes{Left: noPreviousMarker, Right: right}
	}
	return Panes{
		Left:  template.HTML(content(before.Content)),
		Right: right,
	}
}

// Fold splits a diff into the old text (left) and new text (right).
func Fold(segs []domain.DiffSegment, log *slog.Logger) Panes {
	var left, right strings.Builder
	left.WriteString("<div>")
	right.WriteString("<div>")
	for _, seg := range segs {
		text := sanitize(seg.Text)
		switch seg.Sign {
		case "+":
			right.WriteString("<span class='text-plus'>" + text + "</span>")
		case "-":
			left.WriteString("<span class='text-minus'>" + text + "</span>")
		case " ":
			left.WriteString(text)
			right.WriteString(text)
		default:
			if log != nil {
				log.Error("unknown sign while processing diff", "sign", seg.Sign)
			}
		}
	}
	left.WriteString("</div>")
	right.WriteString("</div>")
	return Panes{Left: template.HTML(left.String()), Right: template.HTML(right.String())}
}
