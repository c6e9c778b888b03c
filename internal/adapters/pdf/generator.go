// Package pdf renders the version history of one response as a printable
// report. Each version gets a section with its edit distance, the time since
// the previous version and the plain-text body; diff histories are printed with
// insertions in green and deletions struck in red.
package pdf

import (
	"context"
	"fmt"
	"html"
	"io"
	"strconv"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/microcosm-cc/bluemonday"

	"github.com/csg33k/response-viewer/internal/domain"
	"github.com/csg33k/response-viewer/internal/history"
	"github.com/csg33k/response-viewer/internal/ports"
)

var _ ports.HistoryExporter = Exporter{}

var strip = bluemonday.StrictPolicy()

// Exporter implements ports.HistoryExporter.
type Exporter struct{}

func (Exporter) Export(ctx context.Context, id domain.ResponseIdentity, s *domain.HistorySnapshot, w io.Writer) error {
	return GeneratePDF(ctx, id, s, w)
}

// GeneratePDF writes the history report to w.
func GeneratePDF(ctx context.Context, id domain.ResponseIdentity, s *domain.HistorySnapshot, w io.Writer) error {
	pdf := fpdf.New("P", "mm", "Letter", "")
	pdf.SetMargins(18, 18, 18)
	pdf.SetAutoPageBreak(true, 18)
	pdf.AliasNbPages("{nb}")
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	title := fmt.Sprintf("RESPONSE %d  VERSION HISTORY", id.ResponseID)
	pdf.SetHeaderFunc(func() { drawHeader(pdf, title) })
	pdf.SetFooterFunc(func() { drawFooter(pdf, id) })
	pdf.AddPage()

	if s.N() == 0 {
		pdf.SetFont("Helvetica", "I", 10)
		pdf.CellFormat(0, 8, "No versions were recorded for this response.", "", 1, "L", false, 0, "")
		return pdf.Output(w)
	}
	for p := 1; p <= s.N(); p++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		drawVersion(pdf, tr, s, p)
	}
	return pdf.Output(w)
}

func drawHeader(pdf *fpdf.Fpdf, title string) {
	pageW, _ := pdf.GetPageSize()
	marginL, marginT, marginR, _ := pdf.GetMargins()
	contentW := pageW - marginL - marginR

	pdf.SetFillColor(30, 30, 30)
	pdf.Rect(marginL, marginT, contentW, 10, "F")
	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Helvetica", "B", 11)
	pdf.SetXY(marginL+2, marginT+1.5)
	pdf.CellFormat(contentW-40, 7, title, "", 0, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(36, 7, "Page "+fmt.Sprint(pdf.PageNo())+" of {nb}", "", 1, "R", false, 0, "")
	pdf.SetTextColor(0, 0, 0)
	pdf.SetY(marginT + 14)
}

func drawFooter(pdf *fpdf.Fpdf, id domain.ResponseIdentity) {
	pageW, pageH := pdf.GetPageSize()
	marginL, _, marginR, marginB := pdf.GetMargins()
	contentW := pageW - marginL - marginR

	pdf.SetXY(marginL, pageH-marginB+4)
	pdf.SetFont("Helvetica", "I", 7.5)
	pdf.SetTextColor(130, 130, 130)
	pdf.CellFormat(contentW/2, 5, "Generated by Response Viewer", "", 0, "L", false, 0, "")
	pdf.CellFormat(contentW/2, 5, fmt.Sprintf("Assignment %d | Exam %d | Question %d", id.AssignmentID, id.ExamID, id.QuestionID), "", 0, "R", false, 0, "")
	pdf.SetTextColor(0, 0, 0)
}

func drawVersion(pdf *fpdf.Fpdf, tr func(string) string, s *domain.HistorySnapshot, p int) {
	pageW, _ := pdf.GetPageSize()
	marginL, _, marginR, _ := pdf.GetMargins()
	contentW := pageW - marginL - marginR
	v := &s.Versions[p-1]
	if s.Format == domain.FormatOld {
		_, v = s.Change(p)
	}

	// ── Section bar ──────────────────────────────────────────────────────────
	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Helvetica", "B", 8.5)
	pdf.SetX(marginL)
	third := contentW / 3
	pdf.CellFormat(third, 6.5, fmt.Sprintf("VERSION %d OF %d", p, s.N()), "LT", 0, "L", true, 0, "")
	pdf.SetFont("Helvetica", "", 8.5)
	pdf.CellFormat(third, 6.5, "Edit distance: "+number(s.EditDistances, p), "T", 0, "C", true, 0, "")
	pdf.CellFormat(third, 6.5, "Elapsed: "+elapsed(s.Timestamps, p), "RT", 1, "R", true, 0, "")
	if v.Timestamp != "" {
		pdf.SetFont("Helvetica", "I", 7.5)
		pdf.SetX(marginL)
		pdf.CellFormat(contentW, 5, tr(v.Timestamp), "LR", 1, "L", false, 0, "")
	}

	// ── Body ─────────────────────────────────────────────────────────────────
	pdf.SetFont("Helvetica", "", 9.5)
	pdf.SetX(marginL)
	if s.Format == domain.FormatOld {
		body := "*NULL*"
		if v.Content != nil {
			body = plain(*v.Content)
		}
		pdf.MultiCell(contentW, 5, tr(body), "LRB", "L", false)
	} else {
		drawSegments(pdf, tr, v.Segments)
		pdf.Ln(6)
		y := pdf.GetY()
		pdf.Line(marginL, y, marginL+contentW, y)
	}
	pdf.Ln(5)
}

func drawSegments(pdf *fpdf.Fpdf, tr func(string) string, segs []domain.DiffSegment) {
	for _, seg := range segs {
		text := tr(plain(seg.Text))
		switch seg.Sign {
		case "+":
			pdf.SetTextColor(20, 120, 40)
			pdf.SetFont("Helvetica", "B", 9.5)
		case "-":
			pdf.SetTextColor(170, 30, 30)
			pdf.SetFont("Helvetica", "S", 9.5)
		case " ":
			pdf.SetTextColor(0, 0, 0)
			pdf.SetFont("Helvetica", "", 9.5)
		default:
			continue
		}
		pdf.Write(5, text)
	}
	pdf.SetTextColor(0, 0, 0)
	pdf.SetFont("Helvetica", "", 9.5)
}

// ── Helpers ──────────────────────────────────────────────────────────────────

// plain drops markup, keeping paragraph breaks as newlines.
func plain(s string) string {
	r := strings.NewReplacer("</p>", "\n", "<br>", "\n", "<br/>", "\n", "<br />", "\n")
	return strings.TrimRight(html.UnescapeString(strip.Sanitize(r.Replace(s))), "\n")
}

func number(xs []*float64, p int) string {
	if p < 1 || p > len(xs) || xs[p-1] == nil {
		return "-"
	}
	return strconv.FormatFloat(*xs[p-1], 'f', -1, 64)
}

func elapsed(xs []*float64, p int) string {
	if p < 1 || p > len(xs) || xs[p-1] == nil {
		return "-"
	}
	return history.FormatElapsed(*xs[p-1])
}
