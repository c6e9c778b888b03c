package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/csg33k/response-viewer/internal/domain"
	"github.com/csg33k/response-viewer/internal/filter"
	"github.com/csg33k/response-viewer/internal/history"
	"github.com/csg33k/response-viewer/internal/ports"
	"github.com/csg33k/response-viewer/internal/summary"
	"github.com/csg33k/response-viewer/internal/templates"
	"github.com/csg33k/response-viewer/internal/workspace"
)

const sessionCookie = "rv_session"

type Handler struct {
	sessions *workspace.Sessions
	exporter ports.HistoryExporter
	log      *slog.Logger
}

func New(sessions *workspace.Sessions, exporter ports.HistoryExporter, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{sessions: sessions, exporter: exporter, log: log}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.accessLog)

	r.Get("/", h.index)
	r.Get("/healthz", h.healthz)

	r.Get("/history", h.history)
	r.Post("/history/version/{n}", h.gotoVersion)
	r.Post("/history/html-mode", h.htmlMode)
	r.Get("/history/external", h.external)
	r.Post("/history/{op}", h.navigate)
	r.Get("/history.pdf", h.historyPDF)

	r.Post("/responses/index", h.jumpIndex)
	r.Post("/responses/id", h.jumpID)
	r.Post("/responses/{dir}", h.moveResponse)

	r.Post("/filter/{level}", h.setFilter)

	r.Post("/retrieval", h.retrieve)
	r.Post("/retrieval/slots/{index}", h.commitSlot)
	r.Get("/retrieval/jobs", h.jobs)

	r.Post("/recheck", h.recheck)
	r.Get("/summary.xlsx", h.summaryXLSX)
	return r
}

// ── Page ──────────────────────────────────────────────────────────────────────

func (h *Handler) index(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(w, r)
	err := ws.Init(r.Context())
	if err != nil {
		h.log.Error("could not initialise workspace", "err", err)
	}
	p := ws.Page(r.Context())
	if err != nil && p.Flash == "" {
		p.Flash = userMessage(err)
	}
	render(w, r, templates.Page(p))
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "ok sessions=%d\n", h.sessions.Len())
}

// ── History ───────────────────────────────────────────────────────────────────

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	v, err := h.workspace(w, r).FetchHistory(r.Context())
	if err != nil {
		h.log.Error("could not fetch history", "err", err)
	}
	h.renderHistory(w, r, v)
}

func (h *Handler) navigate(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(w, r)
	var v history.View
	switch chi.URLParam(r, "op") {
	case "first":
		v = ws.First()
	case "last":
		v = ws.Last()
	case "next":
		v = ws.Next()
	case "previous":
		v = ws.Previous()
	case "significant":
		var err error
		v, err = ws.Significant(r.Context())
		if errors.Is(err, domain.ErrNoSignificantMatch) {
			h.log.Info("no significant version", "err", err)
		} else if err != nil {
			h.log.Error("could not find significant version", "err", err)
		}
	default:
		http.NotFound(w, r)
		return
	}
	h.renderHistory(w, r, v)
}

func (h *Handler) gotoVersion(w http.ResponseWriter, r *http.Request) {
	n, err := pathInt(r, "n")
	if err != nil {
		http.Error(w, "invalid version", 400)
		return
	}
	h.renderHistory(w, r, h.workspace(w, r).Goto(n))
}

func (h *Handler) htmlMode(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	v, err := h.workspace(w, r).SetHTMLMode(r.Context(), domain.HTMLMode(r.FormValue("mode")))
	if err != nil {
		h.log.Error("could not change html mode", "err", err)
	}
	h.renderHistory(w, r, v)
}

func (h *Handler) external(w http.ResponseWriter, r *http.Request) {
	url, err := h.workspace(w, r).ExternalURL()
	if err != nil {
		http.Error(w, userMessage(err), http.StatusNotFound)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

func (h *Handler) historyPDF(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.workspace(w, r).ExportHistory(r.Context(), h.exporter, &buf); err != nil {
		h.log.Error("could not export history", "err", err)
		http.Error(w, err.Error(), 500)
		return
	}
	filename := fmt.Sprintf("history_%s.pdf", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.Write(buf.Bytes())
}

func (h *Handler) renderHistory(w http.ResponseWriter, r *http.Request, v history.View) {
	render(w, r, templates.History(v, false))
}

// ── Responses ─────────────────────────────────────────────────────────────────

func (h *Handler) moveResponse(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(w, r)
	var (
		p   workspace.Page
		err error
	)
	switch chi.URLParam(r, "dir") {
	case "next":
		p, err = ws.NextResponse(r.Context())
	case "previous":
		p, err = ws.PreviousResponse(r.Context())
	default:
		http.NotFound(w, r)
		return
	}
	h.renderMain(w, r, p, err)
}

func (h *Handler) jumpIndex(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	p, err := h.workspace(w, r).JumpIndex(r.Context(), r.FormValue("index"))
	h.renderMain(w, r, p, err)
}

func (h *Handler) jumpID(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	p, err := h.workspace(w, r).JumpID(r.Context(), r.FormValue("response_id"))
	h.renderMain(w, r, p, err)
}

// ── Filter ────────────────────────────────────────────────────────────────────

func (h *Handler) setFilter(w http.ResponseWriter, r *http.Request) {
	level, err := filter.ParseLevel(chi.URLParam(r, "level"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	p, err := h.workspace(w, r).SetFilter(r.Context(), level, r.FormValue("value"))
	h.renderMain(w, r, p, err)
}

// renderMain logs err and shows it above the last known state.
func (h *Handler) renderMain(w http.ResponseWriter, r *http.Request, p workspace.Page, err error) {
	if err != nil {
		h.log.Error("request failed", "path", r.URL.Path, "err", err)
		if p.Flash == "" {
			p.Flash = userMessage(err)
		}
	}
	render(w, r, templates.Main(p))
}

// ── Retrieval ─────────────────────────────────────────────────────────────────

func (h *Handler) commitSlot(w http.ResponseWriter, r *http.Request) {
	index, err := pathInt(r, "index")
	if err != nil {
		http.Error(w, "invalid slot", 400)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	render(w, r, templates.Slots(h.workspace(w, r).CommitSlot(index, r.FormValue("value"))))
}

func (h *Handler) retrieve(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	ws := h.workspace(w, r)
	// Enter submits without blurring the focused input, so its value has
	// not been committed yet.
	if values, ok := r.PostForm["value"]; ok {
		ws.CommitSlots(values)
	}
	job, err := ws.Retrieve(r.Context(), r.PostFormValue("api_key"))
	if err != nil {
		h.log.Warn("retrieval not submitted", "err", err)
		render(w, r, templates.Flash(userMessage(err), true))
		return
	}
	render(w, r, templates.Flash(fmt.Sprintf("Retrieval #%d submitted for %d assignment(s).", job.ID, len(job.IDs)), false))
}

func (h *Handler) jobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.workspace(w, r).Jobs(r.Context())
	if err != nil {
		h.log.Error("could not list retrieval jobs", "err", err)
	}
	render(w, r, templates.Jobs(jobs))
}

// ── Recheck and summary ───────────────────────────────────────────────────────

func (h *Handler) recheck(w http.ResponseWriter, r *http.Request) {
	rc, err := h.workspace(w, r).Recheck(r.Context())
	if err != nil {
		h.log.Error("recheck failed", "err", err)
	}
	render(w, r, templates.Recheck(rc))
}

func (h *Handler) summaryXLSX(w http.ResponseWriter, r *http.Request) {
	t := h.workspace(w, r).SummaryTable()
	if t.Empty() {
		http.Error(w, "no summary table", http.StatusNotFound)
		return
	}
	var buf bytes.Buffer
	if err := summary.WriteXLSX(t, &buf); err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="summary.xlsx"`)
	w.Write(buf.Bytes())
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// workspace returns the caller's workspace, starting a session when the
// request carries none.
func (h *Handler) workspace(w http.ResponseWriter, r *http.Request) *workspace.Workspace {
	var id string
	if c, err := r.Cookie(sessionCookie); err == nil {
		id = c.Value
	}
	ws, sid, created := h.sessions.Get(id)
	if created {
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookie,
			Value:    sid,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return ws
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.log.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// render writes a templ component to the response.
func render(w http.ResponseWriter, r *http.Request, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := c.Render(r.Context(), w); err != nil {
		http.Error(w, err.Error(), 500)
	}
}

func pathInt(r *http.Request, key string) (int, error) {
	return strconv.Atoi(chi.URLParam(r, key))
}

var userErrors = []error{
	domain.ErrNoIDs,
	domain.ErrNoResultID,
	domain.ErrNoSignificantMatch,
	domain.ErrEmptyActiveSet,
}

// userMessage turns known errors into a sentence for the page.
func userMessage(err error) string {
	for _, known := range userErrors {
		if errors.Is(err, known) {
			return sentence(known.Error())
		}
	}
	return "Request failed: " + err.Error()
}

func sentence(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	s = string(unicode.ToUpper(r)) + s[n:]
	if !strings.HasSuffix(s, ".") {
		s += "."
	}
	return s
}
