// Package workspace owns the UI state of one browser session and drives the
// grading API on its behalf.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/csg33k/response-viewer/internal/browser"
	"github.com/csg33k/response-viewer/internal/domain"
	"github.com/csg33k/response-viewer/internal/filter"
	"github.com/csg33k/response-viewer/internal/history"
	"github.com/csg33k/response-viewer/internal/ports"
	"github.com/csg33k/response-viewer/internal/retrieval"
	"github.com/csg33k/response-viewer/internal/summary"
)

const (
	versionsUnavailable      = "Histogram of number of submitted versions unavailable"
	editDistancesUnavailable = "Histogram of maximum edit distances unavailable"

	recheckDone    = "All responses have been processed"
	recheckPending = "Some responses have not been processed. They are being computed now!"

	jobListLimit = 20
)

// Options configure a workspace.
type Options struct {
	HistoryBoundary  history.Boundary
	ResponseBoundary browser.Boundary
	// ResultsURL is the pattern used to open a response externally.
	ResultsURL string
}

// Recheck is the state of the recheck button.
type Recheck struct {
	Disabled bool
	Message  string
}

// Summary is the per-question overview.
type Summary struct {
	Versions      summary.Chart
	EditDistances summary.Chart
	Table         summary.Table
}

// Page is everything a full render needs.
type Page struct {
	History   history.View
	Response  browser.State
	Filters   [3]filter.Selector
	Slots     []retrieval.Slot
	Jobs      []domain.RetrievalJob
	Summary   Summary
	Recheck   Recheck
	HTMLModes []domain.HTMLMode
	// Flash is a message for the user, e.g. why a retrieval was refused.
	Flash string
}

// Workspace is the state of one session. All methods are safe for
// concurrent use; operations on one workspace run one at a time.
type Workspace struct {
	mu sync.Mutex

	api        ports.GradingAPI
	dispatcher *retrieval.Dispatcher
	opts       Options
	log        *slog.Logger

	store   *history.Store
	nav     *history.Navigator
	browser *browser.Browser
	filter  *filter.Tree
	form    *retrieval.Form
	summary Summary
	recheck Recheck
}

func New(api ports.GradingAPI, dispatcher *retrieval.Dispatcher, opts Options, log *slog.Logger) *Workspace {
	if log == nil {
		log = slog.Default()
	}
	store := history.NewStore()
	w := &Workspace{
		api:        api,
		dispatcher: dispatcher,
		opts:       opts,
		log:        log,
		store:      store,
		nav:        history.NewNavigator(store, opts.HistoryBoundary, log.With("component", "history")),
		browser:    browser.New(opts.ResponseBoundary, log.With("component", "browser")),
		filter:     filter.New(),
		form:       retrieval.NewForm(log.With("component", "retrieval")),
	}
	w.summary = w.buildSummary(nil)
	return w
}

// ── Page lifecycle ────────────────────────────────────────────────────────────

// Init reloads the server state, builds the filter and submits its active
// set. The names tree and the response info are fetched concurrently. The
// history is fetched separately, see FetchHistory. A reload starts with an
// enabled recheck button and an empty retrieval form.
func (w *Workspace) Init(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.recheck = Recheck{}
	w.form = retrieval.NewForm(w.log.With("component", "retrieval"))

	var (
		info  *domain.ResponseInfo
		names *domain.NamesTree
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := w.api.Reload(gctx); err != nil {
			return fmt.Errorf("reload: %w", err)
		}
		var err error
		info, err = w.api.Info(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		names, err = w.api.NamesTree(gctx)
		if err != nil {
			w.log.Warn("names tree unavailable, falling back to id tree", "err", err)
			names, err = w.api.IDTree(gctx)
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("workspace: init: %w", err)
	}
	w.processInfo(info)

	w.filter.Load(names)
	if err := w.submitActiveSet(ctx); err != nil {
		return fmt.Errorf("workspace: init: %w", err)
	}
	return nil
}

// Page renders the whole workspace.
func (w *Workspace) Page(ctx context.Context) Page {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.page(ctx)
}

func (w *Workspace) page(ctx context.Context) Page {
	p := Page{
		History:   w.nav.View(),
		Response:  w.browser.State(),
		Filters:   w.filter.Selectors(),
		Slots:     w.form.Slots(),
		Summary:   w.summary,
		Recheck:   w.recheck,
		HTMLModes: domain.HTMLModes,
	}
	if !w.store.Loaded() {
		p.History = w.ShowPlaceholder()
	}
	if w.browser.Info() != nil && !p.Response.HasIdentity {
		p.Flash = domain.ErrEmptyActiveSet.Error()
	}
	if w.dispatcher != nil {
		jobs, err := w.dispatcher.Jobs(ctx, jobListLimit)
		if err != nil {
			w.log.Warn("could not list retrieval jobs", "err", err)
		}
		p.Jobs = jobs
	}
	return p
}

// ── History ───────────────────────────────────────────────────────────────────

// ShowPlaceholder renders the loading placeholder. The session's own
// history, and its remembered pointer, are left alone.
func (w *Workspace) ShowPlaceholder() history.View {
	s := history.NewStore()
	s.Load(history.Placeholder())
	return history.NewNavigator(s, w.opts.HistoryBoundary, w.log).View()
}

// FetchHistory replaces the snapshot with the server's history.
func (w *Workspace) FetchHistory(ctx context.Context) (history.View, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	err := w.fetchHistory(ctx)
	return w.nav.View(), err
}

func (w *Workspace) fetchHistory(ctx context.Context) error {
	snap, err := w.api.History(ctx)
	if err != nil {
		w.log.Error("could not fetch history", "err", err)
		return fmt.Errorf("workspace: history: %w", err)
	}
	_, err = w.nav.Apply(snap, w.browser.SignificantEditDistance())
	return err
}

func (w *Workspace) First() history.View    { return w.step((*history.Navigator).First) }
func (w *Workspace) Last() history.View     { return w.step((*history.Navigator).Last) }
func (w *Workspace) Next() history.View     { return w.step((*history.Navigator).Next) }
func (w *Workspace) Previous() history.View { return w.step((*history.Navigator).Previous) }

// Goto moves to version p.
func (w *Workspace) Goto(p int) history.View {
	w.mu.Lock()
	defer w.mu.Unlock()
	if n := w.store.Count(); p > n {
		p = n
	}
	return w.nav.SetPointer(p)
}

func (w *Workspace) step(f func(*history.Navigator) history.View) history.View {
	w.mu.Lock()
	defer w.mu.Unlock()
	return f(w.nav)
}

// Significant jumps to the version matching the significant edit distance,
// fetching the history first when its edit distances are not loaded yet.
func (w *Workspace) Significant(ctx context.Context) (history.View, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	threshold := w.browser.SignificantEditDistance()
	v, needsFetch, err := w.nav.GotoSignificant(threshold)
	if !needsFetch {
		return v, err
	}
	snap, err := w.api.History(ctx)
	if err != nil {
		w.log.Error("could not fetch history", "err", err)
		return w.nav.View(), fmt.Errorf("workspace: history: %w", err)
	}
	return w.nav.Apply(snap, threshold)
}

// SetHTMLMode asks the server to re-render content and applies the history
// it returns.
func (w *Workspace) SetHTMLMode(ctx context.Context, mode domain.HTMLMode) (history.View, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !slices.Contains(domain.HTMLModes, mode) {
		return w.nav.View(), fmt.Errorf("workspace: unknown html mode %q", mode)
	}
	snap, err := w.api.SetHTMLMode(ctx, mode)
	if err != nil {
		w.log.Error("could not change html mode", "mode", mode, "err", err)
		return w.nav.View(), fmt.Errorf("workspace: html mode: %w", err)
	}
	if info := w.browser.Info(); info != nil {
		info.HTMLMode = mode
	}
	return w.nav.Apply(snap, w.browser.SignificantEditDistance())
}

// ExternalURL is the results page of the current response.
func (w *Workspace) ExternalURL() (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	id, ok := w.store.ResultID()
	if !ok {
		return "", domain.ErrNoResultID
	}
	return browser.ExternalURL(w.opts.ResultsURL, id), nil
}

// ExportHistory writes the current history with exp.
func (w *Workspace) ExportHistory(ctx context.Context, exp ports.HistoryExporter, out io.Writer) error {
	w.mu.Lock()
	snap := w.store.Snapshot()
	id, _ := w.browser.Identity()
	w.mu.Unlock()
	return exp.Export(ctx, id, snap, out)
}

// ── Responses ─────────────────────────────────────────────────────────────────

func (w *Workspace) NextResponse(ctx context.Context) (Page, error) {
	return w.move(ctx, w.api.NextResponse)
}

func (w *Workspace) PreviousResponse(ctx context.Context) (Page, error) {
	return w.move(ctx, w.api.PreviousResponse)
}

func (w *Workspace) move(ctx context.Context, call func(context.Context) (*domain.ResponseInfo, error)) (Page, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	info, err := call(ctx)
	if err != nil {
		w.log.Error("could not change response", "err", err)
		return w.page(ctx), fmt.Errorf("workspace: response: %w", err)
	}
	return w.applyInfo(ctx, info)
}

// JumpIndex selects the response at a zero-based index typed by the user.
// Empty input and failed lookups fall back to the current response.
func (w *Workspace) JumpIndex(ctx context.Context, raw string) (Page, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	i, ok, err := browser.ParseIndex(raw)
	if err != nil || !ok {
		return w.page(ctx), err
	}
	return w.jump(ctx, func() (*domain.ResponseInfo, error) { return w.api.ResponseByIndex(ctx, i) })
}

// JumpID selects a response by id. Failed lookups fall back to the current
// response.
func (w *Workspace) JumpID(ctx context.Context, raw string) (Page, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	id, ok, err := browser.ParseResponseID(raw)
	if err != nil || !ok {
		return w.page(ctx), err
	}
	return w.jump(ctx, func() (*domain.ResponseInfo, error) { return w.api.ResponseByID(ctx, id) })
}

func (w *Workspace) jump(ctx context.Context, call func() (*domain.ResponseInfo, error)) (Page, error) {
	info, err := call()
	changed, ok := w.browser.ProcessSpecific(info, err)
	if !ok {
		return w.page(ctx), fmt.Errorf("workspace: jump: %w", err)
	}
	w.afterProcess(info, changed)
	err = w.fetchHistory(ctx)
	return w.page(ctx), err
}

// applyInfo processes a response-info payload and refreshes the history.
func (w *Workspace) applyInfo(ctx context.Context, info *domain.ResponseInfo) (Page, error) {
	w.processInfo(info)
	err := w.fetchHistory(ctx)
	return w.page(ctx), err
}

// processInfo applies info to the browser, dropping the history when the
// response changed. It reports whether it did.
func (w *Workspace) processInfo(info *domain.ResponseInfo) bool {
	changed := w.browser.Process(info)
	w.afterProcess(info, changed)
	return changed
}

func (w *Workspace) afterProcess(info *domain.ResponseInfo, changed bool) {
	if changed {
		w.log.Debug("response changed", "response", info.Identity.ResponseID)
		w.nav.Reset()
	}
	w.summary = w.buildSummary(info)
}

// ── Filter ────────────────────────────────────────────────────────────────────

// SetFilter changes one filter level and submits the new active set.
func (w *Workspace) SetFilter(ctx context.Context, level filter.Level, value string) (Page, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.filter.Select(level, value); err != nil {
		return w.page(ctx), err
	}
	if err := w.submitActiveSet(ctx); err != nil {
		return w.page(ctx), err
	}
	err := w.fetchHistory(ctx)
	return w.page(ctx), err
}

func (w *Workspace) submitActiveSet(ctx context.Context) error {
	ids, err := w.filter.ActiveSet()
	if err != nil {
		return fmt.Errorf("workspace: active set: %w", err)
	}
	w.log.Info("new active set", "ids", ids)
	info, err := w.api.SetActiveSet(ctx, ids)
	if err != nil {
		w.log.Error("could not set active set", "ids", ids, "err", err)
		return fmt.Errorf("workspace: active set: %w", err)
	}
	w.processInfo(info)
	if !info.HasIdentity {
		w.log.Warn("active set is empty", "ids", ids)
	}
	return nil
}

// ── Retrieval ─────────────────────────────────────────────────────────────────

// CommitSlot stores the value of one retrieval input.
func (w *Workspace) CommitSlot(index int, raw string) []retrieval.Slot {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.form.Commit(index, raw)
	return w.form.Slots()
}

// CommitSlots stores the values of all retrieval inputs in slot order, as
// posted with the form.
func (w *Workspace) CommitSlots(values []string) []retrieval.Slot {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, v := range values {
		w.form.Commit(i, v)
	}
	return w.form.Slots()
}

// Retrieve submits the filled-in ids with the given key.
func (w *Workspace) Retrieve(ctx context.Context, apiKey string) (*domain.RetrievalJob, error) {
	w.mu.Lock()
	ids := w.form.IDs()
	w.mu.Unlock()
	if w.dispatcher == nil {
		return nil, errors.New("workspace: retrieval is not configured")
	}
	return w.dispatcher.Submit(ctx, apiKey, ids)
}

// Jobs lists recent retrieval jobs.
func (w *Workspace) Jobs(ctx context.Context) ([]domain.RetrievalJob, error) {
	if w.dispatcher == nil {
		return nil, nil
	}
	return w.dispatcher.Jobs(ctx, jobListLimit)
}

// ── Recheck ───────────────────────────────────────────────────────────────────

// Recheck asks the server whether every response has been processed. The
// button stays disabled until the server reports that they all are.
func (w *Workspace) Recheck(ctx context.Context) (Recheck, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.recheck.Disabled = true
	done, err := w.api.Recheck(ctx)
	if err != nil {
		w.log.Error("recheck failed", "err", err)
		w.recheck.Disabled = false
		return w.recheck, fmt.Errorf("workspace: recheck: %w", err)
	}
	if done {
		w.recheck = Recheck{Message: recheckDone}
	} else {
		w.recheck = Recheck{Disabled: true, Message: recheckPending}
	}
	return w.recheck, nil
}

// ── Summary ───────────────────────────────────────────────────────────────────

// SummaryTable is the CSV table of the last payload.
func (w *Workspace) SummaryTable() summary.Table {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.summary.Table
}

func (w *Workspace) buildSummary(info *domain.ResponseInfo) Summary {
	if info == nil {
		return Summary{
			Versions:      summary.Histogram("", versionsUnavailable, domain.Series{}, w.log),
			EditDistances: summary.Histogram("", editDistancesUnavailable, domain.Series{}, w.log),
		}
	}
	exam, question := w.chartScope()
	s := Summary{
		Versions: summary.Histogram(fmt.Sprintf("#versions for %s #%d", exam, question),
			versionsUnavailable, info.NumVersions, w.log),
		EditDistances: summary.Histogram(fmt.Sprintf("max. edit distances for %s #%d", exam, question),
			editDistancesUnavailable, info.AllMaxEditDistances, w.log),
		Table: w.summary.Table,
	}
	if info.HasCSV {
		t, err := summary.ParseCSV(info.CSV)
		if err != nil {
			w.log.Warn("could not parse summary table", "err", err)
		}
		s.Table = t
	}
	return s
}

// chartScope names the selected exam and the position of the selected
// question in its selector, "all" counting as position 0.
func (w *Workspace) chartScope() (string, int) {
	sel := w.filter.Selectors()
	exam := sel[filter.LevelExam].Value
	q := sel[filter.LevelQuestion]
	pos := 0
	if i := slices.Index(q.Options, q.Value); i >= 0 {
		pos = i + 1
	}
	return exam, pos
}
