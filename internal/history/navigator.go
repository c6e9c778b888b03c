package history

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/csg33k/response-viewer/internal/domain"
)

// Boundary selects when the "first" and "previous" controls are disabled.
type Boundary int

const (
	// BoundaryOneIndexed disables them on version 1, the first valid version.
	BoundaryOneIndexed Boundary = iota
	// BoundaryLegacy disables them only at pointer 0, which a loaded history
	// never reaches, so they stay enabled on version 1.
	BoundaryLegacy
)

// ParseBoundary maps a config value to a Boundary. Empty means one-indexed.
func ParseBoundary(s string) (Boundary, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "one-indexed", "one_indexed":
		return BoundaryOneIndexed, nil
	case "legacy":
		return BoundaryLegacy, nil
	}
	return 0, fmt.Errorf("history: unknown navigation boundary %q", s)
}

// Threshold is the highest pointer at which "first"/"previous" are disabled.
func (b Boundary) Threshold() int {
	if b == BoundaryLegacy {
		return 0
	}
	return 1
}

func (b Boundary) String() string {
	if b == BoundaryLegacy {
		return "legacy"
	}
	return "one-indexed"
}

// Controls is the enabled state of the four version buttons.
type Controls struct {
	FirstDisabled    bool
	PreviousDisabled bool
	NextDisabled     bool
	LastDisabled     bool
}

// View is everything the history region displays.
type View struct {
	Pointer int
	Count   int
	Counter string
	Panes
	ShowEditDistance bool
	EditDistance     string
	ShowElapsed      bool
	Elapsed          string
	Controls
	ResultID    int64
	HasResultID bool
	Loading     bool
}

// Navigator steps a pointer through the versions held by a Store.
type Navigator struct {
	store    *Store
	boundary Boundary
	pending  bool
	log      *slog.Logger
}

func NewNavigator(store *Store, boundary Boundary, log *slog.Logger) *Navigator {
	if log == nil {
		log = slog.Default()
	}
	return &Navigator{store: store, boundary: boundary, log: log}
}

func (n *Navigator) Store() *Store { return n.store }

// State reports the navigation state.
func (n *Navigator) State() domain.NavigationState {
	return domain.NavigationState{
		Pointer:            n.store.Pointer(),
		Count:              n.store.Count(),
		PendingSignificant: n.pending,
	}
}

func (n *Navigator) First() View { return n.SetPointer(1) }

func (n *Navigator) Last() View { return n.SetPointer(n.store.Count()) }

func (n *Navigator) Next() View {
	p := n.store.Pointer()
	if p < n.store.Count() {
		p++
	}
	return n.SetPointer(p)
}

func (n *Navigator) Previous() View {
	p := n.store.Pointer()
	if p > 1 {
		p--
	}
	return n.SetPointer(p)
}

// GotoSignificant jumps to the first version whose edit distance equals
// threshold. While edit distances are missing it only marks the jump as
// pending and asks the caller to fetch the history.
func (n *Navigator) GotoSignificant(threshold float64) (View, bool, error) {
	if !n.store.Loaded() {
		n.pending = true
		return n.View(), true, nil
	}
	n.pending = false
	for i, ed := range n.store.Snapshot().EditDistances {
		if ed != nil && *ed == threshold {
			n.log.Debug("found significant version", "version", i+1, "edit_distance", threshold)
			return n.SetPointer(i + 1), false, nil
		}
	}
	n.log.Error("could not find significant edit distance",
		"edit_distance", threshold, "edit_distances", n.store.Snapshot().EditDistances)
	return n.View(), false, domain.ErrNoSignificantMatch
}

// Apply loads a fetched snapshot and redraws. A pending significant jump
// is carried out once the data is there.
func (n *Navigator) Apply(snap *domain.HistorySnapshot, threshold float64) (View, error) {
	n.store.Load(snap)
	if n.pending && n.store.Loaded() {
		v, _, err := n.GotoSignificant(threshold)
		return v, err
	}
	return n.SetPointer(n.store.Pointer()), nil
}

// SetPointer moves to version p (never below 1) and redraws.
func (n *Navigator) SetPointer(p int) View {
	if p < 1 {
		p = 1
	}
	n.store.setPointer(p)
	return n.View()
}

// View renders the current state without changing it.
func (n *Navigator) View() View {
	snap := n.store.Snapshot()
	p := n.store.Pointer()
	count := n.store.Count()

	v := View{
		Pointer: p,
		Count:   count,
		Counter: fmt.Sprintf("%d / %d", p, count),
		Panes:   Render(snap, p, n.log),
		Controls: Controls{
			NextDisabled:     p == count,
			LastDisabled:     p == count,
			PreviousDisabled: p <= n.boundary.Threshold(),
			FirstDisabled:    p <= n.boundary.Threshold(),
		},
		Loading: !n.store.Loaded(),
	}
	if snap.EditDistances != nil {
		v.ShowEditDistance = true
		v.EditDistance = n.store.EditDistanceText(p)
	}
	if snap.Timestamps != nil {
		v.ShowElapsed = true
		v.Elapsed = n.store.ElapsedText(p)
	}
	v.ResultID, v.HasResultID = n.store.ResultID()
	return v
}

// Pending reports whether a significant jump waits for data.
func (n *Navigator) Pending() bool { return n.pending }

// Reset forgets the loaded history along with any pending significant jump.
func (n *Navigator) Reset() {
	n.store.Reset()
	n.pending = false
}
