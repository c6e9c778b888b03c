// Package browser tracks which response of the active set is on screen.
package browser

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/csg33k/response-viewer/internal/domain"
)

// Boundary selects how the "next response" control detects the end of the
// active set.
type Boundary int

const (
	// BoundaryOneIndexed disables "next" once index >= count-1, which
	// also covers an empty set.
	BoundaryOneIndexed Boundary = iota
	// BoundaryLegacy disables "next" only when index == count-1.
	BoundaryLegacy
)

// Controls is the enabled state of the response navigation buttons.
type Controls struct {
	PreviousDisabled bool
	NextDisabled     bool
}

// State is what the response bar displays.
type State struct {
	Identity        domain.ResponseIdentity
	HasIdentity     bool
	IndexField      string
	ResponseIDField string
	MaxEditDistance int64
	HTMLMode        domain.HTMLMode
	Controls
}

// Browser holds the active response and the last payload it was given.
type Browser struct {
	boundary Boundary
	log      *slog.Logger

	identity    domain.ResponseIdentity
	hasIdentity bool
	info        *domain.ResponseInfo
}

func New(boundary Boundary, log *slog.Logger) *Browser {
	if log == nil {
		log = slog.Default()
	}
	return &Browser{boundary: boundary, log: log, identity: domain.ResponseIdentity{ResponseID: -1, Index: -1}}
}

// Process applies a response-info payload. It reports whether the unique
// response id changed; callers must then drop the history of the old
// response.
func (b *Browser) Process(info *domain.ResponseInfo) bool {
	changed := !b.hasIdentity || !info.HasIdentity ||
		info.Identity.ResponseID != b.identity.ResponseID
	b.info = info
	b.identity = info.Identity
	b.hasIdentity = info.HasIdentity
	if !info.HasIdentity {
		b.identity.ResponseID = -1
	}
	return changed
}

// ProcessSpecific applies the answer to a jump request. On failure the
// display falls back to the current response and false is returned.
func (b *Browser) ProcessSpecific(info *domain.ResponseInfo, err error) (changed bool, ok bool) {
	if err != nil {
		b.log.Warn("error while setting specific response", "err", err)
		return false, false
	}
	return b.Process(info), true
}

// Info is the most recent payload, or nil before the first one.
func (b *Browser) Info() *domain.ResponseInfo { return b.info }

// Identity is the active response.
func (b *Browser) Identity() (domain.ResponseIdentity, bool) { return b.identity, b.hasIdentity }

// SignificantEditDistance is the threshold used to jump to a version.
func (b *Browser) SignificantEditDistance() float64 {
	if b.info == nil {
		return 0
	}
	return float64(b.info.MaxEditDistance)
}

// State renders the response bar.
func (b *Browser) State() State {
	s := State{
		Identity:        b.identity,
		HasIdentity:     b.hasIdentity,
		IndexField:      strconv.Itoa(b.identity.Index),
		ResponseIDField: strconv.FormatInt(b.identity.ResponseID, 10),
		Controls:        b.controls(),
	}
	if b.info != nil {
		s.MaxEditDistance = b.info.MaxEditDistance
		s.HTMLMode = b.info.HTMLMode
	}
	return s
}

func (b *Browser) controls() Controls {
	idx, n := b.identity.Index, b.identity.Count
	c := Controls{PreviousDisabled: idx <= 0}
	if b.boundary == BoundaryLegacy {
		c.NextDisabled = idx == n-1
	} else {
		c.NextDisabled = idx >= n-1
	}
	return c
}

// ParseIndex reads a zero-based index typed by the user. Empty input
// reports ok=false without an error: the field simply reverts.
func ParseIndex(raw string) (int, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false, nil
	}
	i, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("browser: invalid index %q: %w", raw, err)
	}
	return i, true, nil
}

// ParseResponseID reads a response id typed by the user.
func ParseResponseID(raw string) (int64, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("browser: invalid response id %q: %w", raw, err)
	}
	return id, true, nil
}

// ExternalURL fills the result id into a results URL pattern such as
// "https://ans.app/results/%d".
func ExternalURL(pattern string, resultID int64) string {
	if strings.Contains(pattern, "%d") {
		return fmt.Sprintf(pattern, resultID)
	}
	return strings.TrimRight(pattern, "/") + "/" + strconv.FormatInt(resultID, 10)
}
