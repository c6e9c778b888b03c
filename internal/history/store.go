// Package history holds the version history of the active response and the
// state machine used to step through it.
package history

import (
	"strconv"

	"github.com/csg33k/response-viewer/internal/domain"
)

const loadingContent = "<i>Loading Response...</i>"

// Store is the in-memory history of one response.
type Store struct {
	snap    *domain.HistorySnapshot
	pointer int
}

// NewStore returns a store in the reset state.
func NewStore() *Store {
	s := &Store{}
	s.Reset()
	return s
}

// Reset drops the snapshot and the remembered pointer.
func (s *Store) Reset() {
	s.snap = &domain.HistorySnapshot{Format: domain.FormatOld}
	s.pointer = -1
}

// Load installs snap. The remembered pointer survives when it is still a
// valid version of snap; otherwise it moves to the final version.
func (s *Store) Load(snap *domain.HistorySnapshot) {
	if snap == nil {
		snap = &domain.HistorySnapshot{Format: domain.FormatOld}
	}
	s.snap = snap
	if s.pointer < 1 || s.pointer > snap.N() {
		s.pointer = snap.N()
	}
}

// Placeholder returns the snapshot shown while a fetch is in flight.
func Placeholder() *domain.HistorySnapshot {
	c1, c2 := loadingContent, loadingContent
	return &domain.HistorySnapshot{
		Format: domain.FormatOld,
		Versions: []domain.Version{
			{Ordinal: 1, Content: &c1},
			{Ordinal: 2, Content: &c2},
		},
	}
}

func (s *Store) Snapshot() *domain.HistorySnapshot { return s.snap }
func (s *Store) Pointer() int                      { return s.pointer }
func (s *Store) Count() int                        { return s.snap.N() }

// Loaded reports whether edit distances have arrived from the server.
func (s *Store) Loaded() bool { return s.snap.EditDistances != nil }

// ResultID is the external identifier of the response, if known.
func (s *Store) ResultID() (int64, bool) {
	if s.snap.ResultID == nil {
		return 0, false
	}
	return *s.snap.ResultID, true
}

// EditDistance returns the edit distance of version p.
func (s *Store) EditDistance(p int) (float64, bool) {
	return at(s.snap.EditDistances, p)
}

// EditDistanceText renders the edit distance of version p, "-" when absent.
func (s *Store) EditDistanceText(p int) string {
	v, ok := s.EditDistance(p)
	if !ok {
		return "-"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ElapsedText renders the time between version p and its predecessor.
func (s *Store) ElapsedText(p int) string {
	v, ok := at(s.snap.Timestamps, p)
	if !ok {
		return "-"
	}
	return FormatElapsed(v)
}

func (s *Store) setPointer(p int) { s.pointer = p }

func at(xs []*float64, p int) (float64, bool) {
	if p < 1 || p > len(xs) || xs[p-1] == nil {
		return 0, false
	}
	return *xs[p-1], true
}
