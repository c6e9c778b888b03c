package domain

import (
	"errors"
	"time"
)

// FormatOld marks a history whose versions carry full content. Any other
// format value means each version is a list of diff segments.
const FormatOld = "old"

// All is the wildcard value of a filter level.
const All = "all"

var (
	ErrNoSignificantMatch = errors.New("no version matches the significant edit distance")
	ErrNoResultID         = errors.New("no result id could be found; retrieving the assignment again might fix this")
	ErrNoIDs              = errors.New("please provide at least one assignment id")
	ErrEmptyActiveSet     = errors.New("the active set contains no responses")
	ErrNotFound           = errors.New("not found")
)

// DiffSegment is one (sign, text) pair of a diff-format version.
// Sign is "+" for an addition, "-" for a deletion and " " for context.
type DiffSegment struct {
	Sign string
	Text string
}

// Version is one entry of the history payload. In the old format that is a
// full submission; in diff formats it is one change.
type Version struct {
	Ordinal int // position in the payload, from 1
	// Content is nil when the server reported null content.
	Content *string
	// Segments is set instead of Content for non-"old" formats.
	Segments []DiffSegment
	// Timestamp is the raw submission time reported by the server, if any.
	Timestamp string
}

// HistorySnapshot is everything the server reports about one response's
// version history. In the old format Versions holds the M submissions and
// version p is the change from submission p-1 to submission p (zero-based),
// so there are M-1 versions; a single submission is shown on its own.
// EditDistances and Timestamps are indexed by version: entry p-1 belongs to
// version p. A nil element means "absent".
type HistorySnapshot struct {
	Versions      []Version
	EditDistances []*float64
	Timestamps    []*float64
	Format        string
	// ResultID identifies the response in the external grading system.
	ResultID *int64
}

// N is the number of versions in the snapshot.
func (s *HistorySnapshot) N() int {
	if s == nil {
		return 0
	}
	m := len(s.Versions)
	if s.Format == FormatOld && m > 1 {
		return m - 1
	}
	return m
}

// Change returns the submissions on either side of old-format version p.
// before is nil when the response has a single submission; both are nil
// when p is out of range.
func (s *HistorySnapshot) Change(p int) (before, after *Version) {
	m := len(s.Versions)
	switch {
	case m == 1 && p == 1:
		return nil, &s.Versions[0]
	case p >= 1 && p < m:
		return &s.Versions[p-1], &s.Versions[p]
	}
	return nil, nil
}

// NavigationState is the version pointer and its bounds.
type NavigationState struct {
	Pointer            int // 1..Count once loaded, -1 after a reset
	Count              int
	PendingSignificant bool
}

// ResponseIdentity locates the active response inside the filtered set.
type ResponseIdentity struct {
	AssignmentID int64
	ExamID       int64
	QuestionID   int64
	ResponseID   int64
	Index        int // zero-based position in the active set
	Count        int // number of responses in the active set
}

// HTMLMode controls how the server prepares version content.
type HTMLMode string

const (
	HTMLKeep  HTMLMode = "Keep"
	HTMLShow  HTMLMode = "Show"
	HTMLStrip HTMLMode = "Strip"
)

// HTMLModes lists the modes in the order the selector offers them.
var HTMLModes = []HTMLMode{HTMLKeep, HTMLShow, HTMLStrip}

// Series is a list of numbers for a summary histogram. Available is false
// when the server reported the series as missing or "unavailable".
type Series struct {
	Values    []float64
	Available bool
}

// ResponseInfo is the payload the server returns for every response-level
// request (info, next/previous, jumps, active-set changes).
type ResponseInfo struct {
	Identity            ResponseIdentity
	HasIdentity         bool // false when the active set is empty
	MaxEditDistance     int64
	HTMLMode            HTMLMode
	NumVersions         Series
	AllMaxEditDistances Series
	CSV                 string
	HasCSV              bool
}

// FilterSelection holds the three cascading filter levels.
type FilterSelection struct {
	Assignment string
	Exam       string
	Question   string
}

// Values returns the selection as an ordered slice.
func (f FilterSelection) Values() [3]string {
	return [3]string{f.Assignment, f.Exam, f.Question}
}

// NamesTree is the nested assignment → exam → question → response-ids
// mapping, keyed by display name. IDs maps each level's names to ids. When
// IDs is nil the keys are the ids themselves.
type NamesTree struct {
	Tree map[string]map[string]map[string][]int64
	IDs  []map[string]int64
}

// RetrievalStatus is the lifecycle state of a bulk retrieval request.
type RetrievalStatus string

const (
	RetrievalPending RetrievalStatus = "pending"
	RetrievalStarted RetrievalStatus = "started"
	RetrievalFailed  RetrievalStatus = "failed"
)

// RetrievalJob records one submitted bulk retrieval. The access credential
// used for the request is never stored.
type RetrievalJob struct {
	ID         int64
	IDs        []int64
	Status     RetrievalStatus
	Error      string
	CreatedAt  time.Time
	FinishedAt *time.Time
}
