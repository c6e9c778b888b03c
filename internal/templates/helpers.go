package templates

import (
	"strconv"
	"strings"
	"time"

	"github.com/csg33k/response-viewer/internal/domain"
	"github.com/csg33k/response-viewer/internal/filter"
)

// itoa converts an int64 to a string, used for building URL paths.
func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

// seq returns 1..n for the version strip.
func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

var selectIDs = [...]string{"aidSelect", "eidSelect", "qidSelect"}

func selectID(l filter.Level) string {
	if l < 0 || int(l) >= len(selectIDs) {
		return ""
	}
	return selectIDs[l]
}

func levelName(l filter.Level) string { return l.String() }

// formatTime accepts a time.Time or a *time.Time; unset times render "-".
func formatTime(v any) string {
	var t time.Time
	switch x := v.(type) {
	case time.Time:
		t = x
	case *time.Time:
		if x != nil {
			t = *x
		}
	}
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("Jan 02 15:04:05")
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = itoa(id)
	}
	return strings.Join(parts, ", ")
}

func statusClass(s domain.RetrievalStatus) string {
	switch s {
	case domain.RetrievalStarted:
		return "ok"
	case domain.RetrievalFailed:
		return "bad"
	}
	return "wait"
}
