// Package retrieval collects assignment ids and starts bulk retrievals on
// the grading server.
package retrieval

import (
	"log/slog"
	"strconv"
	"strings"
)

// Slot is one numeric input of the form.
type Slot struct {
	Index int
	Value string
}

// Form is a sparse, growing list of optional ids.
type Form struct {
	ids []*int64
	log *slog.Logger
}

func NewForm(log *slog.Logger) *Form {
	if log == nil {
		log = slog.Default()
	}
	return &Form{log: log}
}

// Slots returns one slot per entry plus a trailing empty slot for appending.
func (f *Form) Slots() []Slot {
	out := make([]Slot, 0, len(f.ids)+1)
	for i, id := range f.ids {
		s := Slot{Index: i}
		if id != nil {
			s.Value = strconv.FormatInt(*id, 10)
		}
		out = append(out, s)
	}
	return append(out, Slot{Index: len(f.ids)})
}

// Commit stores the value typed into slot index. An empty value clears the
// slot; the list grows with empty slots when index is past its end.
func (f *Form) Commit(index int, raw string) {
	if index < 0 {
		f.log.Warn("retrieval slot index below zero", "index", index)
		return
	}
	var val *int64
	if raw = strings.TrimSpace(raw); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			f.log.Warn("retrieval slot value is not a number", "index", index, "value", raw)
		} else {
			val = &n
		}
	}
	for index >= len(f.ids) {
		f.ids = append(f.ids, nil)
	}
	f.ids[index] = val
	f.log.Debug("retrieval list updated", "len", len(f.ids))
}

// Len is the number of slots including empty ones, excluding the trailer.
func (f *Form) Len() int { return len(f.ids) }

// IDs returns the filled-in ids in slot order.
func (f *Form) IDs() []int64 {
	out := make([]int64, 0, len(f.ids))
	for _, id := range f.ids {
		if id != nil {
			out = append(out, *id)
		}
	}
	return out
}
