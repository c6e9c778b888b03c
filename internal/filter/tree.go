// Package filter builds the cascading assignment → exam → question selectors
// and derives the active set the grading server should browse.
package filter

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/csg33k/response-viewer/internal/domain"
)

// Level is one of the three cascading selectors.
type Level int

const (
	LevelAssignment Level = iota
	LevelExam
	LevelQuestion
)

var levelNames = [...]string{"assignment", "exam", "question"}

func (l Level) String() string {
	if l < 0 || int(l) >= len(levelNames) {
		return "level(" + strconv.Itoa(int(l)) + ")"
	}
	return levelNames[l]
}

// ParseLevel maps a route segment to a Level.
func ParseLevel(s string) (Level, error) {
	for i, n := range levelNames {
		if n == s {
			return Level(i), nil
		}
	}
	return 0, fmt.Errorf("filter: unknown level %q", s)
}

// Selector is the rendered state of one select element. Options never
// include the leading "all" entry; templates add it.
type Selector struct {
	Level    Level
	Options  []string
	Value    string
	Disabled bool
}

// Tree is the cascading filter.
type Tree struct {
	names *domain.NamesTree
	sel   [3]Selector
}

func New() *Tree {
	t := &Tree{names: &domain.NamesTree{}}
	for i := range t.sel {
		t.sel[i] = Selector{Level: Level(i), Value: domain.All}
	}
	return t
}

// Load replaces the tree and cascades from the assignment level.
func (t *Tree) Load(names *domain.NamesTree) {
	if names == nil || names.Tree == nil {
		names = &domain.NamesTree{Tree: map[string]map[string]map[string][]int64{}}
	}
	t.names = names
	populate(&t.sel[LevelAssignment], keys(names.Tree))
	t.updateExams()
}

// Select changes one level and cascades to the levels on its right.
func (t *Tree) Select(level Level, value string) error {
	if level < LevelAssignment || level > LevelQuestion {
		return fmt.Errorf("filter: unknown level %d", level)
	}
	s := &t.sel[level]
	if value != domain.All && !slices.Contains(s.Options, value) {
		return fmt.Errorf("filter: %q is not a %s option", value, level)
	}
	s.Value = value
	switch level {
	case LevelAssignment:
		t.updateExams()
	case LevelExam:
		t.updateQuestions()
	}
	return nil
}

// Selectors returns the three selectors, left to right.
func (t *Tree) Selectors() [3]Selector { return t.sel }

// Selection returns the current values.
func (t *Tree) Selection() domain.FilterSelection {
	return domain.FilterSelection{
		Assignment: t.sel[LevelAssignment].Value,
		Exam:       t.sel[LevelExam].Value,
		Question:   t.sel[LevelQuestion].Value,
	}
}

// ActiveSet maps the selected prefix (up to the first "all") to ids.
func (t *Tree) ActiveSet() ([]int64, error) {
	values := t.Selection().Values()
	out := make([]int64, 0, len(values))
	for i, name := range values {
		if name == domain.All {
			break
		}
		id, err := t.lookup(i, name)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func (t *Tree) lookup(level int, name string) (int64, error) {
	if t.names.IDs != nil {
		if level < len(t.names.IDs) {
			if id, ok := t.names.IDs[level][name]; ok {
				return id, nil
			}
		}
		return 0, fmt.Errorf("filter: no id for %s %q", Level(level), name)
	}
	id, err := strconv.ParseInt(name, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("filter: %s key %q is not an id: %w", Level(level), name, err)
	}
	return id, nil
}

func (t *Tree) updateExams() {
	aid := t.sel[LevelAssignment].Value
	var exams []string
	if aid == domain.All {
		for _, a := range t.names.Tree {
			exams = append(exams, keys(a)...)
		}
	} else {
		exams = keys(t.names.Tree[aid])
	}
	populate(&t.sel[LevelExam], exams)
	t.updateQuestions()
}

func (t *Tree) updateQuestions() {
	aid := t.sel[LevelAssignment].Value
	eid := t.sel[LevelExam].Value
	exam, question := &t.sel[LevelExam], &t.sel[LevelQuestion]
	exam.Disabled, question.Disabled = false, false

	var questions []string
	switch {
	case aid == domain.All:
		for _, a := range t.names.Tree {
			for _, e := range a {
				questions = append(questions, keys(e)...)
			}
		}
		exam.Value, exam.Disabled = domain.All, true
		question.Disabled = true
	case eid == domain.All:
		for _, e := range t.names.Tree[aid] {
			questions = append(questions, keys(e)...)
		}
		question.Disabled = true
	default:
		questions = keys(t.names.Tree[aid][eid])
	}
	populate(question, questions)
}

// populate replaces the options and resets the value to "all".
func populate(s *Selector, options []string) {
	s.Options = sortKeys(options)
	s.Value = domain.All
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// sortKeys deduplicates and orders options: numeric keys numerically and
// ahead of names, names lexically.
func sortKeys(ks []string) []string {
	out := slices.Clone(ks)
	slices.SortFunc(out, func(a, b string) int {
		ai, aErr := strconv.ParseInt(a, 10, 64)
		bi, bErr := strconv.ParseInt(b, 10, 64)
		switch {
		case aErr == nil && bErr == nil:
			switch {
			case ai < bi:
				return -1
			case ai > bi:
				return 1
			}
			return 0
		case aErr == nil:
			return -1
		case bErr == nil:
			return 1
		}
		return strings.Compare(a, b)
	})
	return slices.Compact(out)
}
