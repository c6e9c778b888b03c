package gradingapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/csg33k/response-viewer/internal/domain"
)

// APIError is an error payload ({"error": ...}) or a failing status code.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("grading api: http %d", e.Status)
	}
	return fmt.Sprintf("grading api: http %d: %s", e.Status, e.Message)
}

// errorMessage flattens the error field, which the server sends either as a
// string or as a list of exception arguments.
func errorMessage(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var list []any
	if err := json.Unmarshal(raw, &list); err == nil {
		parts := make([]string, len(list))
		for i, v := range list {
			parts[i] = fmt.Sprint(v)
		}
		return strings.Join(parts, "; ")
	}
	return string(raw)
}

func isNull(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

type infoWire struct {
	RID                 []int64         `json:"rid"`
	Index               int             `json:"index"`
	NResponses          int             `json:"n_responses"`
	MaxED               float64         `json:"max_ed"`
	HTML                string          `json:"html"`
	NumVersions         json.RawMessage `json:"num_versions"`
	BoxPlot             json.RawMessage `json:"box_plot"`
	AllMaxEditDistances json.RawMessage `json:"all_max_edit_distances"`
	CSV                 *string         `json:"csv"`
}

func (w *infoWire) toDomain() *domain.ResponseInfo {
	info := &domain.ResponseInfo{
		MaxEditDistance:     int64(w.MaxED),
		HTMLMode:            domain.HTMLMode(w.HTML),
		NumVersions:         decodeSeries(w.NumVersions),
		AllMaxEditDistances: decodeSeries(w.AllMaxEditDistances),
	}
	if !info.NumVersions.Available {
		info.NumVersions = decodeSeries(w.BoxPlot)
	}
	if w.CSV != nil {
		info.CSV, info.HasCSV = *w.CSV, true
	}
	info.Identity.Index = w.Index
	info.Identity.Count = w.NResponses
	if len(w.RID) == 4 {
		info.HasIdentity = true
		info.Identity.AssignmentID = w.RID[0]
		info.Identity.ExamID = w.RID[1]
		info.Identity.QuestionID = w.RID[2]
		info.Identity.ResponseID = w.RID[3]
	}
	return info
}

// decodeSeries accepts a list of numbers; anything else, including the
// string "unavailable", is reported as unavailable.
func decodeSeries(raw json.RawMessage) domain.Series {
	if isNull(raw) {
		return domain.Series{}
	}
	var xs []*float64
	if err := json.Unmarshal(raw, &xs); err != nil {
		return domain.Series{}
	}
	out := domain.Series{Values: make([]float64, 0, len(xs)), Available: true}
	for _, x := range xs {
		if x != nil {
			out.Values = append(out.Values, *x)
		}
	}
	return out
}

type historyWire struct {
	History       []json.RawMessage `json:"history"`
	EditDistances []*float64        `json:"edit_distances"`
	Timestamps    []*float64        `json:"timestamps"`
	Format        string            `json:"format"`
}

type oldVersionWire struct {
	Changes struct {
		Content *string `json:"content"`
	} `json:"changes"`
	ResultID  *int64  `json:"result_id"`
	Timestamp *string `json:"timestamp"`
}

func (w *historyWire) toDomain() (*domain.HistorySnapshot, error) {
	snap := &domain.HistorySnapshot{
		Format:        w.Format,
		EditDistances: w.EditDistances,
		Timestamps:    w.Timestamps,
		Versions:      make([]domain.Version, 0, len(w.History)),
	}
	if snap.Format == "" {
		snap.Format = domain.FormatOld
	}
	// Received data counts as loaded even when the lists are empty.
	if snap.EditDistances == nil {
		snap.EditDistances = []*float64{}
	}
	if snap.Timestamps == nil {
		snap.Timestamps = []*float64{}
	}

	for i, raw := range w.History {
		v := domain.Version{Ordinal: i + 1}
		if snap.Format == domain.FormatOld {
			var ov oldVersionWire
			if err := json.Unmarshal(raw, &ov); err != nil {
				return nil, fmt.Errorf("grading api: version %d: %w", i+1, err)
			}
			v.Content = ov.Changes.Content
			if ov.Timestamp != nil {
				v.Timestamp = *ov.Timestamp
			}
			if i == 0 {
				snap.ResultID = ov.ResultID
			}
		} else {
			segs, err := decodeSegments(raw)
			if err != nil {
				return nil, fmt.Errorf("grading api: version %d: %w", i+1, err)
			}
			v.Segments = segs
		}
		snap.Versions = append(snap.Versions, v)
	}
	// Old-format timestamps carry one entry per submission, the first being
	// zero; versions are the changes between submissions.
	if snap.Format == domain.FormatOld && len(w.History) > 1 && len(snap.Timestamps) == len(w.History) {
		snap.Timestamps = snap.Timestamps[1:]
	}
	return snap, nil
}

// decodeSegments reads [[sign, text], ...]. Malformed pairs keep an empty
// sign so the renderer logs and skips them.
func decodeSegments(raw json.RawMessage) ([]domain.DiffSegment, error) {
	var pairs [][]json.RawMessage
	if err := json.Unmarshal(raw, &pairs); err != nil {
		return nil, err
	}
	out := make([]domain.DiffSegment, 0, len(pairs))
	for _, p := range pairs {
		var seg domain.DiffSegment
		if len(p) == 2 {
			if err := json.Unmarshal(p[0], &seg.Sign); err != nil {
				seg.Sign = ""
			}
			if err := json.Unmarshal(p[1], &seg.Text); err != nil {
				seg.Sign = ""
			}
		}
		out = append(out, seg)
	}
	return out, nil
}

// treeWire is assignment → exam → question → leaf. Leaves are normally
// lists of response ids.
type treeWire map[string]map[string]map[string]json.RawMessage

func (t treeWire) toDomain() map[string]map[string]map[string][]int64 {
	out := make(map[string]map[string]map[string][]int64, len(t))
	for a, exams := range t {
		out[a] = make(map[string]map[string][]int64, len(exams))
		for e, questions := range exams {
			out[a][e] = make(map[string][]int64, len(questions))
			for q, leaf := range questions {
				var ids []int64
				_ = json.Unmarshal(leaf, &ids)
				out[a][e][q] = ids
			}
		}
	}
	return out
}

func decodeNamesTree(body []byte) (*domain.NamesTree, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(body, &parts); err != nil {
		return nil, fmt.Errorf("grading api: names tree: %w", err)
	}
	if len(parts) < 2 {
		return nil, fmt.Errorf("grading api: names tree: expected [tree, ids], got %d parts", len(parts))
	}
	var tree treeWire
	if err := json.Unmarshal(parts[0], &tree); err != nil {
		return nil, fmt.Errorf("grading api: names tree: %w", err)
	}
	var ids []map[string]int64
	if err := json.Unmarshal(parts[1], &ids); err != nil {
		return nil, fmt.Errorf("grading api: names tree ids: %w", err)
	}
	return &domain.NamesTree{Tree: tree.toDomain(), IDs: ids}, nil
}

func decodeIDTree(body []byte) (*domain.NamesTree, error) {
	var tree treeWire
	if err := json.Unmarshal(body, &tree); err != nil {
		return nil, fmt.Errorf("grading api: id tree: %w", err)
	}
	return &domain.NamesTree{Tree: tree.toDomain()}, nil
}
