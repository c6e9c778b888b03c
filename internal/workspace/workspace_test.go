package workspace

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csg33k/response-viewer/internal/domain"
	"github.com/csg33k/response-viewer/internal/filter"
	"github.com/csg33k/response-viewer/internal/history"
	"github.com/csg33k/response-viewer/internal/retrieval"
)

func ptr[T any](v T) *T { return &v }

// fakeAPI serves a fixed set of responses, each with its own history.
type fakeAPI struct {
	mu        sync.Mutex
	responses []int64
	index     int
	histories map[int64]*domain.HistorySnapshot
	maxED     int64
	activeSet [][]int64
	calls     map[string]int
	recheck   []bool
	failNext  error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		responses: []int64{44, 45, 46},
		histories: map[int64]*domain.HistorySnapshot{
			44: oldHistory(4, []float64{5, 3, 9, 3}),
			45: oldHistory(2, []float64{0, 7}),
			46: oldHistory(1, []float64{0}),
		},
		maxED: 3,
		calls: map[string]int{},
	}
}

// oldHistory builds n versions, i.e. n+1 submissions.
func oldHistory(n int, eds []float64) *domain.HistorySnapshot {
	s := &domain.HistorySnapshot{Format: domain.FormatOld, ResultID: ptr(int64(900 + n))}
	for i := 0; i < n+1; i++ {
		s.Versions = append(s.Versions, domain.Version{Ordinal: i + 1, Content: ptr("v")})
	}
	for i := 0; i < n; i++ {
		s.EditDistances = append(s.EditDistances, ptr(eds[i]))
		s.Timestamps = append(s.Timestamps, ptr(float64((i+1)*60)))
	}
	return s
}

func (f *fakeAPI) hit(name string) error {
	f.calls[name]++
	if err := f.failNext; err != nil {
		f.failNext = nil
		return err
	}
	return nil
}

func (f *fakeAPI) info() *domain.ResponseInfo {
	if len(f.responses) == 0 {
		return &domain.ResponseInfo{HTMLMode: domain.HTMLStrip}
	}
	return &domain.ResponseInfo{
		Identity: domain.ResponseIdentity{
			AssignmentID: 1, ExamID: 2, QuestionID: 3,
			ResponseID: f.responses[f.index], Index: f.index, Count: len(f.responses),
		},
		HasIdentity:     true,
		MaxEditDistance: f.maxED,
		HTMLMode:        domain.HTMLStrip,
		NumVersions:     domain.Series{Values: []float64{4, 2, 1}, Available: true},
		CSV:             "id,versions\n44,4\n45,2\n46,1",
		HasCSV:          true,
	}
}

func (f *fakeAPI) Reload(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hit("reload")
}

func (f *fakeAPI) Info(context.Context) (*domain.ResponseInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.info(), f.hit("info")
}

func (f *fakeAPI) NextResponse(context.Context) (*domain.ResponseInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.index < len(f.responses)-1 {
		f.index++
	}
	return f.info(), f.hit("next")
}

func (f *fakeAPI) PreviousResponse(context.Context) (*domain.ResponseInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.index > 0 {
		f.index--
	}
	return f.info(), f.hit("previous")
}

func (f *fakeAPI) ResponseByIndex(_ context.Context, i int) (*domain.ResponseInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i < 0 || i >= len(f.responses) {
		return nil, errors.New("index out of range")
	}
	f.index = i
	return f.info(), f.hit("index")
}

func (f *fakeAPI) ResponseByID(_ context.Context, id int64) (*domain.ResponseInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, r := range f.responses {
		if r == id {
			f.index = i
			return f.info(), f.hit("id")
		}
	}
	return nil, errors.New("response id is not in the active set of responses")
}

func (f *fakeAPI) SetActiveSet(_ context.Context, ids []int64) (*domain.ResponseInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activeSet = append(f.activeSet, ids)
	f.index = 0
	return f.info(), f.hit("active_set")
}

func (f *fakeAPI) History(context.Context) (*domain.HistorySnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("history"); err != nil {
		return nil, err
	}
	if len(f.responses) == 0 {
		return &domain.HistorySnapshot{Format: domain.FormatOld, EditDistances: []*float64{}, Timestamps: []*float64{}}, nil
	}
	return f.histories[f.responses[f.index]], nil
}

func (f *fakeAPI) SetHTMLMode(ctx context.Context, _ domain.HTMLMode) (*domain.HistorySnapshot, error) {
	return f.History(ctx)
}

func (f *fakeAPI) NamesTree(context.Context) (*domain.NamesTree, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &domain.NamesTree{
		Tree: map[string]map[string]map[string][]int64{
			"Algebra": {"Midterm": {"Q1": {44, 45}, "Q2": {46}}},
		},
		IDs: []map[string]int64{{"Algebra": 1}, {"Midterm": 2}, {"Q1": 3, "Q2": 4}},
	}, f.hit("names")
}

func (f *fakeAPI) IDTree(context.Context) (*domain.NamesTree, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &domain.NamesTree{Tree: map[string]map[string]map[string][]int64{}}, f.hit("ids")
}

func (f *fakeAPI) StartRetrieval(context.Context, string, []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hit("retrieval")
}

func (f *fakeAPI) Recheck(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	done := true
	if len(f.recheck) > 0 {
		done, f.recheck = f.recheck[0], f.recheck[1:]
	}
	return done, f.hit("recheck")
}

type memRepo struct {
	mu   sync.Mutex
	jobs []domain.RetrievalJob
}

func (r *memRepo) CreateJob(_ context.Context, j *domain.RetrievalJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j.ID = int64(len(r.jobs) + 1)
	r.jobs = append(r.jobs, *j)
	return nil
}

func (r *memRepo) FinishJob(_ context.Context, id int64, status domain.RetrievalStatus, msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[id-1].Status, r.jobs[id-1].Error = status, msg
	return nil
}

func (r *memRepo) GetJob(_ context.Context, id int64) (*domain.RetrievalJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j := r.jobs[id-1]
	return &j, nil
}

func (r *memRepo) ListJobs(context.Context, int) ([]domain.RetrievalJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.RetrievalJob(nil), r.jobs...), nil
}

func newWorkspace(t *testing.T, api *fakeAPI) (*Workspace, *retrieval.Dispatcher) {
	t.Helper()
	d := retrieval.NewDispatcher(api, &memRepo{}, time.Second, nil)
	ws := New(api, d, Options{ResultsURL: "https://ans.app/results/%d"}, nil)
	return ws, d
}

func TestInit_SubmitsAllAndShowsPlaceholder(t *testing.T) {
	api := newFakeAPI()
	ws, _ := newWorkspace(t, api)
	ctx := context.Background()

	require.NoError(t, ws.Init(ctx))
	assert.Equal(t, 1, api.calls["reload"])
	assert.Equal(t, 1, api.calls["names"])
	require.Len(t, api.activeSet, 1)
	assert.Empty(t, api.activeSet[0], "everything selected means an empty prefix")

	page := ws.Page(ctx)
	assert.True(t, page.History.Loading)
	assert.Equal(t, "1 / 1", page.History.Counter, "placeholder is a single change")
	assert.Equal(t, []string{"Algebra"}, page.Filters[filter.LevelAssignment].Options)
	assert.True(t, page.Response.HasIdentity)
	assert.True(t, page.Summary.Versions.Available)
	assert.Equal(t, []string{"id", "versions"}, page.Summary.Table.Header)
	assert.Len(t, page.HTMLModes, 3)
}

func TestFetchHistory_StartsAtLastVersionAndKeepsPointer(t *testing.T) {
	api := newFakeAPI()
	ws, _ := newWorkspace(t, api)
	ctx := context.Background()
	require.NoError(t, ws.Init(ctx))

	v, err := ws.FetchHistory(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, v.Pointer)
	assert.False(t, v.Loading)
	assert.True(t, v.NextDisabled)

	ws.Previous()
	v = ws.Previous()
	assert.Equal(t, 2, v.Pointer)

	v, err = ws.FetchHistory(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, v.Pointer, "a refetch of the same response keeps the pointer")
}

func TestSignificant_FetchesWhenNotLoaded(t *testing.T) {
	api := newFakeAPI()
	ws, _ := newWorkspace(t, api)
	ctx := context.Background()
	require.NoError(t, ws.Init(ctx))

	v, err := ws.Significant(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, v.Pointer, "first version with edit distance 3")
	assert.Equal(t, 1, api.calls["history"])

	ws.Last()
	v, err = ws.Significant(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, v.Pointer)
	assert.Equal(t, 1, api.calls["history"], "loaded data is scanned without a fetch")
}

func TestSignificant_NoMatchLeavesPointer(t *testing.T) {
	api := newFakeAPI()
	api.maxED = 42
	ws, _ := newWorkspace(t, api)
	ctx := context.Background()
	require.NoError(t, ws.Init(ctx))
	_, err := ws.FetchHistory(ctx)
	require.NoError(t, err)

	v, err := ws.Significant(ctx)
	assert.ErrorIs(t, err, domain.ErrNoSignificantMatch)
	assert.Equal(t, 4, v.Pointer)
}

func TestNextResponse_DropsPendingSignificant(t *testing.T) {
	api := newFakeAPI()
	api.histories[45] = oldHistory(2, []float64{3, 7})
	ws, _ := newWorkspace(t, api)
	ctx := context.Background()
	require.NoError(t, ws.Init(ctx))

	api.failNext = errors.New("down")
	_, err := ws.Significant(ctx)
	require.Error(t, err)

	page, err := ws.NextResponse(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 45, page.Response.Identity.ResponseID)
	assert.Equal(t, 2, page.History.Pointer, "the jump asked for on 44 is not carried over to 45")
	assert.False(t, ws.nav.Pending())
}

func TestNextResponse_ResetsHistory(t *testing.T) {
	api := newFakeAPI()
	ws, _ := newWorkspace(t, api)
	ctx := context.Background()
	require.NoError(t, ws.Init(ctx))
	_, err := ws.FetchHistory(ctx)
	require.NoError(t, err)
	ws.First()

	page, err := ws.NextResponse(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 45, page.Response.Identity.ResponseID)
	assert.Equal(t, 2, page.History.Pointer, "new response starts at its last version")
	assert.Equal(t, 2, page.History.Count)
	assert.False(t, page.Response.PreviousDisabled)

	page, err = ws.PreviousResponse(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 44, page.Response.Identity.ResponseID)
	assert.Equal(t, 4, page.History.Pointer)
	assert.True(t, page.Response.PreviousDisabled)
}

func TestJump_FallsBackOnError(t *testing.T) {
	api := newFakeAPI()
	ws, _ := newWorkspace(t, api)
	ctx := context.Background()
	require.NoError(t, ws.Init(ctx))

	page, err := ws.JumpID(ctx, "46")
	require.NoError(t, err)
	assert.EqualValues(t, 46, page.Response.Identity.ResponseID)
	assert.Equal(t, "46", page.Response.ResponseIDField)

	page, err = ws.JumpID(ctx, "999")
	assert.Error(t, err)
	assert.Equal(t, "46", page.Response.ResponseIDField, "field reverts to the current response")

	page, err = ws.JumpIndex(ctx, "1")
	require.NoError(t, err)
	assert.EqualValues(t, 45, page.Response.Identity.ResponseID)

	page, err = ws.JumpIndex(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "1", page.Response.IndexField)

	_, err = ws.JumpIndex(ctx, "abc")
	assert.Error(t, err)
}

func TestSetFilter_SubmitsPrefix(t *testing.T) {
	api := newFakeAPI()
	ws, _ := newWorkspace(t, api)
	ctx := context.Background()
	require.NoError(t, ws.Init(ctx))

	_, err := ws.SetFilter(ctx, filter.LevelAssignment, "Algebra")
	require.NoError(t, err)
	page, err := ws.SetFilter(ctx, filter.LevelExam, "Midterm")
	require.NoError(t, err)
	_, err = ws.SetFilter(ctx, filter.LevelQuestion, "Q2")
	require.NoError(t, err)

	require.Len(t, api.activeSet, 4)
	assert.Equal(t, []int64{1}, api.activeSet[1])
	assert.Equal(t, []int64{1, 2}, api.activeSet[2])
	assert.Equal(t, []int64{1, 2, 4}, api.activeSet[3])
	assert.Equal(t, []string{"Q1", "Q2"}, page.Filters[filter.LevelQuestion].Options)

	_, err = ws.SetFilter(ctx, filter.LevelExam, "Final")
	assert.Error(t, err)
	assert.Len(t, api.activeSet, 4)
}

func TestEmptyActiveSet_Flash(t *testing.T) {
	api := newFakeAPI()
	api.responses = nil
	ws, _ := newWorkspace(t, api)
	ctx := context.Background()
	require.NoError(t, ws.Init(ctx))

	page := ws.Page(ctx)
	assert.False(t, page.Response.HasIdentity)
	assert.Equal(t, domain.ErrEmptyActiveSet.Error(), page.Flash)
	assert.True(t, page.Response.NextDisabled)
}

func TestExternalURL(t *testing.T) {
	api := newFakeAPI()
	ws, _ := newWorkspace(t, api)
	ctx := context.Background()
	require.NoError(t, ws.Init(ctx))

	_, err := ws.ExternalURL()
	assert.ErrorIs(t, err, domain.ErrNoResultID)

	_, err = ws.FetchHistory(ctx)
	require.NoError(t, err)
	url, err := ws.ExternalURL()
	require.NoError(t, err)
	assert.Equal(t, "https://ans.app/results/904", url)
}

func TestSetHTMLMode(t *testing.T) {
	api := newFakeAPI()
	ws, _ := newWorkspace(t, api)
	ctx := context.Background()
	require.NoError(t, ws.Init(ctx))

	v, err := ws.SetHTMLMode(ctx, domain.HTMLShow)
	require.NoError(t, err)
	assert.Equal(t, 4, v.Count)
	assert.Equal(t, domain.HTMLShow, ws.Page(ctx).Response.HTMLMode)

	_, err = ws.SetHTMLMode(ctx, "Bold")
	assert.Error(t, err)
}

func TestRetrieve(t *testing.T) {
	api := newFakeAPI()
	ws, d := newWorkspace(t, api)
	ctx := context.Background()

	_, err := ws.Retrieve(ctx, "key")
	assert.ErrorIs(t, err, domain.ErrNoIDs)

	ws.CommitSlot(0, "12")
	slots := ws.CommitSlot(2, "13")
	assert.Len(t, slots, 4)

	job, err := ws.Retrieve(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, []int64{12, 13}, job.IDs)
	d.Wait()

	jobs, err := ws.Jobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, domain.RetrievalStarted, jobs[0].Status)
}

func TestRecheck(t *testing.T) {
	api := newFakeAPI()
	api.recheck = []bool{false, true}
	ws, _ := newWorkspace(t, api)
	ctx := context.Background()

	r, err := ws.Recheck(ctx)
	require.NoError(t, err)
	assert.True(t, r.Disabled)
	assert.Equal(t, recheckPending, r.Message)

	r, err = ws.Recheck(ctx)
	require.NoError(t, err)
	assert.False(t, r.Disabled)
	assert.Equal(t, recheckDone, r.Message)

	api.failNext = errors.New("down")
	r, err = ws.Recheck(ctx)
	assert.Error(t, err)
	assert.False(t, r.Disabled)
}

func TestInit_ResetsRecheckAndRetrievalForm(t *testing.T) {
	api := newFakeAPI()
	api.recheck = []bool{false}
	ws, _ := newWorkspace(t, api)
	ctx := context.Background()
	require.NoError(t, ws.Init(ctx))

	r, err := ws.Recheck(ctx)
	require.NoError(t, err)
	require.True(t, r.Disabled)
	ws.CommitSlot(0, "12")
	ws.CommitSlot(1, "13")

	require.NoError(t, ws.Init(ctx))
	page := ws.Page(ctx)
	assert.Equal(t, Recheck{}, page.Recheck)
	assert.Equal(t, []retrieval.Slot{{Index: 0}}, page.Slots)
	_, err = ws.Retrieve(ctx, "key")
	assert.ErrorIs(t, err, domain.ErrNoIDs)
}

func TestCommitSlots_InOrder(t *testing.T) {
	api := newFakeAPI()
	ws, d := newWorkspace(t, api)
	ctx := context.Background()

	slots := ws.CommitSlots([]string{"12", "", "13"})
	assert.Len(t, slots, 4)

	job, err := ws.Retrieve(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, []int64{12, 13}, job.IDs)
	d.Wait()
}

func TestHistoryBoundaries(t *testing.T) {
	for _, tc := range []struct {
		boundary      history.Boundary
		firstDisabled bool
	}{
		{history.BoundaryOneIndexed, true},
		{history.BoundaryLegacy, false},
	} {
		t.Run(tc.boundary.String(), func(t *testing.T) {
			api := newFakeAPI()
			ws := New(api, nil, Options{HistoryBoundary: tc.boundary}, nil)
			ctx := context.Background()
			require.NoError(t, ws.Init(ctx))
			_, err := ws.FetchHistory(ctx)
			require.NoError(t, err)

			v := ws.First()
			assert.Equal(t, 1, v.Pointer)
			assert.Equal(t, tc.firstDisabled, v.FirstDisabled)
			assert.Equal(t, tc.firstDisabled, v.PreviousDisabled)

			v = ws.Goto(99)
			assert.Equal(t, 4, v.Pointer)
		})
	}
}

func TestSessions(t *testing.T) {
	api := newFakeAPI()
	s := NewSessions(func() *Workspace { return New(api, nil, Options{}, nil) })

	ws, id, created := s.Get("")
	assert.True(t, created)
	require.NotEmpty(t, id)

	again, id2, created := s.Get(id)
	assert.False(t, created)
	assert.Equal(t, id, id2)
	assert.Same(t, ws, again)

	_, id3, created := s.Get("not-a-uuid")
	assert.True(t, created)
	assert.NotEqual(t, id, id3)
	assert.Equal(t, 2, s.Len())

	now := time.Now()
	s.now = func() time.Time { return now.Add(time.Hour) }
	assert.Equal(t, 2, s.Sweep(30*time.Minute))
	assert.Equal(t, 0, s.Len())
}
