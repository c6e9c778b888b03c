package retrieval_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/csg33k/response-viewer/internal/domain"
	"github.com/csg33k/response-viewer/internal/retrieval"
)

// ---------------------------------------------------------------------------
// Form
// ---------------------------------------------------------------------------

func TestForm_AlwaysHasTrailingSlot(t *testing.T) {
	f := retrieval.NewForm(nil)
	assert.Equal(t, []retrieval.Slot{{Index: 0}}, f.Slots())

	f.Commit(0, "12")
	assert.Equal(t, []retrieval.Slot{{Index: 0, Value: "12"}, {Index: 1}}, f.Slots())
}

func TestForm_CommitPadsAndClears(t *testing.T) {
	f := retrieval.NewForm(nil)
	f.Commit(3, "40")
	assert.Equal(t, 4, f.Len())
	assert.Equal(t, []int64{40}, f.IDs())

	f.Commit(1, "20")
	assert.Equal(t, []int64{20, 40}, f.IDs())

	f.Commit(3, "")
	assert.Equal(t, []int64{20}, f.IDs())
	assert.Equal(t, 4, f.Len(), "clearing keeps the slot")

	slots := f.Slots()
	require.Len(t, slots, 5)
	assert.Equal(t, "", slots[0].Value)
	assert.Equal(t, "20", slots[1].Value)
}

func TestForm_IgnoresNegativeIndexAndGarbage(t *testing.T) {
	f := retrieval.NewForm(nil)
	f.Commit(-1, "5")
	assert.Equal(t, 0, f.Len())

	f.Commit(0, "abc")
	assert.Equal(t, 1, f.Len())
	assert.Empty(t, f.IDs())
}

// ---------------------------------------------------------------------------
// Dispatcher
// ---------------------------------------------------------------------------

type MockStarter struct {
	mock.Mock
}

func (m *MockStarter) StartRetrieval(ctx context.Context, apiKey string, ids []int64) error {
	args := m.Called(ctx, apiKey, ids)
	return args.Error(0)
}

type memRepo struct {
	mu   sync.Mutex
	jobs []domain.RetrievalJob
}

func (r *memRepo) CreateJob(_ context.Context, j *domain.RetrievalJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j.ID = int64(len(r.jobs) + 1)
	j.CreatedAt = time.Now()
	r.jobs = append(r.jobs, *j)
	return nil
}

func (r *memRepo) FinishJob(_ context.Context, id int64, status domain.RetrievalStatus, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	r.jobs[id-1].Status = status
	r.jobs[id-1].Error = errMsg
	r.jobs[id-1].FinishedAt = &now
	return nil
}

func (r *memRepo) GetJob(_ context.Context, id int64) (*domain.RetrievalJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id < 1 || int(id) > len(r.jobs) {
		return nil, domain.ErrNotFound
	}
	j := r.jobs[id-1]
	return &j, nil
}

func (r *memRepo) ListJobs(_ context.Context, limit int) ([]domain.RetrievalJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.RetrievalJob, 0, len(r.jobs))
	for i := len(r.jobs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.jobs[i])
	}
	return out, nil
}

func TestDispatcher_RecordsStartedJob(t *testing.T) {
	starter := new(MockStarter)
	starter.On("StartRetrieval", mock.Anything, "secret", []int64{7, 9}).Return(nil)
	repo := &memRepo{}
	d := retrieval.NewDispatcher(starter, repo, time.Second, nil)

	job, err := d.Submit(context.Background(), "secret", []int64{7, 9})
	require.NoError(t, err)
	assert.Equal(t, domain.RetrievalPending, job.Status)
	d.Wait()

	got, err := repo.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RetrievalStarted, got.Status)
	assert.NotNil(t, got.FinishedAt)
	starter.AssertExpectations(t)
}

func TestDispatcher_RecordsFailure(t *testing.T) {
	starter := new(MockStarter)
	starter.On("StartRetrieval", mock.Anything, "k", []int64{1}).Return(errors.New("connection refused"))
	repo := &memRepo{}
	d := retrieval.NewDispatcher(starter, repo, time.Second, nil)

	job, err := d.Submit(context.Background(), "k", []int64{1})
	require.NoError(t, err)
	d.Wait()

	jobs, err := d.Jobs(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, job.ID, jobs[0].ID)
	assert.Equal(t, domain.RetrievalFailed, jobs[0].Status)
	assert.Contains(t, jobs[0].Error, "connection refused")
}

func TestDispatcher_OutlivesRequestContext(t *testing.T) {
	starter := new(MockStarter)
	starter.On("StartRetrieval", mock.Anything, "k", []int64{3}).Return(nil)
	repo := &memRepo{}
	d := retrieval.NewDispatcher(starter, repo, time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	job, err := d.Submit(ctx, "k", []int64{3})
	require.NoError(t, err)
	cancel()
	d.Wait()

	got, err := repo.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RetrievalStarted, got.Status)
}

func TestDispatcher_RejectsEmptyList(t *testing.T) {
	d := retrieval.NewDispatcher(new(MockStarter), &memRepo{}, time.Second, nil)
	_, err := d.Submit(context.Background(), "k", nil)
	assert.ErrorIs(t, err, domain.ErrNoIDs)
}
