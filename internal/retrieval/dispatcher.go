package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/csg33k/response-viewer/internal/domain"
	"github.com/csg33k/response-viewer/internal/ports"
)

// Starter is the part of the grading API that launches a retrieval.
type Starter interface {
	StartRetrieval(ctx context.Context, apiKey string, ids []int64) error
}

// Dispatcher runs retrieval requests in the background. The outcome of each
// request is written to the job repository; the UI polls the job list
// instead of waiting on the request.
type Dispatcher struct {
	api     Starter
	repo    ports.RetrievalJobRepository
	log     *slog.Logger
	timeout time.Duration

	// sem bounds the requests in flight against the grading server.
	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

const maxInFlight = 4

func NewDispatcher(api Starter, repo ports.RetrievalJobRepository, timeout time.Duration, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Dispatcher{api: api, repo: repo, log: log, timeout: timeout, sem: semaphore.NewWeighted(maxInFlight)}
}

// Submit records a pending job and starts the request. It returns once the
// job is recorded; the request itself continues after ctx is done.
func (d *Dispatcher) Submit(ctx context.Context, apiKey string, ids []int64) (*domain.RetrievalJob, error) {
	if len(ids) == 0 {
		return nil, domain.ErrNoIDs
	}
	job := &domain.RetrievalJob{IDs: ids, Status: domain.RetrievalPending}
	if err := d.repo.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("retrieval: record job: %w", err)
	}
	d.log.Info("starting retrieval", "job", job.ID, "ids", ids)

	d.wg.Add(1)
	go func(base context.Context) {
		defer d.wg.Done()
		if err := d.sem.Acquire(base, 1); err != nil {
			return
		}
		defer d.sem.Release(1)
		ctx, cancel := context.WithTimeout(base, d.timeout)
		defer cancel()

		status, msg := domain.RetrievalStarted, ""
		if err := d.api.StartRetrieval(ctx, apiKey, ids); err != nil {
			status, msg = domain.RetrievalFailed, err.Error()
			d.log.Error("retrieval request failed", "job", job.ID, "err", err)
		}
		if err := d.repo.FinishJob(base, job.ID, status, msg); err != nil {
			d.log.Error("could not record retrieval outcome", "job", job.ID, "err", err)
		}
	}(context.WithoutCancel(ctx))

	return job, nil
}

// Jobs lists the most recent jobs, newest first.
func (d *Dispatcher) Jobs(ctx context.Context, limit int) ([]domain.RetrievalJob, error) {
	return d.repo.ListJobs(ctx, limit)
}

// Wait blocks until every submitted request has finished.
func (d *Dispatcher) Wait() { d.wg.Wait() }
