package ports

import (
	"context"
	"io"

	"github.com/csg33k/response-viewer/internal/domain"
)

// GradingAPI is the external grading server. Every method maps to one
// endpoint; the server owns the active set and the current response.
type GradingAPI interface {
	Reload(ctx context.Context) error
	Info(ctx context.Context) (*domain.ResponseInfo, error)
	NextResponse(ctx context.Context) (*domain.ResponseInfo, error)
	PreviousResponse(ctx context.Context) (*domain.ResponseInfo, error)
	ResponseByIndex(ctx context.Context, index int) (*domain.ResponseInfo, error)
	ResponseByID(ctx context.Context, id int64) (*domain.ResponseInfo, error)
	SetActiveSet(ctx context.Context, ids []int64) (*domain.ResponseInfo, error)

	History(ctx context.Context) (*domain.HistorySnapshot, error)
	// SetHTMLMode changes how content is prepared and returns the
	// re-rendered history of the current response.
	SetHTMLMode(ctx context.Context, mode domain.HTMLMode) (*domain.HistorySnapshot, error)

	NamesTree(ctx context.Context) (*domain.NamesTree, error)
	IDTree(ctx context.Context) (*domain.NamesTree, error)

	StartRetrieval(ctx context.Context, apiKey string, ids []int64) error
	Recheck(ctx context.Context) (bool, error)
}

// RetrievalJobRepository persists the outcome of bulk retrieval requests.
type RetrievalJobRepository interface {
	CreateJob(ctx context.Context, j *domain.RetrievalJob) error
	FinishJob(ctx context.Context, id int64, status domain.RetrievalStatus, errMsg string) error
	GetJob(ctx context.Context, id int64) (*domain.RetrievalJob, error)
	ListJobs(ctx context.Context, limit int) ([]domain.RetrievalJob, error)
}

// HistoryExporter renders a history snapshot to a downloadable document.
type HistoryExporter interface {
	// Export writes the snapshot of the identified response to w.
	Export(ctx context.Context, id domain.ResponseIdentity, s *domain.HistorySnapshot, w io.Writer) error
}
