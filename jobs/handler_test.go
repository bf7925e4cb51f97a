package jobs

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type stubEnqueuer struct {
	from, to time.Time
	calls    int
}

func (s *stubEnqueuer) EnqueueProfitBackfill(ctx context.Context, from, to time.Time) (*asynq.TaskInfo, error) {
	s.calls++
	s.from, s.to = from, to
	return &asynq.TaskInfo{ID: "task-1", Queue: QueueDefault}, nil
}

func newJobsRouter(enqueuer BackfillEnqueuer) chi.Router {
	h := NewHandler(nil, enqueuer, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := chi.NewRouter()
	r.Route("/jobs", h.MountRoutes)
	return r
}

func TestTriggerBackfillEnqueuesWindow(t *testing.T) {
	enqueuer := &stubEnqueuer{}
	router := newJobsRouter(enqueuer)

	body := `{"from":"2026-08-01T00:00:00Z","to":"2026-08-31T00:00:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/jobs/backfill", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Contains(t, rec.Body.String(), "task-1")
	require.Equal(t, 1, enqueuer.calls)
	require.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), enqueuer.from)
	require.Equal(t, time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC), enqueuer.to)
}

func TestTriggerBackfillEmptyBodyUsesDefaultWindow(t *testing.T) {
	enqueuer := &stubEnqueuer{}
	router := newJobsRouter(enqueuer)

	req := httptest.NewRequest(http.MethodPost, "/jobs/backfill", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.True(t, enqueuer.from.IsZero())
	require.True(t, enqueuer.to.IsZero())
}

func TestTriggerBackfillRejectsMalformedBody(t *testing.T) {
	enqueuer := &stubEnqueuer{}
	router := newJobsRouter(enqueuer)

	req := httptest.NewRequest(http.MethodPost, "/jobs/backfill", strings.NewReader(`{"from":`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Zero(t, enqueuer.calls)
}

func TestTriggerBackfillWithoutEnqueuer(t *testing.T) {
	router := newJobsRouter(nil)

	req := httptest.NewRequest(http.MethodPost, "/jobs/backfill", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
