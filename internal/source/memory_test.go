package source

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/campus-complaints-backend/internal/feed"
	"github.com/ignatzorin/campus-complaints-backend/internal/models"
	"github.com/ignatzorin/campus-complaints-backend/internal/pkg/apperror"
)

type recorder struct {
	snapshots [][]models.Report
	errs      []error
}

func (r *recorder) handler() feed.SnapshotHandler {
	return feed.SnapshotHandler{
		OnSnapshot: func(reports []models.Report) { r.snapshots = append(r.snapshots, reports) },
		OnError:    func(err error) { r.errs = append(r.errs, err) },
	}
}

func (r *recorder) lastIDs() []string {
	if len(r.snapshots) == 0 {
		return nil
	}
	var out []string
	for _, rep := range r.snapshots[len(r.snapshots)-1] {
		out = append(out, rep.ID)
	}
	return out
}

func newReport(campusID, id string) models.Report {
	return models.Report{
		ID:          id,
		CampusID:    campusID,
		Status:      models.ReportStatusPending,
		CreatedDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestMemorySource_InitialSnapshotIsSynchronous(t *testing.T) {
	src := NewMemorySource()
	require.NoError(t, src.Put(newReport("c1", "b")))
	require.NoError(t, src.Put(newReport("c1", "a")))
	require.NoError(t, src.Put(newReport("c2", "x")))

	rec := &recorder{}
	sub, err := src.Subscribe(context.Background(), "c1", rec.handler())
	require.NoError(t, err)
	defer sub.Cancel()

	require.Len(t, rec.snapshots, 1)
	assert.Equal(t, []string{"a", "b"}, rec.lastIDs())
}

func TestMemorySource_PublishesWholeSnapshots(t *testing.T) {
	src := NewMemorySource()
	rec := &recorder{}
	sub, err := src.Subscribe(context.Background(), "c1", rec.handler())
	require.NoError(t, err)
	defer sub.Cancel()

	require.NoError(t, src.Put(newReport("c1", "a")))
	require.NoError(t, src.Put(newReport("c1", "b")))
	require.NoError(t, src.Put(newReport("c2", "other")))

	require.Len(t, rec.snapshots, 3)
	assert.Equal(t, []string{"a", "b"}, rec.lastIDs())
}

func TestMemorySource_SoftDeleteHidesReport(t *testing.T) {
	src := NewMemorySource()
	require.NoError(t, src.Put(newReport("c1", "a")))
	require.NoError(t, src.Put(newReport("c1", "b")))

	rec := &recorder{}
	sub, err := src.Subscribe(context.Background(), "c1", rec.handler())
	require.NoError(t, err)
	defer sub.Cancel()

	require.NoError(t, src.SoftDelete("c1", "a"))
	assert.Equal(t, []string{"b"}, rec.lastIDs())

	err = src.SoftDelete("c1", "missing")
	assert.True(t, apperror.IsNotFound(err))
}

func TestMemorySource_CancelStopsDelivery(t *testing.T) {
	src := NewMemorySource()
	rec := &recorder{}
	sub, err := src.Subscribe(context.Background(), "c1", rec.handler())
	require.NoError(t, err)
	assert.Equal(t, 1, src.SubscriberCount("c1"))

	sub.Cancel()
	sub.Cancel()
	require.NoError(t, src.Put(newReport("c1", "a")))

	assert.Len(t, rec.snapshots, 1)
	assert.Zero(t, src.SubscriberCount("c1"))
}

func TestMemorySource_Fail(t *testing.T) {
	src := NewMemorySource()
	rec := &recorder{}
	sub, err := src.Subscribe(context.Background(), "c1", rec.handler())
	require.NoError(t, err)
	defer sub.Cancel()

	src.Fail("c1", errors.New("network down"))
	src.Fail("c2", errors.New("ignored"))

	require.Len(t, rec.errs, 1)
	assert.EqualError(t, rec.errs[0], "network down")
}

func TestMemorySource_SnapshotsAreIndependent(t *testing.T) {
	src := NewMemorySource()
	r := newReport("c1", "a")
	r.Upvote = []string{"p1"}
	require.NoError(t, src.Put(r))

	first, second := &recorder{}, &recorder{}
	s1, err := src.Subscribe(context.Background(), "c1", first.handler())
	require.NoError(t, err)
	defer s1.Cancel()
	s2, err := src.Subscribe(context.Background(), "c1", second.handler())
	require.NoError(t, err)
	defer s2.Cancel()

	first.snapshots[0][0].Upvote[0] = "mutated"
	assert.Equal(t, "p1", second.snapshots[0][0].Upvote[0])
}

func TestMemorySource_Validation(t *testing.T) {
	src := NewMemorySource()

	_, err := src.Subscribe(context.Background(), "", feed.SnapshotHandler{})
	assert.ErrorIs(t, err, apperror.ErrCampusRequired)

	assert.ErrorIs(t, src.Put(models.Report{ID: "a"}), apperror.ErrCampusRequired)
}

func TestMemorySource_Close(t *testing.T) {
	src := NewMemorySource()
	require.NoError(t, src.Close())

	assert.ErrorIs(t, src.Ping(context.Background()), apperror.ErrSourceClosed)
	_, err := src.Subscribe(context.Background(), "c1", feed.SnapshotHandler{})
	assert.ErrorIs(t, err, apperror.ErrSourceClosed)
}

func TestMemorySource_LoadJSON(t *testing.T) {
	src := NewMemorySource()
	n, err := src.LoadJSON(strings.NewReader(`[
		{"id": "r1", "campusId": "c1", "status": "PENDING", "count": 2, "createdDate": "2024-02-01T10:00:00Z",
		 "area": {"id": "a1", "name": "Gym"}, "facilityUser": [{"personId": "p1", "name": "Ann"}]},
		{"id": "r2", "campusId": "c1", "status": "DONE", "isDeleted": true, "createdDate": "2024-02-02T10:00:00Z"},
		{"campusId": "c2", "status": "PENDING", "createdDate": "2024-02-03T10:00:00Z"}
	]`))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	rec := &recorder{}
	sub, err := src.Subscribe(context.Background(), "c1", rec.handler())
	require.NoError(t, err)
	defer sub.Cancel()

	require.Equal(t, []string{"r1"}, rec.lastIDs())
	got := rec.snapshots[0][0]
	assert.Equal(t, "Gym", got.AreaName())
	assert.True(t, got.SubmittedBy("p1"))
	assert.Equal(t, 2, got.Count)

	c2 := &recorder{}
	sub2, err := src.Subscribe(context.Background(), "c2", c2.handler())
	require.NoError(t, err)
	defer sub2.Cancel()
	require.Len(t, c2.lastIDs(), 1)
	assert.NotEmpty(t, c2.lastIDs()[0])
}

func TestMemorySource_LoadJSONRejectsMissingCampus(t *testing.T) {
	src := NewMemorySource()
	_, err := src.LoadJSON(strings.NewReader(`[{"id": "r1"}]`))
	assert.Error(t, err)
}

func TestMemorySource_DrivesProjection(t *testing.T) {
	src := NewMemorySource()
	require.NoError(t, src.Put(newReport("c1", "a")))

	p := feed.NewProjection(src)
	defer p.Close()
	require.NoError(t, p.SetCampus(context.Background(), "c1"))
	assert.True(t, p.Received())
	assert.Equal(t, 1, p.Total())

	require.NoError(t, src.Put(newReport("c1", "b")))
	assert.Equal(t, 2, p.Total())

	p.Close()
	assert.Zero(t, src.SubscriberCount("c1"))
}
