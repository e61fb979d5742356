package feed

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/campus-complaints-backend/internal/models"
	"github.com/ignatzorin/campus-complaints-backend/internal/pkg/apperror"
)

// campusReports n жалоб; первые done из них в статусе DONE.
func campusReports(n, done int) []models.Report {
	out := make([]models.Report, 0, n)
	for i := 0; i < n; i++ {
		r := report(fmt.Sprintf("r%02d", i), i)
		if i < done {
			r.Status = models.ReportStatusDone
		}
		out = append(out, r)
	}
	return out
}

func openFeed(t *testing.T, src *fakeSource, opts Options) *Feed {
	t.Helper()
	if opts.CampusID == "" {
		opts.CampusID = "campus-1"
	}
	f, err := New(context.Background(), src, opts)
	require.NoError(t, err)
	t.Cleanup(f.Close)
	return f
}

func TestFeed_PageOfTwentyFive(t *testing.T) {
	src := newFakeSource()
	src.initial["campus-1"] = campusReports(25, 0)
	f := openFeed(t, src, Options{PageSize: 10})

	f.SetPage(3)
	view := f.View()

	assert.Equal(t, 3, view.Page)
	assert.Equal(t, 3, view.TotalPages)
	assert.Len(t, view.Items, 5)
	assert.Equal(t, 25, view.Total)
	assert.Equal(t, 25, view.Matched)
	// Новые первыми: на третьей странице самые старые r04..r00.
	assert.Equal(t, []string{"r04", "r03", "r02", "r01", "r00"}, ids(view.Items))
}

func TestFeed_FilterShrinkClampsPage(t *testing.T) {
	src := newFakeSource()
	src.initial["campus-1"] = campusReports(25, 10)
	f := openFeed(t, src, Options{PageSize: 10})

	f.SetPage(3)
	require.Equal(t, 3, f.View().Page)

	f.SetFilter(Filter{Statuses: NewSet("DONE")})

	assert.Equal(t, 1, f.Page())
	view := f.View()
	assert.Equal(t, 1, view.TotalPages)
	assert.Equal(t, 1, view.Page)
	assert.Len(t, view.Items, 10)
	assert.Equal(t, 25, view.Total)
}

func TestFeed_SnapshotShrinkClampsPage(t *testing.T) {
	src := newFakeSource()
	src.initial["campus-1"] = campusReports(25, 0)
	f := openFeed(t, src, Options{PageSize: 10})
	f.SetPage(3)

	reports := campusReports(25, 0)
	for i := 5; i < 25; i++ {
		reports[i].IsDeleted = true
	}
	src.push(reports...)

	assert.Equal(t, 1, f.Page())
	view := f.View()
	assert.Len(t, view.Items, 5)
	assert.Equal(t, 5, view.Total)
	for _, r := range view.Items {
		assert.False(t, r.IsDeleted)
	}
}

func TestFeed_MineScopeWithMergedSubmitters(t *testing.T) {
	src := newFakeSource()
	merged := report("merged", 1)
	merged.FacilityUser = []models.FacilityUser{{PersonID: "p2"}, {PersonID: "p1"}}
	foreign := report("foreign", 2)
	foreign.FacilityUser = []models.FacilityUser{{PersonID: "p2"}}
	src.initial["campus-1"] = []models.Report{merged, foreign}

	f := openFeed(t, src, Options{ActorPersonID: "p1", Scope: ScopeMine})
	view := f.View()

	assert.Equal(t, []string{"merged"}, ids(view.Items))
	assert.Equal(t, 2, view.Total)
	assert.Equal(t, 1, view.Matched)
	assert.Equal(t, ScopeMine, view.Scope)
}

func TestFeed_RoleDefaultsScope(t *testing.T) {
	src := newFakeSource()
	assigned := report("assigned", 1)
	assigned.Technician = &models.Technician{PersonID: "tech"}
	src.initial["campus-1"] = []models.Report{assigned, report("other", 2)}

	f := openFeed(t, src, Options{ActorPersonID: "tech", Role: models.RoleTechnician})
	assert.Equal(t, ScopeAssigned, f.View().Scope)
	assert.Equal(t, []string{"assigned"}, ids(f.View().Items))
}

func TestFeed_ScopeNeedsActor(t *testing.T) {
	src := newFakeSource()
	_, err := New(context.Background(), src, Options{CampusID: "campus-1", Scope: ScopeMine})
	assert.ErrorIs(t, err, apperror.ErrActorRequired)
	assert.Zero(t, src.subscribe)

	f := openFeed(t, src, Options{})
	assert.ErrorIs(t, f.SetScope(ScopeAssigned), apperror.ErrActorRequired)
	assert.Equal(t, ScopeAll, f.View().Scope)
}

func TestFeed_SetActor(t *testing.T) {
	src := newFakeSource()
	mine := report("mine", 1)
	mine.FacilityUser = []models.FacilityUser{{PersonID: "p2"}}
	src.initial["campus-1"] = []models.Report{mine}

	f := openFeed(t, src, Options{ActorPersonID: "p1", Scope: ScopeMine})
	assert.Empty(t, f.View().Items)

	require.NoError(t, f.SetActor("p2"))
	assert.Equal(t, []string{"mine"}, ids(f.View().Items))

	assert.ErrorIs(t, f.SetActor(""), apperror.ErrActorRequired)
}

func TestFeed_InvalidPageSize(t *testing.T) {
	src := newFakeSource()
	_, err := New(context.Background(), src, Options{CampusID: "campus-1", PageSize: -1})
	assert.ErrorIs(t, err, apperror.ErrInvalidPageSize)

	f := openFeed(t, src, Options{})
	assert.ErrorIs(t, f.SetPageSize(0), apperror.ErrInvalidPageSize)
	assert.Equal(t, DefaultPageSize, f.View().PageSize)
}

func TestFeed_SetCampusResetsPage(t *testing.T) {
	src := newFakeSource()
	src.initial["campus-1"] = campusReports(30, 0)
	src.initial["campus-2"] = campusReports(30, 0)
	f := openFeed(t, src, Options{PageSize: 10})
	f.SetPage(2)

	require.NoError(t, f.SetCampus(context.Background(), "campus-2"))
	assert.Equal(t, 1, f.Page())
	assert.Equal(t, 1, src.open())
}

func TestFeed_OnChangeReceivesViews(t *testing.T) {
	src := newFakeSource()
	f := openFeed(t, src, Options{PageSize: 2})

	var views []View
	detach := f.OnChange(func(v View) { views = append(views, v) })

	src.push(report("a", 1), report("b", 2), report("c", 3))
	require.NotEmpty(t, views)
	last := views[len(views)-1]
	assert.Equal(t, 3, last.Total)
	assert.Equal(t, 2, last.TotalPages)
	assert.Equal(t, "subscribed", last.Status.State)

	detach()
	n := len(views)
	f.SetPage(2)
	assert.Len(t, views, n)
}

func TestFeed_ViewReportsStaleOnError(t *testing.T) {
	src := newFakeSource()
	src.initial["campus-1"] = campusReports(3, 0)
	f := openFeed(t, src, Options{})

	src.last().handler.OnError(fmt.Errorf("stream closed"))
	view := f.View()

	assert.True(t, view.Status.Stale)
	assert.NotEmpty(t, view.Status.Error)
	assert.Len(t, view.Items, 3)
}

func TestFeed_CloseReleasesSubscription(t *testing.T) {
	src := newFakeSource()
	f, err := New(context.Background(), src, Options{CampusID: "campus-1"})
	require.NoError(t, err)
	require.Equal(t, 1, src.open())

	f.Close()
	assert.Zero(t, src.open())
	assert.Equal(t, "unsubscribed", f.View().Status.State)
}

func TestFeed_SubscribeFailureStillReturnsFeed(t *testing.T) {
	src := newFakeSource()
	src.failWith = fmt.Errorf("unavailable")
	f := openFeed(t, src, Options{})

	view := f.View()
	assert.NotEmpty(t, view.Status.Error)
	assert.Empty(t, view.Items)
	assert.Equal(t, 1, view.TotalPages)
}

func TestFeed_ConcurrentChangesDeliverLatestViewLast(t *testing.T) {
	src := newFakeSource()
	src.initial["campus-1"] = campusReports(30, 0)
	f := openFeed(t, src, Options{PageSize: 10})

	var (
		mu        sync.Mutex
		delivered []int
		first     = true
	)
	entered := make(chan struct{})
	release := make(chan struct{})
	f.OnChange(func(v View) {
		mu.Lock()
		block := first
		first = false
		mu.Unlock()
		if block {
			close(entered)
			<-release
		}
		mu.Lock()
		delivered = append(delivered, v.Page)
		mu.Unlock()
	})

	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		f.SetPage(2)
	}()
	<-entered

	secondDone := make(chan struct{})
	go func() {
		defer close(secondDone)
		f.SetPage(3)
	}()
	// Даём второму вызову дойти до рассылки, пока первый заблокирован.
	time.Sleep(20 * time.Millisecond)
	close(release)
	<-firstDone
	<-secondDone

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, delivered, 2)
	assert.Equal(t, 3, f.Page())
	assert.Equal(t, f.Page(), delivered[len(delivered)-1])
}

func TestFeed_RefreshDeliversCurrentView(t *testing.T) {
	src := newFakeSource()
	src.initial["campus-1"] = campusReports(5, 0)
	f := openFeed(t, src, Options{PageSize: 2})

	var views []View
	f.OnChange(func(v View) { views = append(views, v) })
	f.Refresh()

	require.Len(t, views, 1)
	assert.Equal(t, 5, views[0].Total)
	assert.Equal(t, 3, views[0].TotalPages)
}
