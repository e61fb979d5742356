package ws

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/campus-complaints-backend/internal/feed"
	"github.com/ignatzorin/campus-complaints-backend/internal/models"
	"github.com/ignatzorin/campus-complaints-backend/internal/pkg/apperror"
	"github.com/ignatzorin/campus-complaints-backend/internal/source"
)

func newCommandClient(t *testing.T, actorID string) *Client {
	t.Helper()
	src := source.NewMemorySource()
	base := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 6; i++ {
		status := models.ReportStatusPending
		if i%2 == 0 {
			status = models.ReportStatusDone
		}
		require.NoError(t, src.Put(models.Report{
			ID:          fmt.Sprintf("r%d", i),
			CampusID:    "c1",
			Status:      status,
			Count:       i,
			CreatedDate: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	f, err := feed.New(context.Background(), src, feed.Options{CampusID: "c1", ActorPersonID: actorID, PageSize: 2})
	require.NoError(t, err)
	t.Cleanup(f.Close)

	return NewClient(nil, nil, "c1", f)
}

func TestApplyCommand(t *testing.T) {
	ctx := context.Background()

	t.Run("set_sort", func(t *testing.T) {
		c := newCommandClient(t, "")
		require.NoError(t, c.applyCommand(ctx, []byte(`{"type":"set_sort","data":{"key":"count","direction":"asc"}}`)))
		view := c.feed.View()
		assert.Equal(t, feed.Sort{Key: feed.SortByCount, Direction: feed.Ascending}, view.Sort)
		assert.Equal(t, "r0", view.Items[0].ID)
	})

	t.Run("set_filter keeps only matching statuses", func(t *testing.T) {
		c := newCommandClient(t, "")
		require.NoError(t, c.applyCommand(ctx, []byte(`{"type":"set_filter","data":{"status":["DONE"]}}`)))
		view := c.feed.View()
		assert.Equal(t, 3, view.Matched)
		assert.Equal(t, []string{"DONE"}, view.Filter.Statuses)
	})

	t.Run("set_page and page size", func(t *testing.T) {
		c := newCommandClient(t, "")
		require.NoError(t, c.applyCommand(ctx, []byte(`{"type":"set_page","data":{"page":2,"pageSize":4}}`)))
		view := c.feed.View()
		assert.Equal(t, 2, view.Page)
		assert.Equal(t, 4, view.PageSize)
		assert.Len(t, view.Items, 2)
	})

	t.Run("negative page size", func(t *testing.T) {
		c := newCommandClient(t, "")
		err := c.applyCommand(ctx, []byte(`{"type":"set_page","data":{"page":1,"pageSize":-3}}`))
		assert.ErrorIs(t, err, apperror.ErrInvalidPageSize)
	})

	t.Run("scope needs actor", func(t *testing.T) {
		c := newCommandClient(t, "")
		err := c.applyCommand(ctx, []byte(`{"type":"set_scope","data":{"scope":"assigned"}}`))
		assert.ErrorIs(t, err, apperror.ErrActorRequired)

		withActor := newCommandClient(t, "p1")
		require.NoError(t, withActor.applyCommand(ctx, []byte(`{"type":"set_scope","data":{"scope":"assigned"}}`)))
		assert.Equal(t, feed.ScopeAssigned, withActor.feed.View().Scope)
	})

	t.Run("unknown scope", func(t *testing.T) {
		c := newCommandClient(t, "")
		err := c.applyCommand(ctx, []byte(`{"type":"set_scope","data":{"scope":"campus"}}`))
		assert.ErrorIs(t, err, apperror.ErrInvalidViewScope)
	})

	t.Run("malformed input", func(t *testing.T) {
		c := newCommandClient(t, "")
		for _, raw := range []string{
			`not json`,
			`{"type":"set_sort"}`,
			`{"type":"set_sort","data":"count"}`,
			`{"type":"drop_table","data":{}}`,
		} {
			err := c.applyCommand(ctx, []byte(raw))
			require.Error(t, err, raw)
			assert.Equal(t, apperror.ErrCodeBadRequest, apperror.CodeOf(err), raw)
		}
	})
}

func TestHub_TracksClientsPerCampus(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub(ctx)
	go hub.Run()

	a := &Client{id: uuid.New(), campusID: "c1"}
	b := &Client{id: uuid.New(), campusID: "c1"}
	c := &Client{id: uuid.New(), campusID: "c2"}

	hub.Register(a)
	hub.Register(b)
	hub.Register(c)
	hub.Register(a)
	require.Eventually(t, func() bool { return hub.Count() == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, hub.CampusCount("c1"))
	assert.Equal(t, 1, hub.CampusCount("c2"))

	hub.Unregister(a)
	hub.Unregister(c)
	hub.Unregister(c)
	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, hub.CampusCount("c1"))
	assert.Zero(t, hub.CampusCount("c2"))

	hub.Unregister(b)
	require.Eventually(t, func() bool { return hub.Count() == 0 }, time.Second, 5*time.Millisecond)
}

func TestHub_RegisterAfterShutdownDoesNotBlock(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		hub.Register(&Client{id: uuid.New(), campusID: "c1"})
		hub.Unregister(&Client{id: uuid.New(), campusID: "c1"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("hub blocked after shutdown")
	}
}
