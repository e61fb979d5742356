package feed

import (
	"context"
	"sync"
	"time"

	"github.com/ignatzorin/campus-complaints-backend/internal/models"
)

var baseTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func at(minutes int) time.Time {
	return baseTime.Add(time.Duration(minutes) * time.Minute)
}

func report(id string, created int) models.Report {
	return models.Report{
		ID:          id,
		CampusID:    "campus-1",
		Status:      models.ReportStatusPending,
		CreatedDate: at(created),
	}
}

func ids(reports []models.Report) []string {
	out := make([]string, 0, len(reports))
	for _, r := range reports {
		out = append(out, r.ID)
	}
	return out
}

// fakeSource источник, которым тест управляет вручную.
type fakeSource struct {
	mu        sync.Mutex
	subs      []*fakeSubscription
	failWith  error
	initial   map[string][]models.Report
	subscribe int
}

type fakeSubscription struct {
	campusID  string
	handler   SnapshotHandler
	cancelled bool
}

func newFakeSource() *fakeSource {
	return &fakeSource{initial: make(map[string][]models.Report)}
}

func (s *fakeSource) Name() string { return "fake" }

func (s *fakeSource) Subscribe(_ context.Context, campusID string, handler SnapshotHandler) (Subscription, error) {
	s.mu.Lock()
	s.subscribe++
	if s.failWith != nil {
		err := s.failWith
		s.mu.Unlock()
		return nil, err
	}
	sub := &fakeSubscription{campusID: campusID, handler: handler}
	s.subs = append(s.subs, sub)
	initial, ok := s.initial[campusID]
	s.mu.Unlock()

	if ok {
		handler.OnSnapshot(initial)
	}
	return &fakeCancel{src: s, sub: sub}, nil
}

type fakeCancel struct {
	src *fakeSource
	sub *fakeSubscription
}

func (c *fakeCancel) Cancel() {
	c.src.mu.Lock()
	defer c.src.mu.Unlock()
	c.sub.cancelled = true
}

// open число неотменённых подписок.
func (s *fakeSource) open() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sub := range s.subs {
		if !sub.cancelled {
			n++
		}
	}
	return n
}

// handlers возвращает колбэки всех подписок, включая отменённые.
func (s *fakeSource) handlers() []*fakeSubscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*fakeSubscription, len(s.subs))
	copy(out, s.subs)
	return out
}

func (s *fakeSource) last() *fakeSubscription {
	subs := s.handlers()
	if len(subs) == 0 {
		return nil
	}
	return subs[len(subs)-1]
}

// push отправляет снимок последней подписке, как это сделал бы источник.
func (s *fakeSource) push(reports ...models.Report) {
	s.last().handler.OnSnapshot(reports)
}
