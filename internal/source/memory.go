package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/ignatzorin/campus-complaints-backend/internal/feed"
	"github.com/ignatzorin/campus-complaints-backend/internal/models"
	"github.com/ignatzorin/campus-complaints-backend/internal/pkg/apperror"
)

// MemorySource хранит жалобы в памяти и рассылает снимки подписчикам
// в горутине того, кто изменил данные. Используется в development и тестах.
type MemorySource struct {
	// deliverMu сериализует рассылку, чтобы снимки приходили по порядку.
	deliverMu sync.Mutex

	mu      sync.Mutex
	reports map[string]map[string]models.Report
	subs    map[uuid.UUID]*memorySubscription
	closed  bool
}

type memorySubscription struct {
	id        uuid.UUID
	campusID  string
	handler   feed.SnapshotHandler
	src       *MemorySource
	cancelled atomic.Bool
}

// NewMemorySource создаёт пустой источник.
func NewMemorySource() *MemorySource {
	return &MemorySource{
		reports: make(map[string]map[string]models.Report),
		subs:    make(map[uuid.UUID]*memorySubscription),
	}
}

// Name имя источника для метрик и логов.
func (s *MemorySource) Name() string { return "memory" }

// Subscribe регистрирует подписчика и сразу отдаёт ему текущий снимок.
func (s *MemorySource) Subscribe(_ context.Context, campusID string, handler feed.SnapshotHandler) (feed.Subscription, error) {
	if campusID == "" {
		return nil, apperror.ErrCampusRequired
	}

	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, apperror.ErrSourceClosed
	}
	sub := &memorySubscription{id: uuid.New(), campusID: campusID, handler: handler, src: s}
	s.subs[sub.id] = sub
	snapshot := s.snapshotLocked(campusID)
	s.mu.Unlock()

	sub.deliver(snapshot)
	return sub, nil
}

// Cancel снимает подписку. Повторный вызов безопасен.
func (sub *memorySubscription) Cancel() {
	if !sub.cancelled.CompareAndSwap(false, true) {
		return
	}
	sub.src.mu.Lock()
	delete(sub.src.subs, sub.id)
	sub.src.mu.Unlock()
}

func (sub *memorySubscription) deliver(snapshot []models.Report) {
	if sub.cancelled.Load() || sub.handler.OnSnapshot == nil {
		return
	}
	sub.handler.OnSnapshot(snapshot)
}

func (sub *memorySubscription) fail(err error) {
	if sub.cancelled.Load() || sub.handler.OnError == nil {
		return
	}
	sub.handler.OnError(err)
}

// snapshotLocked собирает неудалённые жалобы кампуса в порядке id.
func (s *MemorySource) snapshotLocked(campusID string) []models.Report {
	byID := s.reports[campusID]
	out := make([]models.Report, 0, len(byID))
	for _, r := range byID {
		if r.IsDeleted {
			continue
		}
		r.FacilityUser = slices.Clone(r.FacilityUser)
		r.Upvote = slices.Clone(r.Upvote)
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b models.Report) int { return strings.Compare(a.ID, b.ID) })
	return out
}

func (s *MemorySource) subscribersLocked(campusID string) []*memorySubscription {
	var out []*memorySubscription
	for _, sub := range s.subs {
		if sub.campusID == campusID {
			out = append(out, sub)
		}
	}
	return out
}

// publish рассылает свежий снимок всем подписчикам кампуса.
func (s *MemorySource) publish(campusID string) {
	s.mu.Lock()
	snapshot := s.snapshotLocked(campusID)
	subs := s.subscribersLocked(campusID)
	s.mu.Unlock()

	for _, sub := range subs {
		// Каждый подписчик получает свою копию.
		sub.deliver(slices.Clone(snapshot))
	}
}

// Put добавляет или заменяет жалобу.
func (s *MemorySource) Put(report models.Report) error {
	if report.CampusID == "" {
		return apperror.ErrCampusRequired
	}
	if report.ID == "" {
		report.ID = uuid.NewString()
	}

	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	byID, ok := s.reports[report.CampusID]
	if !ok {
		byID = make(map[string]models.Report)
		s.reports[report.CampusID] = byID
	}
	byID[report.ID] = report
	s.mu.Unlock()

	s.publish(report.CampusID)
	return nil
}

// Replace заменяет все жалобы кампуса одним снимком.
func (s *MemorySource) Replace(campusID string, reports []models.Report) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	byID := make(map[string]models.Report, len(reports))
	for _, r := range reports {
		r.CampusID = campusID
		byID[r.ID] = r
	}
	s.reports[campusID] = byID
	s.mu.Unlock()

	s.publish(campusID)
}

// SoftDelete помечает жалобу удалённой. Запись остаётся в хранилище.
func (s *MemorySource) SoftDelete(campusID, reportID string) error {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	r, ok := s.reports[campusID][reportID]
	if !ok {
		s.mu.Unlock()
		return apperror.New(apperror.ErrCodeNotFound, "жалоба не найдена")
	}
	r.IsDeleted = true
	s.reports[campusID][reportID] = r
	s.mu.Unlock()

	s.publish(campusID)
	return nil
}

// Fail имитирует обрыв подписок кампуса.
func (s *MemorySource) Fail(campusID string, err error) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	subs := s.subscribersLocked(campusID)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fail(err)
	}
}

// SubscriberCount число открытых подписок кампуса.
func (s *MemorySource) SubscriberCount(campusID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribersLocked(campusID))
}

// Ping проверяет, что источник не остановлен.
func (s *MemorySource) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return apperror.ErrSourceClosed
	}
	return nil
}

// Close останавливает источник и снимает все подписки.
func (s *MemorySource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, sub := range s.subs {
		sub.cancelled.Store(true)
		delete(s.subs, id)
	}
	return nil
}

// LoadJSON загружает начальные данные из JSON-массива жалоб.
func (s *MemorySource) LoadJSON(r io.Reader) (int, error) {
	var reports []models.Report
	if err := json.NewDecoder(r).Decode(&reports); err != nil {
		return 0, fmt.Errorf("memory source: не удалось разобрать seed: %w", err)
	}

	byCampus := make(map[string][]models.Report)
	for _, report := range reports {
		if report.CampusID == "" {
			return 0, fmt.Errorf("memory source: жалоба %q без campusId", report.ID)
		}
		if report.ID == "" {
			report.ID = uuid.NewString()
		}
		byCampus[report.CampusID] = append(byCampus[report.CampusID], report)
	}
	for campusID, list := range byCampus {
		s.Replace(campusID, list)
	}
	return len(reports), nil
}
