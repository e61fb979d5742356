package feed

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/campus-complaints-backend/internal/logger"
	"github.com/ignatzorin/campus-complaints-backend/internal/metrics"
	"github.com/ignatzorin/campus-complaints-backend/internal/models"
	"github.com/ignatzorin/campus-complaints-backend/internal/pkg/apperror"
)

// SnapshotHandler колбэки живой подписки.
type SnapshotHandler struct {
	// OnSnapshot получает полный набор неудалённых жалоб кампуса.
	OnSnapshot func(reports []models.Report)
	// OnError сообщает об обрыве или невозможности установить подписку.
	OnError func(err error)
}

// Subscription открытая подписка на коллекцию.
type Subscription interface {
	Cancel()
}

// Source внешний источник живых данных. Каждый снимок полностью
// заменяет предыдущий.
type Source interface {
	Name() string
	Subscribe(ctx context.Context, campusID string, handler SnapshotHandler) (Subscription, error)
}

// State состояние подписки проекции.
type State int

const (
	StateUninitialized State = iota
	StateSubscribed
	StateUnsubscribed
)

func (s State) String() string {
	switch s {
	case StateSubscribed:
		return "subscribed"
	case StateUnsubscribed:
		return "unsubscribed"
	default:
		return "uninitialized"
	}
}

// Status то, что видит UI: загрузка, устаревшие данные, ошибка.
type Status struct {
	State     State
	Loading   bool
	Stale     bool
	Err       error
	UpdatedAt time.Time
}

// Criteria сортировка и фильтр проекции.
type Criteria struct {
	Sort   Sort
	Filter Filter
}

// Projection держит одну подписку на жалобы кампуса и пересчитывает
// отфильтрованное и отсортированное представление при каждом снимке
// или смене критериев.
type Projection struct {
	source Source

	mu         sync.Mutex
	campusID   string
	state      State
	sub        Subscription
	generation uint64
	received   bool
	snapshot   []models.Report
	visible    []models.Report
	criteria   Criteria
	status     Status

	listenersMu sync.Mutex
	listeners   map[int]func()
	nextID      int

	now func() time.Time
}

// NewProjection создаёт проекцию в состоянии Uninitialized.
func NewProjection(source Source) *Projection {
	return &Projection{
		source:    source,
		listeners: make(map[int]func()),
		now:       time.Now,
	}
}

func (p *Projection) log() *logrus.Entry {
	return logger.ForCampus(p.campusID).WithField("source", p.source.Name())
}

// SetCampus привязывает проекцию к кампусу. Старая подписка всегда
// закрывается до открытия новой. Пустой campusID переводит проекцию
// в Unsubscribed.
func (p *Projection) SetCampus(ctx context.Context, campusID string) error {
	p.mu.Lock()
	if campusID == p.campusID && p.state == StateSubscribed && (p.sub != nil || p.status.Err == nil) {
		p.mu.Unlock()
		return nil
	}

	p.releaseLocked()
	p.campusID = campusID
	p.received = false
	p.snapshot = nil
	p.visible = nil

	if campusID == "" {
		p.state = StateUnsubscribed
		p.status = Status{State: StateUnsubscribed, UpdatedAt: p.now()}
		p.mu.Unlock()
		p.notify()
		return nil
	}

	p.state = StateSubscribed
	p.status = Status{State: StateSubscribed, Loading: true, UpdatedAt: p.now()}
	gen := p.generation
	p.log().Debug("feed: открываем подписку")
	p.mu.Unlock()
	p.notify()

	// Источник может вызвать колбэк синхронно, поэтому Subscribe
	// вызывается без удержания мьютекса.
	sub, err := p.source.Subscribe(ctx, campusID, SnapshotHandler{
		OnSnapshot: func(reports []models.Report) { p.applySnapshot(gen, reports) },
		OnError:    func(err error) { p.applyError(gen, err) },
	})

	p.mu.Lock()
	if gen != p.generation {
		// Пока подписка открывалась, кампус сменился или проекцию закрыли.
		p.mu.Unlock()
		if sub != nil {
			sub.Cancel()
		}
		return nil
	}
	if err != nil {
		metrics.SubscriptionFailed(p.source.Name())
		wrapped := apperror.Wrap(err, apperror.ErrCodeSubscription, "не удалось подписаться на жалобы кампуса")
		p.status.Loading = false
		p.status.Err = wrapped
		p.status.Stale = p.received
		p.status.UpdatedAt = p.now()
		p.log().WithError(err).Warn("feed: подписка не установлена")
		p.mu.Unlock()
		p.notify()
		return wrapped
	}
	p.sub = sub
	metrics.SubscriptionOpened(p.source.Name())
	p.mu.Unlock()
	return nil
}

// releaseLocked закрывает активную подписку и делает устаревшими все
// колбэки, выданные под прежним поколением.
func (p *Projection) releaseLocked() {
	p.generation++
	if p.sub == nil {
		return
	}
	p.log().Debug("feed: закрываем подписку")
	p.sub.Cancel()
	p.sub = nil
	metrics.SubscriptionClosed(p.source.Name())
}

func (p *Projection) applySnapshot(gen uint64, reports []models.Report) {
	p.mu.Lock()
	if gen != p.generation || p.state != StateSubscribed {
		p.mu.Unlock()
		return
	}

	live := make([]models.Report, 0, len(reports))
	for _, r := range reports {
		if r.IsDeleted || r.CampusID != p.campusID {
			continue
		}
		live = append(live, r)
	}
	p.snapshot = live
	p.received = true
	p.recomputeLocked()
	p.status = Status{State: StateSubscribed, UpdatedAt: p.now()}
	metrics.SnapshotReceived(p.source.Name(), len(live))
	p.mu.Unlock()
	p.notify()
}

func (p *Projection) applyError(gen uint64, err error) {
	p.mu.Lock()
	if gen != p.generation || p.state != StateSubscribed {
		p.mu.Unlock()
		return
	}
	metrics.SubscriptionFailed(p.source.Name())
	p.status.Loading = false
	p.status.Stale = p.received
	p.status.Err = apperror.Wrap(err, apperror.ErrCodeSubscription, "подписка на жалобы прервана")
	p.status.UpdatedAt = p.now()
	p.log().WithError(err).Warn("feed: ошибка подписки, оставляем последний снимок")
	p.mu.Unlock()
	p.notify()
}

// SetCriteria заменяет сортировку и фильтр и пересчитывает
// представление по уже полученному снимку без переподписки.
func (p *Projection) SetCriteria(c Criteria) {
	p.mu.Lock()
	p.setSortLocked(c.Sort)
	p.criteria.Filter = c.Filter.Clone()
	p.recomputeLocked()
	p.mu.Unlock()
	p.notify()
}

// SetSort меняет только сортировку.
func (p *Projection) SetSort(s Sort) {
	p.mu.Lock()
	p.setSortLocked(s)
	p.recomputeLocked()
	p.mu.Unlock()
	p.notify()
}

// SetFilter меняет только фильтр.
func (p *Projection) SetFilter(f Filter) {
	p.mu.Lock()
	p.criteria.Filter = f.Clone()
	p.recomputeLocked()
	p.mu.Unlock()
	p.notify()
}

func (p *Projection) setSortLocked(s Sort) {
	normalized, ok := s.normalized()
	if !ok {
		metrics.CriteriaFallback("sort_key")
		p.log().WithField("sort_key", s.Key).Warn("feed: неизвестный ключ сортировки, сортируем по дате создания")
	}
	p.criteria.Sort = normalized
}

func (p *Projection) recomputeLocked() {
	started := time.Now()
	visible := p.criteria.Filter.Apply(p.snapshot)
	SortReports(visible, p.criteria.Sort)
	p.visible = visible
	metrics.ObserveRecompute(started)
}

// Close освобождает подписку. Повторный вызов безопасен.
func (p *Projection) Close() {
	p.mu.Lock()
	if p.state == StateUnsubscribed && p.sub == nil {
		p.mu.Unlock()
		return
	}
	p.releaseLocked()
	p.state = StateUnsubscribed
	p.snapshot = nil
	p.visible = nil
	p.received = false
	p.status = Status{State: StateUnsubscribed, UpdatedAt: p.now()}
	p.mu.Unlock()
	p.notify()
}

// OnChange регистрирует слушателя, вызываемого после каждого пересчёта.
// Возвращает функцию отписки.
func (p *Projection) OnChange(fn func()) func() {
	p.listenersMu.Lock()
	defer p.listenersMu.Unlock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	return func() {
		p.listenersMu.Lock()
		defer p.listenersMu.Unlock()
		delete(p.listeners, id)
	}
}

func (p *Projection) notify() {
	p.listenersMu.Lock()
	fns := make([]func(), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.listenersMu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// CampusID текущий кампус.
func (p *Projection) CampusID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.campusID
}

// State текущее состояние подписки.
func (p *Projection) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Status текущий статус загрузки.
func (p *Projection) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Criteria действующие критерии (после подмены неизвестного ключа).
func (p *Projection) Criteria() Criteria {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Criteria{Sort: p.criteria.Sort, Filter: p.criteria.Filter.Clone()}
}

// Received true, если получен хотя бы один снимок текущего кампуса.
func (p *Projection) Received() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.received
}

// Total число неудалённых жалоб без учёта фильтра.
func (p *Projection) Total() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.snapshot)
}

// All копия полного набора неудалённых жалоб.
func (p *Projection) All() []models.Report {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.snapshot)
}

// Visible копия отфильтрованного и отсортированного набора.
func (p *Projection) Visible() []models.Report {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.visible)
}
