package feed

import (
	"context"
	"sync"
	"time"

	"github.com/ignatzorin/campus-complaints-backend/internal/models"
	"github.com/ignatzorin/campus-complaints-backend/internal/pkg/apperror"
)

// DefaultPageSize размер страницы, если не задан явно.
const DefaultPageSize = 10

// Options параметры потребителя ленты. Роль и кампус передаются явно,
// глобального состояния у ленты нет.
type Options struct {
	CampusID      string
	ActorPersonID string
	Role          string
	Scope         ViewScope
	PageSize      int
	Criteria      Criteria
}

// StatusView статус в виде, пригодном для отдачи клиенту.
type StatusView struct {
	State     string    `json:"state"`
	Loading   bool      `json:"loading"`
	Stale     bool      `json:"stale"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// FilterView фильтр в виде списков.
type FilterView struct {
	Statuses   []string `json:"status"`
	Areas      []string `json:"areas"`
	Categories []string `json:"categories"`
}

// View готовая страница ленты.
type View struct {
	CampusID   string          `json:"campusId"`
	Total      int             `json:"total"`
	Matched    int             `json:"matched"`
	Items      []models.Report `json:"items"`
	Page       int             `json:"page"`
	TotalPages int             `json:"totalPages"`
	PageSize   int             `json:"pageSize"`
	Scope      ViewScope       `json:"scope"`
	Sort       Sort            `json:"sort"`
	Filter     FilterView      `json:"filter"`
	Status     StatusView      `json:"status"`
}

// Feed единый конвейер снимок → фильтр → сортировка → область → страница
// для одного потребителя.
type Feed struct {
	projection *Projection

	mu       sync.Mutex
	actorID  string
	scope    ViewScope
	pageSize int
	page     int

	listenersMu sync.Mutex
	listeners   map[int]func(View)
	nextID      int

	// notifyMu упорядочивает сборку представления и рассылку: снимки
	// источника и команды клиента приходят из разных горутин.
	notifyMu sync.Mutex

	detach func()
}

// New создаёт ленту поверх источника. Подписка открывается, если
// в opts указан кампус.
func New(ctx context.Context, source Source, opts Options) (*Feed, error) {
	scope := opts.Scope
	if scope == "" {
		scope = ScopeForRole(opts.Role)
	}
	if scope.NeedsActor() && opts.ActorPersonID == "" {
		return nil, apperror.ErrActorRequired
	}
	pageSize := opts.PageSize
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}
	if pageSize < 0 {
		return nil, apperror.ErrInvalidPageSize
	}

	f := &Feed{
		projection: NewProjection(source),
		actorID:    opts.ActorPersonID,
		scope:      scope,
		pageSize:   pageSize,
		page:       1,
		listeners:  make(map[int]func(View)),
	}
	f.projection.SetCriteria(opts.Criteria)
	f.detach = f.projection.OnChange(f.onProjectionChange)

	if opts.CampusID != "" {
		if err := f.projection.SetCampus(ctx, opts.CampusID); err != nil && !apperror.IsSubscription(err) {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}

// Projection возвращает проекцию ленты.
func (f *Feed) Projection() *Projection {
	return f.projection
}

// SetCampus переключает кампус. Номер страницы сбрасывается.
func (f *Feed) SetCampus(ctx context.Context, campusID string) error {
	f.mu.Lock()
	f.page = 1
	f.mu.Unlock()
	return f.projection.SetCampus(ctx, campusID)
}

// SetSort меняет сортировку без переподписки.
func (f *Feed) SetSort(s Sort) {
	f.projection.SetSort(s)
}

// SetFilter меняет фильтр без переподписки.
func (f *Feed) SetFilter(filter Filter) {
	f.projection.SetFilter(filter)
}

// SetScope меняет область просмотра.
func (f *Feed) SetScope(scope ViewScope) error {
	f.mu.Lock()
	if scope.NeedsActor() && f.actorID == "" {
		f.mu.Unlock()
		return apperror.ErrActorRequired
	}
	f.scope = scope
	f.mu.Unlock()
	f.changed()
	return nil
}

// SetActor меняет участника, от чьего имени строится область.
func (f *Feed) SetActor(personID string) error {
	f.mu.Lock()
	if f.scope.NeedsActor() && personID == "" {
		f.mu.Unlock()
		return apperror.ErrActorRequired
	}
	f.actorID = personID
	f.mu.Unlock()
	f.changed()
	return nil
}

// SetPage запоминает запрошенную страницу. Номер вне диапазона
// будет ограничен при следующем пересчёте.
func (f *Feed) SetPage(page int) {
	f.mu.Lock()
	f.page = page
	f.mu.Unlock()
	f.changed()
}

// SetPageSize меняет размер страницы.
func (f *Feed) SetPageSize(size int) error {
	if size <= 0 {
		return apperror.ErrInvalidPageSize
	}
	f.mu.Lock()
	f.pageSize = size
	f.mu.Unlock()
	f.changed()
	return nil
}

// Page текущая (уже ограниченная) страница.
func (f *Feed) Page() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.page
}

// View собирает текущую страницу. Если страница вышла за пределы после
// сокращения набора, она ограничивается и запоминается.
func (f *Feed) View() View {
	criteria := f.projection.Criteria()
	visible := f.projection.Visible()
	status := f.projection.Status()
	total := f.projection.Total()
	campusID := f.projection.CampusID()

	f.mu.Lock()
	defer f.mu.Unlock()

	scoped := SelectScope(visible, f.scope, f.actorID)
	// pageSize всегда положителен, ошибка невозможна.
	window, _ := Paginate(scoped, f.pageSize, f.page)
	if window.Clamped {
		f.page = window.Page
	}

	items := window.Items
	if items == nil {
		items = []models.Report{}
	}

	view := View{
		CampusID:   campusID,
		Total:      total,
		Matched:    len(scoped),
		Items:      items,
		Page:       window.Page,
		TotalPages: window.TotalPages,
		PageSize:   f.pageSize,
		Scope:      f.scope,
		Sort:       criteria.Sort,
		Filter: FilterView{
			Statuses:   criteria.Filter.Statuses.Values(),
			Areas:      criteria.Filter.Areas.Values(),
			Categories: criteria.Filter.Categories.Values(),
		},
		Status: StatusView{
			State:     status.State.String(),
			Loading:   status.Loading,
			Stale:     status.Stale,
			UpdatedAt: status.UpdatedAt,
		},
	}
	if status.Err != nil {
		view.Status.Error = status.Err.Error()
	}
	return view
}

// OnChange регистрирует слушателя готовых представлений.
func (f *Feed) OnChange(fn func(View)) func() {
	f.listenersMu.Lock()
	defer f.listenersMu.Unlock()
	id := f.nextID
	f.nextID++
	f.listeners[id] = fn
	return func() {
		f.listenersMu.Lock()
		defer f.listenersMu.Unlock()
		delete(f.listeners, id)
	}
}

// Refresh рассылает текущее представление всем слушателям.
func (f *Feed) Refresh() {
	f.changed()
}

func (f *Feed) onProjectionChange() {
	f.changed()
}

// changed пересобирает представление и рассылает его. Слушатели не должны
// блокироваться и не должны вызывать сеттеры ленты.
func (f *Feed) changed() {
	f.notifyMu.Lock()
	defer f.notifyMu.Unlock()

	f.listenersMu.Lock()
	if len(f.listeners) == 0 {
		f.listenersMu.Unlock()
		// Ограничиваем страницу даже без слушателей.
		f.View()
		return
	}
	fns := make([]func(View), 0, len(f.listeners))
	for _, fn := range f.listeners {
		fns = append(fns, fn)
	}
	f.listenersMu.Unlock()

	view := f.View()
	for _, fn := range fns {
		fn(view)
	}
}

// Close освобождает подписку и отключает слушателей.
func (f *Feed) Close() {
	if f.detach != nil {
		f.detach()
	}
	f.projection.Close()
	f.listenersMu.Lock()
	f.listeners = make(map[int]func(View))
	f.listenersMu.Unlock()
}
