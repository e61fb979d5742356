package source

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/campus-complaints-backend/internal/feed"
	"github.com/ignatzorin/campus-complaints-backend/internal/goroutine"
	"github.com/ignatzorin/campus-complaints-backend/internal/logger"
	"github.com/ignatzorin/campus-complaints-backend/internal/models"
	"github.com/ignatzorin/campus-complaints-backend/internal/pkg/apperror"
)

// ErrListenerDisconnected соединение LISTEN потеряно, уведомления могут быть пропущены.
var ErrListenerDisconnected = errors.New("postgres source: соединение LISTEN потеряно")

// NotifyChannel канал, в который триггер reports_notify из
// migrations/001_reports.sql шлёт campus_id.
const NotifyChannel = "report_changes"

// PostgresOptions настройки источника.
type PostgresOptions struct {
	ResyncSchedule string
	QueryTimeout   time.Duration
}

// PostgresSource подписка на жалобы через LISTEN/NOTIFY. Триггер таблицы
// шлёт campus_id в канал, источник перечитывает весь набор кампуса и
// рассылает его подписчикам. По расписанию cron выполняется полная
// пересинхронизация на случай потерянных уведомлений.
type PostgresSource struct {
	db        *sqlx.DB
	listener  *pq.Listener
	scheduler *cron.Cron
	opts      PostgresOptions

	// reloadLocks сериализуют чтение и рассылку по кампусу,
	// чтобы более старый снимок не пришёл после нового.
	reloadLocks sync.Map

	mu       sync.Mutex
	byCampus map[string]map[uuid.UUID]*pgSubscription
	closed   bool
}

type pgSubscription struct {
	id        uuid.UUID
	campusID  string
	handler   feed.SnapshotHandler
	src       *PostgresSource
	deliverMu sync.Mutex
	cancelled atomic.Bool
}

// NewPostgresSource создаёт источник и начинает слушать канал.
func NewPostgresSource(db *sqlx.DB, dsn string, opts PostgresOptions) (*PostgresSource, error) {
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = 5 * time.Second
	}

	s := &PostgresSource{
		db:       db,
		opts:     opts,
		byCampus: make(map[string]map[uuid.UUID]*pgSubscription),
	}

	s.listener = pq.NewListener(dsn, 10*time.Second, time.Minute, s.onListenerEvent)
	if err := s.listener.Listen(NotifyChannel); err != nil {
		_ = s.listener.Close()
		return nil, fmt.Errorf("postgres source: не удалось подписаться на канал %s: %w", NotifyChannel, err)
	}

	s.scheduler = cron.New()
	if opts.ResyncSchedule != "" {
		if _, err := s.scheduler.AddFunc(opts.ResyncSchedule, s.resyncAll); err != nil {
			_ = s.listener.Close()
			return nil, fmt.Errorf("postgres source: некорректное расписание %q: %w", opts.ResyncSchedule, err)
		}
	}

	return s, nil
}

// Name имя источника для метрик и логов.
func (s *PostgresSource) Name() string { return "postgres" }

func (s *PostgresSource) log() *logrus.Entry {
	return logger.Log.WithFields(logrus.Fields{"source": s.Name(), "channel": NotifyChannel})
}

// Run обрабатывает уведомления до отмены контекста.
func (s *PostgresSource) Run(ctx context.Context) {
	s.scheduler.Start()
	defer s.scheduler.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-s.listener.Notify:
			if !ok {
				return
			}
			if n == nil {
				// После переподключения pq отправляет nil: изменения могли потеряться.
				s.resyncAll()
				continue
			}
			s.reloadCampus(n.Extra)
		case <-time.After(90 * time.Second):
			goroutine.SafeGo(func() {
				if err := s.listener.Ping(); err != nil {
					s.log().WithError(err).Warn("postgres source: ping LISTEN соединения не прошёл")
				}
			})
		}
	}
}

// onListenerEvent переводит события соединения в ошибки подписок.
func (s *PostgresSource) onListenerEvent(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventDisconnected, pq.ListenerEventConnectionAttemptFailed:
		if err == nil {
			err = ErrListenerDisconnected
		}
		s.log().WithError(err).Warn("postgres source: соединение LISTEN недоступно")
		s.failAll(fmt.Errorf("%w: %v", ErrListenerDisconnected, err))
	case pq.ListenerEventReconnected:
		s.log().Info("postgres source: соединение LISTEN восстановлено")
	}
}

// Subscribe регистрирует подписчика; первый снимок приходит асинхронно.
func (s *PostgresSource) Subscribe(_ context.Context, campusID string, handler feed.SnapshotHandler) (feed.Subscription, error) {
	if campusID == "" {
		return nil, apperror.ErrCampusRequired
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, apperror.ErrSourceClosed
	}
	sub := &pgSubscription{id: uuid.New(), campusID: campusID, handler: handler, src: s}
	subs, ok := s.byCampus[campusID]
	if !ok {
		subs = make(map[uuid.UUID]*pgSubscription)
		s.byCampus[campusID] = subs
	}
	subs[sub.id] = sub
	s.mu.Unlock()

	goroutine.SafeGo(func() { s.reload(campusID, []*pgSubscription{sub}) })
	return sub, nil
}

// Cancel снимает подписку. Повторный вызов безопасен.
func (sub *pgSubscription) Cancel() {
	if !sub.cancelled.CompareAndSwap(false, true) {
		return
	}
	src := sub.src
	src.mu.Lock()
	defer src.mu.Unlock()
	if subs, ok := src.byCampus[sub.campusID]; ok {
		delete(subs, sub.id)
		if len(subs) == 0 {
			delete(src.byCampus, sub.campusID)
		}
	}
}

func (sub *pgSubscription) deliver(reports []models.Report) {
	sub.deliverMu.Lock()
	defer sub.deliverMu.Unlock()
	if sub.cancelled.Load() || sub.handler.OnSnapshot == nil {
		return
	}
	sub.handler.OnSnapshot(reports)
}

func (sub *pgSubscription) fail(err error) {
	sub.deliverMu.Lock()
	defer sub.deliverMu.Unlock()
	if sub.cancelled.Load() || sub.handler.OnError == nil {
		return
	}
	sub.handler.OnError(err)
}

func (s *PostgresSource) subscribers(campusID string) []*pgSubscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	subs := s.byCampus[campusID]
	out := make([]*pgSubscription, 0, len(subs))
	for _, sub := range subs {
		out = append(out, sub)
	}
	return out
}

func (s *PostgresSource) campuses() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.byCampus))
	for campusID := range s.byCampus {
		out = append(out, campusID)
	}
	return out
}

func (s *PostgresSource) reloadCampus(campusID string) {
	subs := s.subscribers(campusID)
	if len(subs) == 0 {
		return
	}
	s.reload(campusID, subs)
}

// resyncAll перечитывает все кампусы, на которые есть подписки.
func (s *PostgresSource) resyncAll() {
	for _, campusID := range s.campuses() {
		s.reloadCampus(campusID)
	}
}

func (s *PostgresSource) failAll(err error) {
	for _, campusID := range s.campuses() {
		for _, sub := range s.subscribers(campusID) {
			sub.fail(err)
		}
	}
}

// reload читает полный набор жалоб кампуса и отдаёт его подписчикам.
func (s *PostgresSource) reload(campusID string, subs []*pgSubscription) {
	lock, _ := s.reloadLocks.LoadOrStore(campusID, &sync.Mutex{})
	lock.(*sync.Mutex).Lock()
	defer lock.(*sync.Mutex).Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.QueryTimeout)
	defer cancel()

	reports, err := s.load(ctx, campusID)
	if err != nil {
		logger.ForCampus(campusID).WithError(err).Warn("postgres source: не удалось прочитать жалобы")
		for _, sub := range subs {
			sub.fail(err)
		}
		return
	}
	for _, sub := range subs {
		// Подписчики владеют своими снимками.
		sub.deliver(cloneReports(reports))
	}
}

func (s *PostgresSource) load(ctx context.Context, campusID string) ([]models.Report, error) {
	var rows []reportRow
	if err := s.db.SelectContext(ctx, &rows, selectCampusReports, campusID); err != nil {
		return nil, fmt.Errorf("postgres source: выборка жалоб: %w", err)
	}
	reports := make([]models.Report, 0, len(rows))
	for _, row := range rows {
		reports = append(reports, row.toModel())
	}
	return reports, nil
}

// Ping проверяет соединение с базой.
func (s *PostgresSource) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close останавливает прослушивание и снимает подписки.
func (s *PostgresSource) Close() error {
	s.mu.Lock()
	s.closed = true
	for campusID, subs := range s.byCampus {
		for _, sub := range subs {
			sub.cancelled.Store(true)
		}
		delete(s.byCampus, campusID)
	}
	s.mu.Unlock()
	return s.listener.Close()
}

func cloneReports(reports []models.Report) []models.Report {
	out := make([]models.Report, len(reports))
	copy(out, reports)
	return out
}
