package service

import (
	"context"
	"errors"
	"time"

	"github.com/ignatzorin/campus-complaints-backend/internal/beacon"
	"github.com/ignatzorin/campus-complaints-backend/internal/feed"
	"github.com/ignatzorin/campus-complaints-backend/internal/logger"
	"github.com/ignatzorin/campus-complaints-backend/internal/models"
	"github.com/ignatzorin/campus-complaints-backend/internal/pkg/apperror"
)

// Query параметры одного запроса ленты.
type Query struct {
	Actor    Actor
	Scope    feed.ViewScope
	Sort     feed.Sort
	Filter   feed.Filter
	Beacon   string
	Page     int
	PageSize int
}

// FeedService открывает ленты поверх источника жалоб.
type FeedService struct {
	source   feed.Source
	beacons  beacon.Resolver
	timeout  time.Duration
	pageSize int
}

// NewFeedService создаёт сервис. beacons может быть nil.
func NewFeedService(source feed.Source, beacons beacon.Resolver, timeout time.Duration, pageSize int) *FeedService {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if pageSize <= 0 {
		pageSize = feed.DefaultPageSize
	}
	return &FeedService{
		source:   source,
		beacons:  beacons,
		timeout:  timeout,
		pageSize: pageSize,
	}
}

// SourceName имя подключённого источника.
func (s *FeedService) SourceName() string {
	return s.source.Name()
}

// ResolveBeacon сопоставляет маячок зоне кампуса.
func (s *FeedService) ResolveBeacon(ctx context.Context, campusID, name string) (models.Area, error) {
	if s.beacons == nil {
		return models.Area{}, apperror.ErrBeaconUnknown
	}
	return s.beacons.Resolve(ctx, campusID, name)
}

// Options собирает параметры ленты. Маячок превращается в фильтр по зоне.
func (s *FeedService) Options(ctx context.Context, campusID string, q Query) (feed.Options, error) {
	if campusID == "" {
		return feed.Options{}, apperror.ErrCampusRequired
	}
	if q.Actor.CampusID != "" && q.Actor.CampusID != campusID {
		logger.ForCampus(campusID).
			WithField("token_campus", q.Actor.CampusID).
			Debug("feed service: кампус токена отличается от запрошенного")
	}

	filter := q.Filter.Clone()
	if q.Beacon != "" {
		area, err := s.ResolveBeacon(ctx, campusID, q.Beacon)
		if err != nil {
			return feed.Options{}, err
		}
		filter.Areas = feed.NewSet(area.Name)
	}

	pageSize := q.PageSize
	if pageSize == 0 {
		pageSize = s.pageSize
	}
	if pageSize < 0 {
		return feed.Options{}, apperror.ErrInvalidPageSize
	}

	return feed.Options{
		CampusID:      campusID,
		ActorPersonID: q.Actor.PersonID,
		Role:          q.Actor.Role,
		Scope:         q.Scope,
		PageSize:      pageSize,
		Criteria:      feed.Criteria{Sort: q.Sort, Filter: filter},
	}, nil
}

// Open открывает живую ленту. Закрыть её должен вызывающий.
func (s *FeedService) Open(ctx context.Context, campusID string, q Query) (*feed.Feed, error) {
	opts, err := s.Options(ctx, campusID, q)
	if err != nil {
		return nil, err
	}
	f, err := feed.New(ctx, s.source, opts)
	if err != nil {
		return nil, err
	}
	if q.Page > 0 {
		f.SetPage(q.Page)
	}
	return f, nil
}

// Query открывает ленту, ждёт первый снимок и возвращает страницу.
func (s *FeedService) Query(ctx context.Context, campusID string, q Query) (feed.View, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	f, err := s.Open(ctx, campusID, q)
	if err != nil {
		return feed.View{}, err
	}
	defer f.Close()

	changed := make(chan struct{}, 1)
	detach := f.Projection().OnChange(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer detach()

	for {
		projection := f.Projection()
		if projection.Received() {
			return f.View(), nil
		}
		if status := projection.Status(); status.Err != nil {
			return feed.View{}, status.Err
		}

		select {
		case <-changed:
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				logger.ForCampus(campusID).WithField("timeout", s.timeout).Warn("feed service: снимок не получен вовремя")
				return feed.View{}, apperror.ErrSnapshotTimeout
			}
			return feed.View{}, ctx.Err()
		}
	}
}
