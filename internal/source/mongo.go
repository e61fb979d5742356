package source

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ignatzorin/campus-complaints-backend/internal/feed"
	"github.com/ignatzorin/campus-complaints-backend/internal/goroutine"
	"github.com/ignatzorin/campus-complaints-backend/internal/logger"
	"github.com/ignatzorin/campus-complaints-backend/internal/models"
	"github.com/ignatzorin/campus-complaints-backend/internal/pkg/apperror"
)

// MongoOptions настройки источника.
type MongoOptions struct {
	QueryTimeout time.Duration
	RetryDelay   time.Duration
}

// MongoSource подписка на коллекцию reports через change stream.
// На каждое событие источник перечитывает весь набор кампуса.
type MongoSource struct {
	coll *mongo.Collection
	opts MongoOptions
}

// NewMongoSource создаёт источник поверх коллекции.
func NewMongoSource(coll *mongo.Collection, opts MongoOptions) *MongoSource {
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = 5 * time.Second
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 3 * time.Second
	}
	return &MongoSource{coll: coll, opts: opts}
}

// Name имя источника для метрик и логов.
func (s *MongoSource) Name() string { return "mongo" }

// mongoReport документ коллекции; _id может быть ObjectID или строкой.
type mongoReport struct {
	RawID         interface{} `bson:"_id"`
	models.Report `bson:",inline"`
}

func (d mongoReport) toModel() models.Report {
	report := d.Report
	switch id := d.RawID.(type) {
	case primitive.ObjectID:
		report.ID = id.Hex()
	case string:
		report.ID = id
	default:
		report.ID = fmt.Sprint(id)
	}
	return report
}

type mongoSubscription struct {
	campusID  string
	handler   feed.SnapshotHandler
	cancel    context.CancelFunc
	cancelled atomic.Bool
	mu        sync.Mutex
}

// Subscribe запускает горутину с change stream для кампуса.
func (s *MongoSource) Subscribe(_ context.Context, campusID string, handler feed.SnapshotHandler) (feed.Subscription, error) {
	if campusID == "" {
		return nil, apperror.ErrCampusRequired
	}

	ctx, cancel := context.WithCancel(context.Background())
	sub := &mongoSubscription{
		campusID: campusID,
		handler:  handler,
		cancel:   cancel,
	}
	goroutine.SafeGoWithContext(ctx, func(ctx context.Context) {
		s.watch(ctx, sub)
	})
	return sub, nil
}

// Cancel останавливает change stream. Повторный вызов безопасен.
func (sub *mongoSubscription) Cancel() {
	if !sub.cancelled.CompareAndSwap(false, true) {
		return
	}
	sub.cancel()
}

func (sub *mongoSubscription) deliver(reports []models.Report) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.cancelled.Load() || sub.handler.OnSnapshot == nil {
		return
	}
	sub.handler.OnSnapshot(reports)
}

func (sub *mongoSubscription) fail(err error) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.cancelled.Load() || sub.handler.OnError == nil {
		return
	}
	sub.handler.OnError(err)
}

// watch держит change stream открытым и переоткрывает его после ошибок.
func (s *MongoSource) watch(ctx context.Context, sub *mongoSubscription) {
	log := logger.ForCampus(sub.campusID).WithField("source", s.Name())
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "$or", Value: bson.A{
			bson.D{{Key: "fullDocument.campusId", Value: sub.campusID}},
			bson.D{{Key: "operationType", Value: "delete"}},
		}}}}},
	}
	streamOpts := options.ChangeStream().SetFullDocument(options.UpdateLookup)

	for ctx.Err() == nil {
		stream, err := s.coll.Watch(ctx, pipeline, streamOpts)
		if err != nil {
			log.WithError(err).Warn("mongo source: не удалось открыть change stream")
			sub.fail(fmt.Errorf("mongo source: change stream: %w", err))
			if !sleepCtx(ctx, s.opts.RetryDelay) {
				return
			}
			continue
		}

		// Снимок читается после открытия потока, чтобы не пропустить изменения между ними.
		if err := s.push(ctx, sub); err != nil {
			log.WithError(err).Warn("mongo source: не удалось прочитать жалобы")
		}
		for stream.Next(ctx) {
			if err := s.push(ctx, sub); err != nil {
				log.WithError(err).Warn("mongo source: не удалось прочитать жалобы")
			}
		}
		streamErr := stream.Err()
		_ = stream.Close(context.Background())
		if ctx.Err() != nil {
			return
		}
		if streamErr != nil {
			log.WithError(streamErr).Warn("mongo source: change stream прерван")
			sub.fail(fmt.Errorf("mongo source: change stream: %w", streamErr))
		}
		if !sleepCtx(ctx, s.opts.RetryDelay) {
			return
		}
	}
}

// push читает полный набор кампуса и отдаёт его подписчику.
func (s *MongoSource) push(ctx context.Context, sub *mongoSubscription) error {
	reports, err := s.load(ctx, sub.campusID)
	if err != nil {
		if ctx.Err() == nil {
			sub.fail(err)
		}
		return err
	}
	sub.deliver(reports)
	return nil
}

func (s *MongoSource) load(ctx context.Context, campusID string) ([]models.Report, error) {
	queryCtx, cancel := context.WithTimeout(ctx, s.opts.QueryTimeout)
	defer cancel()

	filter := bson.M{"campusId": campusID, "isDeleted": bson.M{"$ne": true}}
	findOpts := options.Find().SetSort(bson.D{{Key: "createdDate", Value: -1}})

	cursor, err := s.coll.Find(queryCtx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("mongo source: выборка жалоб: %w", err)
	}
	defer cursor.Close(queryCtx)

	var docs []mongoReport
	if err := cursor.All(queryCtx, &docs); err != nil {
		return nil, fmt.Errorf("mongo source: декодирование жалоб: %w", err)
	}
	reports := make([]models.Report, 0, len(docs))
	for _, doc := range docs {
		reports = append(reports, doc.toModel())
	}
	return reports, nil
}

// Ping проверяет соединение с базой.
func (s *MongoSource) Ping(ctx context.Context) error {
	return s.coll.Database().Client().Ping(ctx, nil)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// EnsureIndexes создаёт индекс под выборку ленты кампуса.
func (s *MongoSource) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "campusId", Value: 1}, {Key: "createdDate", Value: -1}},
		Options: options.Index().SetName("campus_created"),
	})
	if err != nil {
		return fmt.Errorf("mongo source: не удалось создать индекс: %w", err)
	}
	return nil
}
