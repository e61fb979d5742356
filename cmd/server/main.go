package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/ignatzorin/campus-complaints-backend/internal/beacon"
	"github.com/ignatzorin/campus-complaints-backend/internal/config"
	"github.com/ignatzorin/campus-complaints-backend/internal/db"
	"github.com/ignatzorin/campus-complaints-backend/internal/feed"
	"github.com/ignatzorin/campus-complaints-backend/internal/goroutine"
	httpHandlers "github.com/ignatzorin/campus-complaints-backend/internal/http/handlers"
	"github.com/ignatzorin/campus-complaints-backend/internal/http/middleware"
	httpRouter "github.com/ignatzorin/campus-complaints-backend/internal/http/router"
	"github.com/ignatzorin/campus-complaints-backend/internal/logger"
	"github.com/ignatzorin/campus-complaints-backend/internal/metrics"
	"github.com/ignatzorin/campus-complaints-backend/internal/service"
	"github.com/ignatzorin/campus-complaints-backend/internal/source"
	"github.com/ignatzorin/campus-complaints-backend/internal/ws"
)

// liveSource источник ленты вместе с его проверкой и остановкой.
type liveSource struct {
	feed.Source
	ping  httpHandlers.Pinger
	close func()
}

func main() {
	// Готовим контекст для graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: ошибка загрузки конфигурации: %v", err)
	}

	// Инициализация логгера
	logLevel := "info"
	if cfg.Env == "development" {
		logLevel = "debug"
		logger.Init(logLevel)
		logger.SetTextFormatter()
	} else {
		logger.Init(logLevel)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics.Register(registry)

	src, err := openSource(ctx, cfg)
	if err != nil {
		log.Fatalf("main: не удалось открыть источник %s: %v", cfg.FeedSource, err)
	}
	defer src.close()

	var beacons beacon.Resolver
	if cfg.BeaconMapPath != "" {
		resolver, err := beacon.LoadFile(cfg.BeaconMapPath)
		if err != nil {
			log.Fatalf("main: не удалось загрузить карту маячков: %v", err)
		}
		beacons = resolver
	}

	tokenManager := service.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTL)
	feedService := service.NewFeedService(src, beacons, cfg.FeedQueryTimeout, cfg.FeedPageSize)

	// Вебсокеты.
	hub := ws.NewHub(ctx)
	goroutine.SafeGo(hub.Run)

	// HTTP хэндлеры.
	feedHandler := httpHandlers.NewFeedHandler(feedService, hub, tokenManager, middleware.OriginChecker(cfg.AllowedOrigins))
	healthHandler := httpHandlers.NewHealthHandler(map[string]httpHandlers.Pinger{src.Name(): src.ping}, hub.Count)

	// Роутер.
	engine := httpRouter.SetupRouter(cfg, feedHandler, healthHandler, tokenManager, registry)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Завершаем сервер при получении сигнала.
	goroutine.SafeGo(func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Log.WithError(err).Error("main: ошибка остановки http сервера")
		}
	})

	logger.Log.WithField("port", cfg.HTTPPort).WithField("source", cfg.FeedSource).Info("main: HTTP сервер запущен")

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("main: сервер завершился с ошибкой: %v", err)
	}
}

// openSource подключает источник, выбранный в FEED_SOURCE.
func openSource(ctx context.Context, cfg *config.Config) (*liveSource, error) {
	switch cfg.FeedSource {
	case config.SourceMongo:
		return openMongo(ctx, cfg)
	case config.SourceMemory:
		return openMemory(cfg)
	default:
		return openPostgres(ctx, cfg)
	}
}

func openPostgres(ctx context.Context, cfg *config.Config) (*liveSource, error) {
	dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	if err := db.RunMigrations(ctx, dbConn, os.DirFS(cfg.MigrationsPath)); err != nil {
		safeClose(dbConn)
		return nil, err
	}

	pg, err := source.NewPostgresSource(dbConn, cfg.DatabaseURL, source.PostgresOptions{
		ResyncSchedule: cfg.FeedResync,
		QueryTimeout:   cfg.FeedQueryTimeout,
	})
	if err != nil {
		safeClose(dbConn)
		return nil, err
	}
	goroutine.SafeGoWithContext(ctx, pg.Run)

	return &liveSource{
		Source: pg,
		ping:   pg,
		close: func() {
			if err := pg.Close(); err != nil {
				logger.Log.WithError(err).Warn("main: ошибка остановки LISTEN")
			}
			safeClose(dbConn)
		},
	}, nil
}

func openMongo(ctx context.Context, cfg *config.Config) (*liveSource, error) {
	client, err := db.NewMongo(ctx, cfg.MongoURI)
	if err != nil {
		return nil, err
	}

	src := source.NewMongoSource(client.Database(cfg.MongoDatabase).Collection("reports"), source.MongoOptions{
		QueryTimeout: cfg.FeedQueryTimeout,
	})
	if err := src.EnsureIndexes(ctx); err != nil {
		// Без индекса лента работает, только медленнее.
		logger.Log.WithError(err).Warn("main: индекс reports не создан")
	}

	return &liveSource{
		Source: src,
		ping:   src,
		close:  func() { disconnectMongo(client) },
	}, nil
}

func openMemory(cfg *config.Config) (*liveSource, error) {
	src := source.NewMemorySource()
	if cfg.FeedSeedPath != "" {
		f, err := os.Open(cfg.FeedSeedPath)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		n, err := src.LoadJSON(f)
		if err != nil {
			return nil, err
		}
		logger.Log.WithField("reports", n).Info("main: загружены начальные жалобы")
	}

	return &liveSource{
		Source: src,
		ping:   src,
		close:  func() { _ = src.Close() },
	}, nil
}

// safeClose закрывает соединение с базой.
func safeClose(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		log.Printf("main: ошибка закрытия базы: %v", err)
	}
}

func disconnectMongo(client *mongo.Client) {
	if err := db.DisconnectMongo(client); err != nil {
		log.Printf("main: ошибка отключения от MongoDB: %v", err)
	}
}
