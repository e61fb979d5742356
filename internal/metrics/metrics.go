package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	snapshotsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "campus_feed",
		Name:      "snapshots_total",
		Help:      "Number of report snapshots delivered by the live source",
	}, []string{"source"})
	snapshotSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "campus_feed",
		Name:      "snapshot_reports",
		Help:      "Number of non-deleted reports per accepted snapshot",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
	})
	recomputeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "campus_feed",
		Name:      "recompute_duration_seconds",
		Help:      "Time spent filtering and sorting a snapshot",
		Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 8),
	})
	activeSubscriptions = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "campus_feed",
		Name:      "active_subscriptions",
		Help:      "Live subscriptions currently held open",
	}, []string{"source"})
	subscriptionErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "campus_feed",
		Name:      "subscription_errors_total",
		Help:      "Errors reported by live subscriptions",
	}, []string{"source"})
	invalidCriteria = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "campus_feed",
		Name:      "invalid_criteria_total",
		Help:      "Criteria replaced by a fallback (unknown sort key, bad scope)",
	}, []string{"kind"})
	wsClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "campus_feed",
		Name:      "websocket_clients",
		Help:      "Connected websocket feed clients",
	})

	registerOnce sync.Once
)

// Register регистрирует все коллекторы в реестре. Повторные вызовы игнорируются.
func Register(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		reg.MustRegister(
			snapshotsTotal, snapshotSize, recomputeDuration,
			activeSubscriptions, subscriptionErrors, invalidCriteria, wsClients,
		)
	})
}

// SnapshotReceived учитывает принятый снимок.
func SnapshotReceived(source string, reports int) {
	snapshotsTotal.WithLabelValues(source).Inc()
	snapshotSize.Observe(float64(reports))
}

// ObserveRecompute учитывает время пересчёта представления.
func ObserveRecompute(started time.Time) {
	recomputeDuration.Observe(time.Since(started).Seconds())
}

// SubscriptionOpened увеличивает число активных подписок.
func SubscriptionOpened(source string) {
	activeSubscriptions.WithLabelValues(source).Inc()
}

// SubscriptionClosed уменьшает число активных подписок.
func SubscriptionClosed(source string) {
	activeSubscriptions.WithLabelValues(source).Dec()
}

// SubscriptionFailed учитывает ошибку подписки.
func SubscriptionFailed(source string) {
	subscriptionErrors.WithLabelValues(source).Inc()
}

// CriteriaFallback учитывает подмену некорректного критерия.
func CriteriaFallback(kind string) {
	invalidCriteria.WithLabelValues(kind).Inc()
}

// ClientConnected / ClientDisconnected отслеживают websocket клиентов.
func ClientConnected()    { wsClients.Inc() }
func ClientDisconnected() { wsClients.Dec() }
