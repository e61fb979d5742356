package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterIsIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NotPanics(t, func() {
		Register(reg)
		Register(reg)
	})
}

func TestSubscriptionGauge(t *testing.T) {
	before := testutil.ToFloat64(activeSubscriptions.WithLabelValues("unit"))

	SubscriptionOpened("unit")
	SubscriptionOpened("unit")
	SubscriptionClosed("unit")

	assert.Equal(t, before+1, testutil.ToFloat64(activeSubscriptions.WithLabelValues("unit")))
}

func TestCriteriaFallbackCounter(t *testing.T) {
	before := testutil.ToFloat64(invalidCriteria.WithLabelValues("sort_key"))
	CriteriaFallback("sort_key")
	assert.Equal(t, before+1, testutil.ToFloat64(invalidCriteria.WithLabelValues("sort_key")))
}

func TestSnapshotReceived(t *testing.T) {
	before := testutil.ToFloat64(snapshotsTotal.WithLabelValues("unit"))
	SnapshotReceived("unit", 12)
	assert.Equal(t, before+1, testutil.ToFloat64(snapshotsTotal.WithLabelValues("unit")))

	expected := `
# HELP campus_feed_websocket_clients Connected websocket feed clients
# TYPE campus_feed_websocket_clients gauge
campus_feed_websocket_clients 1
`
	ClientConnected()
	defer ClientDisconnected()
	require.NoError(t, testutil.CollectAndCompare(wsClients, strings.NewReader(expected)))
}
