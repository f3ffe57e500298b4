package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorRecords(t *testing.T) {
	c := New(DefaultConfig())

	c.SetRecords(7)
	c.ObserveDecay("decay", 2)
	c.ObserveDecay("hard", 5)
	c.ObserveRecall(3 * time.Millisecond)
	c.ObserveSnapshot(OpSave, nil)
	c.ObserveSnapshot(OpSave, errors.New("disk full"))
	c.ObserveSnapshot(OpLoad, nil)

	assert.Equal(t, 7.0, testutil.ToFloat64(c.records))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.decayPasses.WithLabelValues("decay")))
	assert.Equal(t, 7.0, testutil.ToFloat64(c.evictions))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.recalls))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.snapshots.WithLabelValues(OpSave, StatusOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.snapshots.WithLabelValues(OpSave, StatusErr)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.snapshots.WithLabelValues(OpLoad, StatusOK)))
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.SetRecords(1)
		c.ObserveDecay("decay", 1)
		c.ObserveRecall(time.Second)
		c.ObserveSnapshot(OpPrune, nil)
	})
}

func TestHandlerExposition(t *testing.T) {
	c := New(Config{})
	c.SetRecords(3)
	c.ObserveRecall(time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)
	assert.True(t, strings.Contains(text, "mnemo_records 3"), text)
	assert.True(t, strings.Contains(text, "mnemo_recalls_total 1"), text)
	assert.True(t, strings.Contains(text, "mnemo_recall_latency_seconds_bucket"), text)
}
