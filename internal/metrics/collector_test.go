package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorRecords(t *testing.T) {
	c := NewCollector()

	c.ToolExecuted("add_events", "SUCCESS", 20*time.Millisecond)
	c.ToolExecuted("add_events", "SUCCESS", 10*time.Millisecond)
	c.ToolExecuted("add_events", "CONFLICT", 10*time.Millisecond)
	c.CacheLookup("local", true)
	c.CacheLookup("local", false)
	c.CacheInvalidated("local", 3)
	c.LLMRequest(time.Second, errors.New("boom"))
	c.ConflictChecked("conflict")
	c.TurnFinished("done", 2)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.toolExecutions.WithLabelValues("add_events", "SUCCESS")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.toolExecutions.WithLabelValues("add_events", "CONFLICT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cacheLookups.WithLabelValues("local", "hit")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.invalidations.WithLabelValues("local")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.llmRequests.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.turns.WithLabelValues("done")))
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.ToolExecuted("get_events", "SUCCESS", time.Millisecond)
		c.CacheLookup("valkey", false)
		c.CacheInvalidated("valkey", 1)
		c.LLMRequest(time.Millisecond, nil)
		c.ConflictChecked("clear")
		c.TurnFinished("exhausted", 5)
	})
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := NewCollector()
	c.ConflictChecked("overridden")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `calendarbot_conflict_checks_total{outcome="overridden"} 1`), body)
}
