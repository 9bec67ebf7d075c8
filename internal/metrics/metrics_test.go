package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewCollector(t *testing.T) {
	c := NewCollector("test")
	if c == nil {
		t.Fatal("NewCollector returned nil")
	}
	if c.Registry() == nil {
		t.Error("registry should not be nil")
	}
}

func TestNewCollector_DefaultNamespace(t *testing.T) {
	c := NewCollector("")
	c.RecordOperation("draw", time.Millisecond, nil)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if !strings.Contains(rec.Body.String(), "lottery_engine_operations_total") {
		t.Error("expected metrics under the lottery namespace")
	}
}

func TestCollector_RecordOperation(t *testing.T) {
	c := NewCollector("test")

	c.RecordOperation("draw", 5*time.Millisecond, nil)
	c.RecordOperation("draw", 5*time.Millisecond, nil)
	c.RecordOperation("draw", 5*time.Millisecond, errors.New("oracle down"))
	c.RecordFailure("draw", "oracle")

	if got := testutil.ToFloat64(c.operationsTotal.WithLabelValues("draw", "success")); got != 2 {
		t.Errorf("success count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.operationsTotal.WithLabelValues("draw", "error")); got != 1 {
		t.Errorf("error count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.operationFailures.WithLabelValues("draw", "oracle")); got != 1 {
		t.Errorf("failure count = %v, want 1", got)
	}
}

func TestCollector_DomainMetrics(t *testing.T) {
	c := NewCollector("test")

	c.RecordEntry("native", 500)
	c.RecordEntry("token", 40)
	c.RecordPayout("", 57)
	c.RecordPayout("usdc", 38)
	c.RecordRoomTransition("ended")
	c.RecordCompensation(nil)
	c.RecordCompensation(errors.New("reverse failed"))
	c.RecordDraw(100)

	if got := testutil.ToFloat64(c.entriesTotal.WithLabelValues("native")); got != 1 {
		t.Errorf("native entries = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.payoutTotal.WithLabelValues("native")); got != 57 {
		t.Errorf("native payout = %v, want 57", got)
	}
	if got := testutil.ToFloat64(c.payoutTotal.WithLabelValues("usdc")); got != 38 {
		t.Errorf("usdc payout = %v, want 38", got)
	}
	if got := testutil.ToFloat64(c.compensations.WithLabelValues("error")); got != 1 {
		t.Errorf("failed compensations = %v, want 1", got)
	}
}

func TestCollector_HTTPMetrics(t *testing.T) {
	c := NewCollector("test")

	c.IncrementInFlight()
	if got := testutil.ToFloat64(c.httpInFlight); got != 1 {
		t.Errorf("in flight = %v, want 1", got)
	}
	c.DecrementInFlight()
	c.RecordHTTPRequest("GET", "/v1/rooms/{id}", "200", 3*time.Millisecond)

	if got := testutil.ToFloat64(c.httpRequests.WithLabelValues("GET", "/v1/rooms/{id}", "200")); got != 1 {
		t.Errorf("requests = %v, want 1", got)
	}
}

func TestNoOpCollector(t *testing.T) {
	c := NewNoOpCollector()

	// Should not panic
	c.RecordOperation("draw", time.Millisecond, nil)
	c.RecordFailure("draw", "oracle")
	c.RecordEntry("native", 1)
	c.RecordDraw(1)
	c.RecordPayout("", 1)
	c.RecordRoomTransition("ended")
	c.RecordCompensation(nil)
	c.RecordHTTPRequest("GET", "/", "200", time.Millisecond)
	c.IncrementInFlight()
	c.DecrementInFlight()
}
