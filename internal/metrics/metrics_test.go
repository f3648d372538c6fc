package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerExposesFundCollectors(t *testing.T) {
	m := New()
	m.Sweeps.WithLabelValues(SweepOK).Inc()
	m.Settlements.WithLabelValues("completed", "vote").Add(2)
	m.PendingWithdrawals.Set(3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `fundbot_reconcile_sweeps_total{result="ok"} 1`))
	assert.True(t, strings.Contains(body, `fundbot_settlements_total{status="completed",trigger="vote"} 2`))
	assert.True(t, strings.Contains(body, "fundbot_pending_withdrawals 3"))
}

func TestInstancesDoNotShareState(t *testing.T) {
	a, b := New(), New()
	a.Votes.WithLabelValues("approve").Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.Votes.WithLabelValues("approve")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Votes.WithLabelValues("approve")))
}
