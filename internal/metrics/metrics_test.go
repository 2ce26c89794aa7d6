package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNew_ReturnsSingleton(t *testing.T) {
	a := New()
	b := New()
	assert.Same(t, a, b)
}

func TestMetrics_Record(t *testing.T) {
	m := New()

	before := testutil.ToFloat64(m.Decisions.WithLabelValues("approved"))
	m.RecordDecision("approved")
	assert.Equal(t, before+1, testutil.ToFloat64(m.Decisions.WithLabelValues("approved")))

	before = testutil.ToFloat64(m.ProposalsSubmitted.WithLabelValues("outreach", "low"))
	m.RecordSubmitted("outreach", "low")
	assert.Equal(t, before+1, testutil.ToFloat64(m.ProposalsSubmitted.WithLabelValues("outreach", "low")))

	before = testutil.ToFloat64(m.SweepExpired)
	m.RecordSweep(3, 10*time.Millisecond)
	assert.Equal(t, before+3, testutil.ToFloat64(m.SweepExpired))

	before = testutil.ToFloat64(m.Conflicts.WithLabelValues("review"))
	m.RecordConflict("review")
	assert.Equal(t, before+1, testutil.ToFloat64(m.Conflicts.WithLabelValues("review")))
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordSubmitted("outreach", "low")
		m.RecordDecision("approved")
		m.RecordConflict("review")
		m.RecordPromotion()
		m.RecordPromotionFailure()
		m.RecordSweep(1, time.Second)
		m.RecordReviewLatency(time.Second)
	})
}
