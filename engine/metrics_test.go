package engine

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.routed("continue_research", 4)
	m.routed("continue_research", 5)
	m.generated(nil)
	m.generated(errors.New("boom"))
	m.evaluated(true)
	m.interrupted("raised")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.routeDecisions.WithLabelValues("continue_research")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.generations.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.generations.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.evaluations.WithLabelValues("passed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.interrupts.WithLabelValues("raised")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.workflowStep))
}

func TestMetrics_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)
	require.Panics(t, func() { NewMetrics(reg) })
}
