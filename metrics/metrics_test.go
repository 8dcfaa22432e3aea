package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.MarkScan(OutcomeOK)
	m.MarkScan(OutcomeBusy)
	m.MarkExecuted()
	m.MarkSkipped("not_approved")
	m.MarkSkipped("not_approved")
	m.MarkRelay("invalid_signature")

	mm := m.(*metrics)
	assert.Equal(t, 1.0, testutil.ToFloat64(mm.scans.WithLabelValues(OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(mm.executed))
	assert.Equal(t, 2.0, testutil.ToFloat64(mm.skipped.WithLabelValues("not_approved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(mm.relays.WithLabelValues("invalid_signature")))
}

func TestDoubleRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	assert.Error(t, err)
}
