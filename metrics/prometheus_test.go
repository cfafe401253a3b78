package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPrometheusMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewPrometheusMetrics(registry)

	m.RecordFloorStatus("5890", "fetch", "success")
	m.RecordFloorStatus("5890", "fetch", "success")
	m.RecordDynamicFetchFailure("5890", FetchFailureTimeout)
	m.RecordFloorsConversionError("5890")
	m.RecordInvalidAccountFloorsConfig("5890")
	m.RecordRejectedBidsForBidder("appnexus")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.floorStatus.WithLabelValues("5890", "fetch", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.dynamicFetchFailures.WithLabelValues("5890", FetchFailureTimeout)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.conversionErrors.WithLabelValues("5890")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.invalidFloorsConfig.WithLabelValues("5890")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.rejectedBids.WithLabelValues("appnexus")))
}
