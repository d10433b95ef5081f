package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestIncRejectionIncrementsCounter(t *testing.T) {
	before := testutil.ToFloat64(rejections.WithLabelValues("BSC", "bytecode"))
	IncRejection("BSC", "bytecode")
	after := testutil.ToFloat64(rejections.WithLabelValues("BSC", "bytecode"))
	assert.Equal(t, before+1, after)
}

func TestIncAlertIncrementsCounter(t *testing.T) {
	before := testutil.ToFloat64(alerts.WithLabelValues("ETH", "strong"))
	IncAlert("ETH", "strong")
	after := testutil.ToFloat64(alerts.WithLabelValues("ETH", "strong"))
	assert.Equal(t, before+1, after)
}

func TestSetSlotsUsedSetsGauge(t *testing.T) {
	SetSlotsUsed(7)
	assert.Equal(t, 7.0, testutil.ToFloat64(slotsUsed))
}

func TestSetActiveMarketsSetsLabeledGauge(t *testing.T) {
	SetActiveMarkets("BSC", "v2", 3)
	assert.Equal(t, 3.0, testutil.ToFloat64(activeMarkets.WithLabelValues("BSC", "v2")))
}
