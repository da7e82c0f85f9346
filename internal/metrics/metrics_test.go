package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	Register()
	Register()

	before := testutil.ToFloat64(webhooks.WithLabelValues("replay"))
	IncWebhook("replay")
	IncWebhook("replay")
	assert.Equal(t, before+2, testutil.ToFloat64(webhooks.WithLabelValues("replay")))

	before = testutil.ToFloat64(slotConflicts.WithLabelValues("confirm"))
	IncSlotConflict("confirm")
	assert.Equal(t, before+1, testutil.ToFloat64(slotConflicts.WithLabelValues("confirm")))

	before = testutil.ToFloat64(lifecycleEvents.WithLabelValues("payment.finished"))
	IncLifecycleEvent("payment.finished")
	assert.Equal(t, before+1, testutil.ToFloat64(lifecycleEvents.WithLabelValues("payment.finished")))

	ObserveGateway("mock", "ok", 20*time.Millisecond)
	assert.Equal(t, 1, testutil.CollectAndCount(gatewayDuration))
}
