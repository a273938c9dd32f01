package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestIncSend(t *testing.T) {
	before := testutil.ToFloat64(sendsTotal.WithLabelValues("smtp", "delivered"))
	IncSend("smtp", "delivered")
	assert.Equal(t, before+1, testutil.ToFloat64(sendsTotal.WithLabelValues("smtp", "delivered")))

	beforeUnknown := testutil.ToFloat64(sendsTotal.WithLabelValues("unknown", "failed"))
	IncSend("", "failed")
	assert.Equal(t, beforeUnknown+1, testutil.ToFloat64(sendsTotal.WithLabelValues("unknown", "failed")))
}

func TestObserveRun(t *testing.T) {
	completed := testutil.ToFloat64(runsTotal.WithLabelValues("completed"))
	failed := testutil.ToFloat64(runsTotal.WithLabelValues("failed"))

	ObserveRun(3, nil)
	ObserveRun(1, errors.New("store down"))

	assert.Equal(t, completed+1, testutil.ToFloat64(runsTotal.WithLabelValues("completed")))
	assert.Equal(t, failed+1, testutil.ToFloat64(runsTotal.WithLabelValues("failed")))
}

func TestSetBulkAvailable(t *testing.T) {
	SetBulkAvailable("mailgun", true)
	assert.Equal(t, 1.0, testutil.ToFloat64(bulkAvailable.WithLabelValues("mailgun")))
	SetBulkAvailable("mailgun", false)
	assert.Equal(t, 0.0, testutil.ToFloat64(bulkAvailable.WithLabelValues("mailgun")))
}
