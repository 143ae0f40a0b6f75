package ttumdmetrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersIncrementAndReportThroughTheRegistry(t *testing.T) {
	TLBAllocRetries.Add(0) // force registration before the snapshot below
	before := testutil.ToFloat64(TLBAllocRetries)
	TLBAllocRetries.Inc()
	if got := testutil.ToFloat64(TLBAllocRetries); got != before+1 {
		t.Fatalf("got %v, want %v", got, before+1)
	}
}

func TestRemoteFlushLatencyObservesWithoutError(t *testing.T) {
	RemoteFlushLatency.Observe(0.002)
	if n := testutil.CollectAndCount(RemoteFlushLatency); n != 1 {
		t.Fatalf("got %d collected metrics, want 1", n)
	}
}
