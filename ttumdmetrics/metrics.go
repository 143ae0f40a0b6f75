// Package ttumdmetrics registers the driver's Prometheus instrumentation:
// counters/histograms for the things noteworthy enough to retry or warn
// about (TLB/DMA descending-size retries, ARC message timeouts,
// hardware-hang detections, remote flush latency). Registration follows
// client_golang's own promauto idiom.
package ttumdmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TLBAllocRetries counts descending-size retries in the TLB manager's
	// largest-to-smallest allocation loop
	TLBAllocRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tt_umd",
		Subsystem: "tlb",
		Name:      "alloc_retries_total",
		Help:      "Number of times TLB allocation fell back to a smaller legal size.",
	})

	// DMABufAllocRetries counts descending-size retries when reserving
	// the per-device DMA staging buffer at chip open
	DMABufAllocRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tt_umd",
		Subsystem: "pci",
		Name:      "dma_buf_alloc_retries_total",
		Help:      "Number of times DMA buffer allocation fell back to a smaller size.",
	})

	// ArcMsgTimeouts counts ARC firmware messages that did not complete
	// within their deadline
	ArcMsgTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tt_umd",
		Subsystem: "arc",
		Name:      "msg_timeouts_total",
		Help:      "Number of ARC messages that timed out waiting for a response.",
	})

	// HardwareHangsDetected counts the 0xFFFFFFFF-canary-plus-confirmatory-peek
	// hang detections
	HardwareHangsDetected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tt_umd",
		Subsystem: "protocol",
		Name:      "hardware_hangs_detected_total",
		Help:      "Number of confirmed hardware hang detections.",
	})

	// RemoteFlushLatency observes the spin-wait duration of
	// WaitForNonMMIOFlush
	RemoteFlushLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tt_umd",
		Subsystem: "remote",
		Name:      "flush_latency_seconds",
		Help:      "Latency of waiting for outstanding ethernet command-queue entries to be acknowledged.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
	})

	// RobustMutexWaits counts robust-mutex acquisitions that missed the
	// one-second fast path and had to log a warning and block (spec
	// section 4.B).
	RobustMutexWaits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tt_umd",
		Subsystem: "rmutex",
		Name:      "slow_acquire_total",
		Help:      "Number of robust mutex acquisitions that exceeded the one-second fast-path deadline.",
	})

	// HugepageChannelFailures counts sysmem channel allocations that
	// failed and were skipped, reducing the usable channel count below
	// what was requested
	HugepageChannelFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tt_umd",
		Subsystem: "sysmem",
		Name:      "channel_alloc_failures_total",
		Help:      "Number of sysmem host-memory channel allocations that failed and were skipped.",
	})
)
