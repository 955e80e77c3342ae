package livre

import (
	"sync/atomic"
	"time"

	"github.com/JamesLinus/livre/render"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordDecode is called after each block decode.
	// duration is the worker time taken, err is nil if successful.
	RecordDecode(duration time.Duration, err error)

	// RecordUpload is called after each texture upload.
	RecordUpload(duration time.Duration, err error)

	// RecordFrame is called after each frame of the render loop.
	RecordFrame(stats render.FrameStats, duration time.Duration)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordDecode(time.Duration, error)            {}
func (NoopMetricsCollector) RecordUpload(time.Duration, error)            {}
func (NoopMetricsCollector) RecordFrame(render.FrameStats, time.Duration) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	DecodeCount      atomic.Int64
	DecodeErrors     atomic.Int64
	DecodeTotalNanos atomic.Int64
	UploadCount      atomic.Int64
	UploadErrors     atomic.Int64
	UploadTotalNanos atomic.Int64
	FrameCount       atomic.Int64
	FrameSkips       atomic.Int64
	FrameTotalNanos  atomic.Int64
}

// RecordDecode implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDecode(duration time.Duration, err error) {
	b.DecodeCount.Add(1)
	b.DecodeTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.DecodeErrors.Add(1)
	}
}

// RecordUpload implements MetricsCollector.
func (b *BasicMetricsCollector) RecordUpload(duration time.Duration, err error) {
	b.UploadCount.Add(1)
	b.UploadTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.UploadErrors.Add(1)
	}
}

// RecordFrame implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFrame(stats render.FrameStats, duration time.Duration) {
	b.FrameCount.Add(1)
	b.FrameSkips.Add(int64(stats.Skipped))
	b.FrameTotalNanos.Add(duration.Nanoseconds())
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		DecodeCount:    b.DecodeCount.Load(),
		DecodeErrors:   b.DecodeErrors.Load(),
		DecodeAvgNanos: avgNanos(b.DecodeTotalNanos.Load(), b.DecodeCount.Load()),
		UploadCount:    b.UploadCount.Load(),
		UploadErrors:   b.UploadErrors.Load(),
		UploadAvgNanos: avgNanos(b.UploadTotalNanos.Load(), b.UploadCount.Load()),
		FrameCount:     b.FrameCount.Load(),
		FrameSkips:     b.FrameSkips.Load(),
		FrameAvgNanos:  avgNanos(b.FrameTotalNanos.Load(), b.FrameCount.Load()),
	}
}

func avgNanos(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	DecodeCount    int64
	DecodeErrors   int64
	DecodeAvgNanos int64
	UploadCount    int64
	UploadErrors   int64
	UploadAvgNanos int64
	FrameCount     int64
	FrameSkips     int64
	FrameAvgNanos  int64
}
