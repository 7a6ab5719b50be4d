// Package metrics handles Prometheus metrics initialization and system monitoring.
package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/sirupsen/logrus"
)

var log = logrus.New()

// SetLogger replaces the package-level logger.
func SetLogger(l *logrus.Logger) { log = l }

// Prometheus metrics - exported for use by other packages.
var (
	UploadDuration       prometheus.Histogram
	UploadsTotal         prometheus.Counter
	UploadErrorsTotal    prometheus.Counter
	DuplicatesTotal      prometheus.Counter
	UploadSizeBytes      prometheus.Histogram
	ThumbsReceivedTotal  prometheus.Counter
	ThumbErrorsTotal     prometheus.Counter
	CodesGeneratedTotal  prometheus.Counter
	TokensIssuedTotal    prometheus.Counter
	AuthFailuresTotal    prometheus.Counter
	BroadcastsTotal      prometheus.Counter
	BroadcastDropsTotal  prometheus.Counter
	ConnectedClients     prometheus.Gauge
	MemoryUsage          prometheus.Gauge
	CpuUsage             prometheus.Gauge
	Goroutines           prometheus.Gauge
)

// InitMetrics registers all Prometheus metrics.
func InitMetrics() {
	UploadDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "upload_duration_seconds",
		Help:    "Duration of file uploads in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	UploadsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "uploads_total",
		Help: "Total number of successful uploads.",
	})
	UploadErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "upload_errors_total",
		Help: "Total number of upload errors.",
	})
	DuplicatesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "uploads_duplicate_total",
		Help: "Total number of uploads short-circuited by deduplication.",
	})
	UploadSizeBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "upload_size_bytes",
		Help:    "Size of uploaded payloads in bytes.",
		Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
	})
	ThumbsReceivedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "thumbs_received_total",
		Help: "Total number of thumbnail items ingested.",
	})
	ThumbErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "thumb_errors_total",
		Help: "Total number of thumbnail items skipped due to errors.",
	})
	CodesGeneratedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_codes_generated_total",
		Help: "Total number of pairing codes generated.",
	})
	TokensIssuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_tokens_issued_total",
		Help: "Total number of session tokens issued.",
	})
	AuthFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_failures_total",
		Help: "Total number of failed code exchanges.",
	})
	BroadcastsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ws_broadcasts_total",
		Help: "Total number of events fanned out to connected clients.",
	})
	BroadcastDropsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ws_broadcast_drops_total",
		Help: "Total number of per-client sends dropped (slow or closed peer).",
	})
	ConnectedClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ws_connected_clients",
		Help: "Number of registered WebSocket clients.",
	})
	MemoryUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "memory_usage_bytes",
		Help: "Current memory usage in bytes.",
	})
	CpuUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cpu_usage_percent",
		Help: "Current CPU usage percentage.",
	})
	Goroutines = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "goroutines_count",
		Help: "Current number of goroutines.",
	})

	prometheus.MustRegister(
		UploadDuration, UploadsTotal, UploadErrorsTotal, DuplicatesTotal,
		UploadSizeBytes, ThumbsReceivedTotal, ThumbErrorsTotal,
		CodesGeneratedTotal, TokensIssuedTotal, AuthFailuresTotal,
		BroadcastsTotal, BroadcastDropsTotal, ConnectedClients,
		MemoryUsage, CpuUsage, Goroutines,
	)
}

// StartSystemMonitoring updates system gauges periodically until done closes.
func StartSystemMonitoring(done <-chan struct{}) {
	ticker := time.NewTicker(10 * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				var mem runtime.MemStats
				runtime.ReadMemStats(&mem)
				MemoryUsage.Set(float64(mem.Alloc))
				Goroutines.Set(float64(runtime.NumGoroutine()))

				percents, err := cpu.Percent(0, false)
				if err != nil {
					log.Debugf("CPU usage read failed: %v", err)
					continue
				}
				if len(percents) > 0 {
					CpuUsage.Set(percents[0])
				}
			case <-done:
				return
			}
		}
	}()
}
