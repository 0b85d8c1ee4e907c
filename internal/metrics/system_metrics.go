package metrics

import (
	"context"
	"runtime"
	"time"

	"github.com/Dhoini/billing-reconciliation/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SystemMetrics периодически снимает показатели рантайма
type SystemMetrics interface {
	Record()
	Run(ctx context.Context, interval time.Duration) error
}

type systemMetrics struct {
	log          *logger.Logger
	goroutines   prometheus.Gauge
	memoryAlloc  prometheus.Gauge
	memorySystem prometheus.Gauge
	gcCycles     prometheus.Gauge
}

// NewSystemMetrics создает новые системные метрики
func NewSystemMetrics(registry *prometheus.Registry, log *logger.Logger) SystemMetrics {
	factory := promauto.With(registry)
	return &systemMetrics{
		log: log,
		goroutines: factory.NewGauge(prometheus.GaugeOpts{
			Name: "billing_runtime_goroutines",
			Help: "Current number of goroutines",
		}),
		memoryAlloc: factory.NewGauge(prometheus.GaugeOpts{
			Name: "billing_runtime_memory_alloc_bytes",
			Help: "Currently allocated heap memory in bytes",
		}),
		memorySystem: factory.NewGauge(prometheus.GaugeOpts{
			Name: "billing_runtime_memory_system_bytes",
			Help: "Total memory obtained from system in bytes",
		}),
		gcCycles: factory.NewGauge(prometheus.GaugeOpts{
			Name: "billing_runtime_gc_cycles",
			Help: "Number of completed GC cycles",
		}),
	}
}

// Record снимает текущие значения
func (m *systemMetrics) Record() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.goroutines.Set(float64(runtime.NumGoroutine()))
	m.memoryAlloc.Set(float64(memStats.Alloc))
	m.memorySystem.Set(float64(memStats.Sys))
	m.gcCycles.Set(float64(memStats.NumGC))
}

// Run пишет метрики с заданным интервалом до отмены ctx
func (m *systemMetrics) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.log.Infow("System metrics recording started", "interval", interval)
	m.Record()
	for {
		select {
		case <-ticker.C:
			m.Record()
		case <-ctx.Done():
			m.log.Infow("System metrics recording stopped")
			return nil
		}
	}
}
