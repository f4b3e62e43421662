package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// registerProcessGauges adds the uptime and memory series every exposition
// must carry. They are GaugeFuncs so values are read at scrape time.
func (r *Registry) registerProcessGauges() {
	r.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: r.cfg.Namespace,
		Subsystem: r.cfg.Subsystem,
		Name:      "uptime_seconds",
		Help:      helpFor("uptime_seconds"),
	}, func() float64 {
		return time.Since(r.start).Seconds()
	}))

	r.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: r.cfg.Namespace,
		Subsystem: r.cfg.Subsystem,
		Name:      "memory_alloc_bytes",
		Help:      helpFor("memory_alloc_bytes"),
	}, func() float64 {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		return float64(ms.HeapAlloc)
	}))

	r.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: r.cfg.Namespace,
		Subsystem: r.cfg.Subsystem,
		Name:      "memory_sys_bytes",
		Help:      helpFor("memory_sys_bytes"),
	}, func() float64 {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		return float64(ms.Sys)
	}))

	r.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: r.cfg.Namespace,
		Subsystem: r.cfg.Subsystem,
		Name:      "goroutines",
		Help:      helpFor("goroutines"),
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	}))
}
