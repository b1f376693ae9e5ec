package metrics

import (
	"github.com/carlosprados/agentmgr/internal/procprobe"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	procCPU = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "agentmgr", Subsystem: "daemon", Name: "cpu_percent", Help: "Agent daemon CPU percent"},
	)
	procRSS = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "agentmgr", Subsystem: "daemon", Name: "memory_rss_bytes", Help: "Agent daemon RSS bytes"},
	)
	procStart = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "agentmgr", Subsystem: "daemon", Name: "start_time_seconds", Help: "Agent daemon start time"},
	)
)

func init() {
	prometheus.MustRegister(procCPU, procRSS, procStart)
}

// ObserveDaemon records a sample of the daemon process.
func ObserveDaemon(info procprobe.Info) {
	procCPU.Set(info.CPUPercent)
	procRSS.Set(float64(info.RSSBytes))
	if !info.StartedAt.IsZero() {
		procStart.Set(float64(info.StartedAt.Unix()))
	}
}

// ClearDaemon zeroes the daemon gauges when no daemon is running.
func ClearDaemon() {
	procCPU.Set(0)
	procRSS.Set(0)
	procStart.Set(0)
}
