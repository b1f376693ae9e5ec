package metrics

import (
	"sync"

	"github.com/carlosprados/agentmgr/internal/status"
	"github.com/carlosprados/agentmgr/internal/summary"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	agentEnabled = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "agentmgr", Subsystem: "agent", Name: "enabled",
		Help: "Agent enabled (1) or disabled (0).",
	})
	agentApplying = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "agentmgr", Subsystem: "agent", Name: "applying",
		Help: "Agent applying a catalog (1) or not (0).",
	})
	agentDaemonPresent = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "agentmgr", Subsystem: "agent", Name: "daemon_present",
		Help: "Agent daemon process alive (1) or not (0).",
	})
	agentLastRun = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "agentmgr", Subsystem: "agent", Name: "last_run_timestamp_seconds",
		Help: "Epoch seconds of the last completed run.",
	})
	agentSinceLastRun = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "agentmgr", Subsystem: "agent", Name: "since_last_run_seconds",
		Help: "Seconds since the last completed run.",
	})
	agentStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "agentmgr", Subsystem: "agent", Name: "status",
			Help: "Agent status label (1 for the current one, 0 otherwise).",
		},
		[]string{"status"},
	)
	lastRunResources = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "agentmgr", Subsystem: "last_run", Name: "resources",
			Help: "Resource counters from the last run report.",
		},
		[]string{"counter"},
	)
	dispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentmgr", Subsystem: "dispatch", Name: "total",
			Help: "Run requests by strategy and result.",
		},
		[]string{"strategy", "result"},
	)
	publishErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentmgr", Subsystem: "publish", Name: "errors_total",
			Help: "Failed status publications by transport.",
		},
		[]string{"transport"},
	)
)

// Registered on the default registry served by promhttp.Handler.
func init() {
	once.Do(func() {
		prometheus.MustRegister(agentEnabled, agentApplying, agentDaemonPresent, agentLastRun,
			agentSinceLastRun, agentStatus, lastRunResources, dispatchTotal, publishErrors)
	})
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// ObserveStatus records a status snapshot. Every label is set so the
// previous one drops back to 0.
func ObserveStatus(st status.AgentStatus) {
	agentEnabled.Set(boolGauge(st.Enabled))
	agentApplying.Set(boolGauge(st.Applying))
	agentDaemonPresent.Set(boolGauge(st.DaemonPresent))
	agentLastRun.Set(float64(st.LastRun))
	agentSinceLastRun.Set(float64(st.SinceLastRun))
	for _, l := range status.Labels {
		agentStatus.WithLabelValues(string(l)).Set(boolGauge(l == st.Status))
	}
}

// ObserveResources exports the resources section of a last run report.
func ObserveResources(s summary.Summary) {
	for _, name := range summary.ResourceCounters() {
		lastRunResources.WithLabelValues(name).Set(float64(s.Resource(name)))
	}
}

// ObserveDispatch counts one run request. strategy is empty when the
// request was refused before a strategy was chosen.
func ObserveDispatch(strategy string, err error) {
	if strategy == "" {
		strategy = "none"
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	dispatchTotal.WithLabelValues(strategy, result).Inc()
}

func IncPublishErrors(transport string) { publishErrors.WithLabelValues(transport).Inc() }
