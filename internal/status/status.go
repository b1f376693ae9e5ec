// Package status assembles the agent status snapshot.
package status

import (
	"fmt"
	"time"
)

// Label is the one-word classification of the agent.
type Label string

const (
	LabelDisabled Label = "disabled"
	LabelApplying Label = "applying a catalog"
	LabelIdling   Label = "idling"
	LabelStopped  Label = "stopped"
)

// Labels lists every label, in decision table order.
var Labels = []Label{LabelDisabled, LabelApplying, LabelIdling, LabelStopped}

// Classify maps the three probe facts to a label. Rows are evaluated in
// order and the first match wins.
//
// The idling row can never match because applying is tested before it, so
// a live idle daemon is reported as stopped. Callers depend on this order.
func Classify(enabled, applying, daemonPresent bool) Label {
	switch {
	case !enabled:
		return LabelDisabled
	case applying:
		return LabelApplying
	case daemonPresent && applying:
		return LabelIdling
	case !applying:
		return LabelStopped
	}
	return LabelStopped
}

// AgentStatus is a point-in-time view of the agent. It is never persisted.
type AgentStatus struct {
	Applying       bool   `json:"applying"`
	Enabled        bool   `json:"enabled"`
	DaemonPresent  bool   `json:"daemon_present"`
	LastRun        int64  `json:"lastrun"`
	DisableMessage string `json:"disable_message"`
	SinceLastRun   int64  `json:"since_lastrun"` // seconds
	Status         Label  `json:"status"`
	Message        string `json:"message"`
}

// Source is what the reporter needs from a state probe.
type Source interface {
	Applying() bool
	Enabled() bool
	DaemonPresent() bool
	LastRun() (int64, error)
	LockMessage() string
}

// Reporter builds snapshots from a Source.
type Reporter struct {
	src Source
	now func() time.Time
}

func NewReporter(src Source) *Reporter {
	return &Reporter{src: src, now: time.Now}
}

// Snapshot queries every probe once. The only error is an unreadable
// last-run report.
func (r *Reporter) Snapshot() (AgentStatus, error) {
	lastRun, err := r.src.LastRun()
	if err != nil {
		return AgentStatus{}, err
	}
	st := AgentStatus{
		Applying:       r.src.Applying(),
		Enabled:        r.src.Enabled(),
		DaemonPresent:  r.src.DaemonPresent(),
		LastRun:        lastRun,
		DisableMessage: r.src.LockMessage(),
		SinceLastRun:   r.now().Unix() - lastRun,
	}
	st.Status = Classify(st.Enabled, st.Applying, st.DaemonPresent)
	st.Message = fmt.Sprintf("Currently %s; last completed run %s ago", st.Status, Humanize(st.SinceLastRun))
	return st, nil
}

// Humanize renders seconds as e.g. "1 hours 2 minutes 01 seconds".
// Negative input is treated as 0.
func Humanize(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	days := seconds / 86400
	seconds -= days * 86400
	hours := seconds / 3600
	seconds -= hours * 3600
	minutes := seconds / 60
	seconds -= minutes * 60

	switch {
	case days > 1:
		return fmt.Sprintf("%d days %d hours %d minutes %02d seconds", days, hours, minutes, seconds)
	case days == 1:
		return fmt.Sprintf("%d day %d hours %d minutes %02d seconds", days, hours, minutes, seconds)
	case hours > 0:
		return fmt.Sprintf("%d hours %d minutes %02d seconds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%d minutes %02d seconds", minutes, seconds)
	}
	return fmt.Sprintf("%02d seconds", seconds)
}
