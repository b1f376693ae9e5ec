// Package watch polls the agent status on an interval.
package watch

import (
	"context"
	"sync"
	"time"

	"github.com/carlosprados/agentmgr/internal/metrics"
	"github.com/carlosprados/agentmgr/internal/procprobe"
	"github.com/carlosprados/agentmgr/internal/status"
	"github.com/carlosprados/agentmgr/internal/summary"
	"github.com/rs/zerolog/log"
)

// Source is the read side of the agent manager.
type Source interface {
	Status() (status.AgentStatus, error)
	DescribeDaemon(ctx context.Context) (procprobe.Info, error)
	Summary() (summary.Summary, error)
}

// Sink receives every successful snapshot.
type Sink interface {
	Publish(ctx context.Context, st status.AgentStatus) error
}

// Watcher computes snapshots on a single goroutine and keeps the latest
// one for readers such as the HTTP API.
type Watcher struct {
	src      Source
	sink     Sink
	interval time.Duration

	mu     sync.RWMutex
	latest status.AgentStatus
	at     time.Time
	ok     bool
}

func New(src Source, sink Sink, interval time.Duration) *Watcher {
	return &Watcher{src: src, sink: sink, interval: interval}
}

// Run polls at once and then on every tick until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	log.Info().Dur("interval", w.interval).Msg("watching agent status")
	w.Poll(ctx)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.Poll(ctx)
		}
	}
}

// Poll runs one cycle: snapshot, metrics, report counters, daemon sample
// and publish. A failed snapshot keeps the previous one.
func (w *Watcher) Poll(ctx context.Context) {
	st, err := w.src.Status()
	if err != nil {
		log.Warn().Err(err).Msg("status snapshot failed")
		return
	}
	metrics.ObserveStatus(st)
	if sum, err := w.src.Summary(); err == nil {
		metrics.ObserveResources(sum)
	}
	w.sampleDaemon(ctx, st.DaemonPresent)

	w.mu.Lock()
	changed := !w.ok || w.latest.Status != st.Status
	w.latest, w.at, w.ok = st, time.Now(), true
	w.mu.Unlock()
	if changed {
		log.Info().Str("status", string(st.Status)).Bool("enabled", st.Enabled).Msg(st.Message)
	}

	if w.sink != nil {
		if err := w.sink.Publish(ctx, st); err != nil {
			log.Debug().Err(err).Msg("snapshot not delivered everywhere")
		}
	}
}

func (w *Watcher) sampleDaemon(ctx context.Context, present bool) {
	if !present {
		metrics.ClearDaemon()
		return
	}
	info, err := w.src.DescribeDaemon(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("daemon sample failed")
		metrics.ClearDaemon()
		return
	}
	metrics.ObserveDaemon(info)
}

// Latest returns the last good snapshot and when it was taken. ok is false
// until the first successful poll.
func (w *Watcher) Latest() (st status.AgentStatus, at time.Time, ok bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.latest, w.at, w.ok
}
