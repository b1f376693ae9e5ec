// Package state classifies the agent from its lock, pid and report files.
//
// Two on-disk layouts exist. Both are served by the same Probe; the layout
// is chosen once when the Probe is built.
package state

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/carlosprados/agentmgr/internal/procprobe"
	"github.com/carlosprados/agentmgr/internal/summary"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoRunLock    = errors.New("run lock does not exist")
	ErrRunLockEmpty = errors.New("run lock is empty")
)

// Name identifies an on-disk layout generation.
type Name string

const (
	// V2 uses one lock file: zero bytes means disabled, a pid means applying.
	V2 Name = "v2"
	// V3 has a JSON disable lock, a catalog run lock and a daemon pid file.
	V3 Name = "v3"
)

// Paths are the resolved absolute locations of the agent's state files.
type Paths struct {
	DisableLock   string
	RunLock       string
	PIDFile       string
	LastRunReport string
}

// Layout holds the generation specific rules.
type Layout interface {
	Name() Name
	// Disabled reports whether the disable lock marks the agent disabled.
	Disabled() bool
	// RunLockPath is the file holding the pid of an in-progress catalog run.
	RunLockPath() string
	// LockMessage is the stored disable reason, "" when there is none.
	LockMessage() string
	RemoveDisableLock() error
	// WriteDisableLock creates the disable lock and returns the stored message.
	WriteDisableLock(msg string, now time.Time) (string, error)
}

// NewLayout returns the layout implementation for name.
func NewLayout(name Name, paths Paths) (Layout, error) {
	switch name {
	case V2:
		return &layoutV2{paths: paths}, nil
	case V3:
		return &layoutV3{paths: paths}, nil
	}
	return nil, fmt.Errorf("unknown state layout %q", name)
}

// Liveness reports whether a pid names a live process.
type Liveness interface {
	Alive(pid int) bool
}

// Probe answers status questions. None of the boolean queries fail: read
// errors resolve to the safe default.
type Probe struct {
	layout Layout
	paths  Paths
	procs  Liveness
}

func New(layout Layout, paths Paths, procs Liveness) *Probe {
	return &Probe{layout: layout, paths: paths, procs: procs}
}

func (p *Probe) Layout() Layout { return p.layout }

func (p *Probe) Disabled() bool { return p.layout.Disabled() }

func (p *Probe) Enabled() bool { return !p.Disabled() }

// DaemonPID reads the daemon pid file.
func (p *Probe) DaemonPID() (int, error) {
	return procprobe.ReadPID(p.paths.PIDFile)
}

// DaemonPresent reports whether the pid file names a live process.
func (p *Probe) DaemonPresent() bool {
	pid, err := p.DaemonPID()
	if err != nil {
		return false
	}
	return p.procs.Alive(pid)
}

// Applying reports whether a catalog run is in progress.
func (p *Probe) Applying() bool {
	if p.Disabled() {
		return false
	}
	pid, err := p.runLockPID()
	if err != nil {
		log.Debug().Err(err).Str("path", p.layout.RunLockPath()).Msg("run lock unreadable, not applying")
		return false
	}
	return p.procs.Alive(pid)
}

// runLockPID reads the pid from the run lock. Each failure mode is a
// distinct error: ErrNoRunLock, ErrRunLockEmpty, procprobe.ErrMalformedPID
// or the wrapped fs error.
func (p *Probe) runLockPID() (int, error) {
	path := p.layout.RunLockPath()
	st, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("%w: %s", ErrNoRunLock, path)
		}
		return 0, fmt.Errorf("stat run lock: %w", err)
	}
	if st.Size() == 0 {
		return 0, fmt.Errorf("%w: %s", ErrRunLockEmpty, path)
	}
	return procprobe.ReadPID(path)
}

// Idling is a live daemon that is not applying a catalog.
func (p *Probe) Idling() bool {
	return p.DaemonPresent() && !p.Applying()
}

func (p *Probe) Stopped() bool { return !p.Applying() }

// Summary loads the last-run report fresh from disk.
func (p *Probe) Summary() (summary.Summary, error) {
	return summary.Load(p.paths.LastRunReport)
}

// LastRun is the epoch second of the last completed run, 0 if unknown.
func (p *Probe) LastRun() (int64, error) {
	s, err := p.Summary()
	if err != nil {
		return 0, err
	}
	return s.LastRun(), nil
}

// SinceLastRun is the time elapsed since LastRun.
func (p *Probe) SinceLastRun(now time.Time) (time.Duration, error) {
	last, err := p.LastRun()
	if err != nil {
		return 0, err
	}
	return now.Sub(time.Unix(last, 0)), nil
}

func (p *Probe) LockMessage() string { return p.layout.LockMessage() }
