// Package manager is the entry point for inspecting and driving the agent.
package manager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/carlosprados/agentmgr/internal/config"
	"github.com/carlosprados/agentmgr/internal/dispatch"
	"github.com/carlosprados/agentmgr/internal/procprobe"
	"github.com/carlosprados/agentmgr/internal/runner"
	"github.com/carlosprados/agentmgr/internal/state"
	"github.com/carlosprados/agentmgr/internal/status"
	"github.com/carlosprados/agentmgr/internal/summary"
	"github.com/gofrs/flock"
	"github.com/rs/zerolog/log"
)

var (
	ErrAlreadyEnabled  = errors.New("already enabled")
	ErrAlreadyDisabled = errors.New("already disabled")
)

// Procs checks, wakes and describes agent processes.
type Procs interface {
	Alive(pid int) bool
	Wake(pid int) error
	Describe(ctx context.Context, pid int) (procprobe.Info, error)
}

// Options replaces the collaborators New would otherwise build.
type Options struct {
	DetectVersion VersionDetector
	Runner        dispatch.Runner
	Procs         Procs
}

type Manager struct {
	cfg        config.Config
	paths      config.Paths
	probe      *state.Probe
	procs      Procs
	dispatcher *dispatch.Dispatcher
	reporter   *status.Reporter
	now        func() time.Time
}

// New resolves the layout (probing the agent binary when the config says
// auto) and wires the probe, dispatcher and reporter. The layout is fixed
// for the life of the Manager.
func New(ctx context.Context, cfg config.Config, opts Options) (*Manager, error) {
	if opts.DetectVersion == nil {
		opts.DetectVersion = DetectVersion
	}
	if opts.Runner == nil {
		opts.Runner = runner.New(cfg.OpenFiles)
	}
	if opts.Procs == nil {
		opts.Procs = procprobe.New()
	}

	name, err := resolveLayout(ctx, cfg, opts.DetectVersion)
	if err != nil {
		return nil, err
	}
	paths := cfg.ResolvePaths(name)
	layout, err := state.NewLayout(name, paths.StatePaths())
	if err != nil {
		return nil, err
	}
	probe := state.New(layout, paths.StatePaths(), opts.Procs)
	log.Debug().Str("layout", string(name)).Str("disable_lock", paths.DisableLock).
		Str("run_lock", paths.RunLock).Str("pid_file", paths.PIDFile).Msg("agent manager ready")

	return &Manager{
		cfg:        cfg,
		paths:      paths,
		probe:      probe,
		procs:      opts.Procs,
		dispatcher: dispatch.New(cfg.AgentBinary, probe, opts.Runner, opts.Procs),
		reporter:   status.NewReporter(probe),
		now:        time.Now,
	}, nil
}

func (m *Manager) Layout() state.Name  { return m.probe.Layout().Name() }
func (m *Manager) Paths() config.Paths { return m.paths }

func (m *Manager) Enabled() bool       { return m.probe.Enabled() }
func (m *Manager) Disabled() bool      { return m.probe.Disabled() }
func (m *Manager) Applying() bool      { return m.probe.Applying() }
func (m *Manager) Idling() bool        { return m.probe.Idling() }
func (m *Manager) Stopped() bool       { return m.probe.Stopped() }
func (m *Manager) DaemonPresent() bool { return m.probe.DaemonPresent() }
func (m *Manager) LockMessage() string { return m.probe.LockMessage() }

func (m *Manager) LastRun() (int64, error) { return m.probe.LastRun() }

func (m *Manager) SinceLastRun() (time.Duration, error) { return m.probe.SinceLastRun(m.now()) }

func (m *Manager) Summary() (summary.Summary, error) { return m.probe.Summary() }

// Status returns a fresh snapshot.
func (m *Manager) Status() (status.AgentStatus, error) { return m.reporter.Snapshot() }

// Enable removes the disable lock.
func (m *Manager) Enable() error {
	return m.locked(func() error {
		if m.probe.Enabled() {
			return ErrAlreadyEnabled
		}
		if err := m.probe.Layout().RemoveDisableLock(); err != nil {
			return err
		}
		log.Info().Str("layout", string(m.Layout())).Msg("agent enabled")
		return nil
	})
}

// Disable writes the disable lock and returns the stored message, which is
// always empty for the v2 layout.
func (m *Manager) Disable(msg string) (string, error) {
	var stored string
	err := m.locked(func() error {
		if m.probe.Disabled() {
			return ErrAlreadyDisabled
		}
		var err error
		if stored, err = m.probe.Layout().WriteDisableLock(msg, m.now()); err != nil {
			return err
		}
		log.Info().Str("layout", string(m.Layout())).Str("message", stored).Msg("agent disabled")
		return nil
	})
	return stored, err
}

// locked holds the cross-process mutex for the duration of fn.
func (m *Manager) locked(fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(m.paths.MutexLock), 0o755); err != nil {
		return fmt.Errorf("create mutex dir: %w", err)
	}
	lock := flock.New(m.paths.MutexLock)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	defer func() { _ = lock.Unlock() }()
	return fn()
}

func (m *Manager) RunOnce(ctx context.Context, opts dispatch.RunOptions) (dispatch.Result, error) {
	return m.dispatcher.RunOnce(ctx, opts)
}

func (m *Manager) RunOnceMap(ctx context.Context, opts map[string]any) (dispatch.Result, error) {
	return m.dispatcher.RunOnceMap(ctx, opts)
}

// ManagedResources lists the resources the agent manages, as recorded by
// its last catalog run.
func (m *Manager) ManagedResources() ([]string, error) {
	return summary.LoadResources(m.paths.ResourceFile)
}

func (m *Manager) ManagedResourcesCount() (int, error) {
	res, err := m.ManagedResources()
	return len(res), err
}

// ManagingResource reports whether name (e.g. "File[/etc/motd]") is
// managed. The comparison ignores case.
func (m *Manager) ManagingResource(name string) (bool, error) {
	res, err := m.ManagedResources()
	if err != nil {
		return false, err
	}
	for _, r := range res {
		if strings.EqualFold(r, name) {
			return true, nil
		}
	}
	return false, nil
}

// DescribeDaemon samples the running daemon process.
func (m *Manager) DescribeDaemon(ctx context.Context) (procprobe.Info, error) {
	pid, err := m.probe.DaemonPID()
	if err != nil {
		return procprobe.Info{}, err
	}
	if !m.procs.Alive(pid) {
		return procprobe.Info{}, fmt.Errorf("daemon pid %d is not running", pid)
	}
	return m.procs.Describe(ctx, pid)
}
