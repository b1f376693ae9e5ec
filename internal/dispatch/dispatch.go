// Package dispatch decides how to request a single agent run.
package dispatch

import (
	"context"
	"errors"

	"github.com/carlosprados/agentmgr/internal/command"
	"github.com/carlosprados/agentmgr/internal/metrics"
	"github.com/carlosprados/agentmgr/internal/runner"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnknownOption = errors.New("unknown option")
	ErrApplying      = errors.New("cannot run now, already applying")
	ErrDisabled      = errors.New("cannot run now, disabled")
	ErrCustomOptions = errors.New("cannot specify custom options while a daemon will be signalled instead of spawned")
	ErrDaemonPresent = errors.New("cannot run in background while the daemon is present")
)

// Strategy is how a run was requested.
type Strategy string

const (
	StrategyForeground Strategy = "foreground"
	StrategySignal     Strategy = "signal"
	StrategyBackground Strategy = "background"
)

// Probe is the state the decision depends on.
type Probe interface {
	Applying() bool
	Disabled() bool
	Idling() bool
	DaemonPresent() bool
	DaemonPID() (int, error)
}

// Runner launches agent processes.
type Runner interface {
	Foreground(ctx context.Context, argv []string) (runner.Result, error)
	Background(ctx context.Context, argv []string) (runner.Result, error)
}

// Signaller checks and wakes the daemon.
type Signaller interface {
	Alive(pid int) bool
	Wake(pid int) error
}

// Result reports what RunOnce did.
type Result struct {
	ID       uuid.UUID
	Strategy Strategy
	// PID is the signalled daemon or the spawned child.
	PID      int
	ExitCode int
	Output   []byte
	// Fallback is set when a stale daemon pid turned a signal into a spawn.
	Fallback bool
}

// Dispatcher implements the run-once decision procedure.
type Dispatcher struct {
	binary    string
	probe     Probe
	runner    Runner
	signaller Signaller
}

func New(binary string, probe Probe, r Runner, s Signaller) *Dispatcher {
	return &Dispatcher{binary: binary, probe: probe, runner: r, signaller: s}
}

// RunOnceMap parses loosely typed options and runs. Unknown keys fail
// before any state is read.
func (d *Dispatcher) RunOnceMap(ctx context.Context, m map[string]any) (Result, error) {
	opts, err := OptionsFromMap(m)
	if err != nil {
		metrics.ObserveDispatch("", err)
		return Result{}, err
	}
	return d.RunOnce(ctx, opts)
}

// RunOnce requests exactly one agent run: a foreground run, a wake-up
// signal to an idle daemon, or a detached background run.
func (d *Dispatcher) RunOnce(ctx context.Context, opts RunOptions) (res Result, err error) {
	res.ID = uuid.New()
	logger := log.With().Str("dispatch_id", res.ID.String()).Logger()
	defer func() {
		metrics.ObserveDispatch(string(res.Strategy), err)
		if err != nil {
			logger.Warn().Err(err).Str("strategy", string(res.Strategy)).Msg("run request failed")
		}
	}()

	if d.probe.Applying() {
		return res, ErrApplying
	}
	if d.probe.Disabled() {
		return res, ErrDisabled
	}

	opts.Tags = uniqueTags(opts.Tags)
	flags, err := command.Build(opts.Noop, opts.Tags, opts.Environment, opts.Server)
	if err != nil {
		return res, err
	}

	idling := d.probe.Idling()
	if idling && opts.SignalDaemon && opts.custom() {
		return res, ErrCustomOptions
	}

	switch {
	case opts.ForegroundRun:
		res.Strategy = StrategyForeground
		argv := command.Foreground(d.binary, flags)
		logger.Info().Strs("argv", argv).Msg("running agent in the foreground")
		r, err := d.runner.Foreground(ctx, argv)
		if err != nil {
			return res, err
		}
		res.PID, res.ExitCode, res.Output = r.PID, r.ExitCode, r.Output
		return res, nil

	case idling && opts.SignalDaemon:
		res.Strategy = StrategySignal
		return d.signalRunningDaemon(ctx, res, flags)
	}

	if d.probe.DaemonPresent() {
		return res, ErrDaemonPresent
	}
	res.Strategy = StrategyBackground
	return d.background(ctx, res, flags)
}

// signalRunningDaemon re-reads the daemon pid right before signalling. A
// daemon that died since the idling check is replaced by a background run.
func (d *Dispatcher) signalRunningDaemon(ctx context.Context, res Result, flags command.Flags) (Result, error) {
	pid, err := d.probe.DaemonPID()
	if err != nil || !d.signaller.Alive(pid) {
		log.Info().Str("dispatch_id", res.ID.String()).Int("pid", pid).AnErr("read_error", err).
			Msg("daemon pid is stale, spawning a background run instead")
		res.Strategy = StrategyBackground
		res.Fallback = true
		return d.background(ctx, res, flags)
	}
	if err := d.signaller.Wake(pid); err != nil {
		return res, err
	}
	log.Info().Str("dispatch_id", res.ID.String()).Int("pid", pid).Msg("woke idle daemon")
	res.PID = pid
	return res, nil
}

func (d *Dispatcher) background(ctx context.Context, res Result, flags command.Flags) (Result, error) {
	r, err := d.runner.Background(ctx, command.Background(d.binary, flags))
	if err != nil {
		return res, err
	}
	res.PID = r.PID
	return res, nil
}
