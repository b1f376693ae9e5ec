package runner

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"time"

	sysrt "github.com/carlosprados/agentmgr/internal/runtime"
	"github.com/rs/zerolog/log"
)

// Result describes a launched agent process.
type Result struct {
	PID       int
	ExitCode  int
	Output    []byte
	StartedAt time.Time
	Duration  time.Duration
}

// ProcessRunner launches agent runs from an argv. No shell is involved.
type ProcessRunner struct {
	NoFile uint64 // RLIMIT_NOFILE applied before spawning, 0 keeps the current one
}

func New(noFile uint64) *ProcessRunner { return &ProcessRunner{NoFile: noFile} }

// Foreground runs argv to completion. Stdout is captured and returned,
// stderr is streamed to the log. A non-zero exit is reported through
// Result.ExitCode, not as an error; errors mean the process could not run.
func (r *ProcessRunner) Foreground(ctx context.Context, argv []string) (Result, error) {
	if len(argv) == 0 {
		return Result{}, fmt.Errorf("empty command")
	}
	if err := sysrt.ApplyRlimits(r.NoFile); err != nil {
		return Result{}, err
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{}, err
	}
	started := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{}, err
	}
	log.Info().Int("pid", cmd.Process.Pid).Strs("argv", argv).Msg("foreground run started")

	// stderr must be drained before Wait closes the pipe
	streamLogs(argv[0], "stderr", stderr)
	err = cmd.Wait()

	res := Result{PID: cmd.Process.Pid, Output: stdout.Bytes(), StartedAt: started, Duration: time.Since(started)}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		res.ExitCode = exitErr.ExitCode()
		err = nil
	}
	if err != nil {
		return res, err
	}
	log.Info().Int("pid", res.PID).Int("exit_code", res.ExitCode).Dur("duration", res.Duration).Msg("foreground run finished")
	return res, nil
}

// Background starts argv detached in its own session and returns at once.
// The child is not bound to ctx; it must outlive the caller.
func (r *ProcessRunner) Background(_ context.Context, argv []string) (Result, error) {
	if len(argv) == 0 {
		return Result{}, fmt.Errorf("empty command")
	}
	if err := sysrt.ApplyRlimits(r.NoFile); err != nil {
		return Result{}, err
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.SysProcAttr = detachedAttr()
	started := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{}, err
	}
	pid := cmd.Process.Pid
	// reap the launcher while this process lives
	go func() { _ = cmd.Wait() }()
	log.Info().Int("pid", pid).Strs("argv", argv).Msg("background run spawned")
	return Result{PID: pid, StartedAt: started}, nil
}

// maxLogLine bounds a single logged line. Anything after an overlong line
// is discarded so the child never blocks on a full pipe.
const maxLogLine = 1 << 20

func streamLogs(name, stream string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLogLine)
	for scanner.Scan() {
		log.Info().Str("component", name).Str("stream", stream).Msg(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		log.Warn().Err(err).Str("component", name).Str("stream", stream).Msg("log stream truncated")
	}
	_, _ = io.Copy(io.Discard, r)
}
