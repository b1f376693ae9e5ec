package manager

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/carlosprados/agentmgr/internal/config"
	"github.com/carlosprados/agentmgr/internal/state"
)

var (
	ErrUnsupportedVersion = errors.New("cannot manage agent version")
	ErrUnknownVersion     = errors.New("cannot determine the agent major version")
)

// VersionDetector returns the raw version output of the agent binary.
type VersionDetector func(ctx context.Context, binary string) (string, error)

// DetectVersion runs `<binary> --version`.
func DetectVersion(ctx context.Context, binary string) (string, error) {
	out, err := exec.CommandContext(ctx, binary, "--version").Output()
	if err != nil {
		return "", fmt.Errorf("%s --version: %w", binary, err)
	}
	return string(out), nil
}

// LayoutForVersion maps agent version output to a state layout: 2.x uses
// v2, 3 and later use v3. Only the first token of the first line is
// parsed, so "3.8.7 (Puppet Enterprise 3.8.6)" reads as 3.8.7.
func LayoutForVersion(raw string) (state.Name, error) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return "", ErrUnknownVersion
	}
	v, err := semver.NewVersion(fields[0])
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnknownVersion, fields[0])
	}
	switch major := v.Major(); {
	case major == 2:
		return state.V2, nil
	case major >= 3:
		return state.V3, nil
	default:
		return "", fmt.Errorf("%w %d", ErrUnsupportedVersion, major)
	}
}

// resolveLayout honours an explicit layout and probes the binary for auto.
func resolveLayout(ctx context.Context, cfg config.Config, detect VersionDetector) (state.Name, error) {
	if cfg.Layout != config.LayoutAuto && cfg.Layout != "" {
		return state.Name(cfg.Layout), nil
	}
	raw, err := detect(ctx, cfg.AgentBinary)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnknownVersion, err)
	}
	return LayoutForVersion(raw)
}
