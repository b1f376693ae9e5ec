package dispatch

import (
	"fmt"
	"sort"
	"strings"
)

// RunOptions are the caller's choices for one run request. Start from
// DefaultOptions: the zero value has SignalDaemon off, so a bare
// RunOptions{Noop: true} never wakes an idle daemon.
type RunOptions struct {
	Noop          bool
	SignalDaemon  bool
	ForegroundRun bool
	Tags          []string
	Environment   string
	Server        string // "host" or "host:port"
}

// DefaultOptions signals an idle daemon and otherwise spawns in the background.
func DefaultOptions() RunOptions {
	return RunOptions{SignalDaemon: true}
}

// custom reports whether any option that changes the agent's behaviour is
// set. Those cannot be passed to a daemon woken by a signal.
func (o RunOptions) custom() bool {
	return o.Noop || len(o.Tags) > 0 || o.Environment != "" || o.Server != ""
}

// OptionsFromMap builds RunOptions from loosely typed input such as decoded
// JSON. Unrecognised keys are rejected before anything else is looked at.
func OptionsFromMap(m map[string]any) (RunOptions, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch k {
		case "noop", "signal_daemon", "foreground_run", "tags", "environment", "server":
		default:
			return RunOptions{}, fmt.Errorf("%w %q specified", ErrUnknownOption, k)
		}
	}

	o := DefaultOptions()
	var err error
	for _, k := range keys {
		v := m[k]
		if v == nil {
			continue
		}
		switch k {
		case "noop":
			o.Noop, err = asBool(k, v)
		case "signal_daemon":
			o.SignalDaemon, err = asBool(k, v)
		case "foreground_run":
			o.ForegroundRun, err = asBool(k, v)
		case "tags":
			o.Tags, err = asTags(v)
		case "environment":
			o.Environment, err = asString(k, v)
		case "server":
			o.Server, err = asString(k, v)
		}
		if err != nil {
			return RunOptions{}, err
		}
	}
	return o, nil
}

func asBool(key string, v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("option %q must be a boolean", key)
	}
	return b, nil
}

func asString(key string, v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("option %q must be a string", key)
	}
	return s, nil
}

// asTags accepts a list of strings or a single comma separated string.
func asTags(v any) ([]string, error) {
	switch t := v.(type) {
	case string:
		return splitTags(t), nil
	case []string:
		return uniqueTags(t), nil
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("option %q must be a list of strings", "tags")
			}
			out = append(out, s)
		}
		return uniqueTags(out), nil
	}
	return nil, fmt.Errorf("option %q must be a list of strings", "tags")
}

func splitTags(s string) []string {
	return uniqueTags(strings.Split(s, ","))
}

// uniqueTags trims, drops empties and removes duplicates keeping first order.
func uniqueTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
