// Package summary loads the agent's last-run report.
package summary

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Top-level sections that are always present in a loaded Summary.
var sections = []string{"changes", "time", "resources", "version", "events"}

// Resource counters that default to 0.
var resourceCounters = []string{"failed", "changed", "total", "restarted", "out_of_sync"}

// Summary is the last-run report. Keys the agent writes that are not part of
// the skeleton are kept as-is.
type Summary map[string]any

// Skeleton returns the all-defaults summary.
func Skeleton() Summary {
	s := Summary{}
	for _, k := range sections {
		s[k] = map[string]any{}
	}
	res := s["resources"].(map[string]any)
	for _, k := range resourceCounters {
		res[k] = 0
	}
	return s
}

// Load reads the YAML report at path and merges it over Skeleton.
// A missing file yields the skeleton; a malformed one is an error.
func Load(path string) (Summary, error) {
	s := Skeleton()
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("read last run report: %w", err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse last run report %s: %w", path, err)
	}
	if err := merge(s, doc, ""); err != nil {
		return nil, fmt.Errorf("parse last run report %s: %w", path, err)
	}
	return s, nil
}

// merge copies src into dst, descending into nested mappings. Null values
// in src leave the default in place.
func merge(dst, src map[string]any, prefix string) error {
	for k, v := range src {
		if v == nil {
			continue
		}
		cur, isMap := dst[k].(map[string]any)
		if !isMap {
			dst[k] = v
			continue
		}
		sub, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("section %q is not a mapping", prefix+k)
		}
		if err := merge(cur, sub, prefix+k+"."); err != nil {
			return err
		}
	}
	return nil
}

// Section returns a top-level mapping, or an empty one.
func (s Summary) Section(name string) map[string]any {
	if m, ok := s[name].(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

// LastRun is time.last_run in epoch seconds, 0 when absent or unreadable.
func (s Summary) LastRun() int64 {
	n, _ := toInt64(s.Section("time")["last_run"])
	return n
}

// ResourceCounters names the resources counters every summary carries.
func ResourceCounters() []string {
	return append([]string(nil), resourceCounters...)
}

// Resource returns a resources counter such as "failed".
func (s Summary) Resource(name string) int64 {
	n, _ := toInt64(s.Section("resources")[name])
	return n
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case uint64:
		return int64(n), true
	case float64:
		return int64(n), true
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	}
	return 0, false
}
