// Package config loads the agentmgr TOML configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/carlosprados/agentmgr/internal/state"
	"github.com/carlosprados/agentmgr/internal/validate"
	toml "github.com/pelletier/go-toml/v2"
)

// LayoutAuto picks the state layout from the installed agent's version.
const LayoutAuto = "auto"

const envConfig = "AGENTMGR_CONFIG"

// DefaultPath is used when neither --config nor AGENTMGR_CONFIG is set.
var DefaultPath = filepath.Join(DefaultDir, "agentmgr.toml")

type Config struct {
	Layout      string `toml:"layout"`
	AgentBinary string `toml:"agent_binary"`
	// OpenFiles is the RLIMIT_NOFILE applied to spawned runs; 0 leaves it alone.
	OpenFiles uint64 `toml:"open_files"`
	Paths     Paths  `toml:"paths"`
	Watch     Watch  `toml:"watch"`
}

// Paths left empty are filled from the layout defaults by ResolvePaths.
type Paths struct {
	DisableLock   string `toml:"disable_lock"`
	RunLock       string `toml:"run_lock"`
	PIDFile       string `toml:"pid_file"`
	LastRunReport string `toml:"lastrun_report"`
	ResourceFile  string `toml:"resource_file"`
	MutexLock     string `toml:"mutex_lock"`
}

type Watch struct {
	Interval string `toml:"interval"`
	Listen   string `toml:"listen"`
	NATS     NATS   `toml:"nats"`
	MQTT     MQTT   `toml:"mqtt"`
}

// NATS publication is enabled when URL is set.
type NATS struct {
	URL     string `toml:"url"`
	Subject string `toml:"subject"`
}

// MQTT publication is enabled when Broker is set.
type MQTT struct {
	Broker   string `toml:"broker"`
	Topic    string `toml:"topic"`
	ClientID string `toml:"client_id"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Layout:      LayoutAuto,
		AgentBinary: "puppet",
		Watch: Watch{
			Interval: "30s",
			Listen:   "127.0.0.1:9273",
			NATS:     NATS{Subject: "agentmgr.status"},
			MQTT:     MQTT{Topic: "agentmgr/status", ClientID: "agentmgr"},
		},
	}
}

const stateDir = "/var/lib/puppet/state"

// LayoutDefaults returns the stock file locations for a layout.
func LayoutDefaults(layout state.Name) Paths {
	p := Paths{
		PIDFile:       "/var/run/puppet/agent.pid",
		LastRunReport: filepath.Join(stateDir, "last_run_summary.yaml"),
		ResourceFile:  filepath.Join(stateDir, "resources.txt"),
		MutexLock:     filepath.Join(os.TempDir(), "agentmgr.lock"),
	}
	switch layout {
	case state.V2:
		p.DisableLock = filepath.Join(stateDir, "puppetdlock")
		p.RunLock = p.DisableLock
	default:
		p.DisableLock = filepath.Join(stateDir, "agent_disabled.lock")
		p.RunLock = filepath.Join(stateDir, "agent_catalog_run.lock")
	}
	return p
}

// ResolvePaths fills the empty path fields from the layout defaults.
func (c Config) ResolvePaths(layout state.Name) Paths {
	def := LayoutDefaults(layout)
	p := c.Paths
	fill := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	fill(&p.DisableLock, def.DisableLock)
	fill(&p.RunLock, def.RunLock)
	fill(&p.PIDFile, def.PIDFile)
	fill(&p.LastRunReport, def.LastRunReport)
	fill(&p.ResourceFile, def.ResourceFile)
	fill(&p.MutexLock, def.MutexLock)
	return p
}

// StatePaths narrows Paths to what the state probe reads.
func (p Paths) StatePaths() state.Paths {
	return state.Paths{
		DisableLock:   p.DisableLock,
		RunLock:       p.RunLock,
		PIDFile:       p.PIDFile,
		LastRunReport: p.LastRunReport,
	}
}

// PollInterval parses Watch.Interval.
func (w Watch) PollInterval() (time.Duration, error) {
	d, err := time.ParseDuration(w.Interval)
	if err != nil {
		return 0, fmt.Errorf("invalid watch interval %q: %w", w.Interval, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid watch interval %q: must be positive", w.Interval)
	}
	return d, nil
}

// ResolvePath picks the config file: the explicit flag, then
// AGENTMGR_CONFIG, then DefaultPath. explicit reports whether the file was
// asked for by name, in which case it must exist.
func ResolvePath(flagPath string) (path string, explicit bool) {
	if flagPath != "" {
		return flagPath, true
	}
	if p := os.Getenv(envConfig); p != "" {
		return p, true
	}
	return DefaultPath, false
}

// Load reads the configuration selected by flagPath, validates it and
// applies AGENTMGR_* environment overrides.
func Load(flagPath string) (Config, error) {
	path, explicit := ResolvePath(flagPath)
	cfg := Default()

	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(b []byte, cfg *Config) error {
	var generic map[string]any
	if err := toml.Unmarshal(b, &generic); err != nil {
		return err
	}
	if generic == nil {
		generic = map[string]any{}
	}
	if err := validate.ValidateConfigMap(generic); err != nil {
		return err
	}
	return toml.Unmarshal(b, cfg)
}

// Validate checks the fields a file or the environment could get wrong.
func (c Config) Validate() error {
	switch c.Layout {
	case LayoutAuto, string(state.V2), string(state.V3):
	default:
		return fmt.Errorf("unknown layout %q (want auto, v2 or v3)", c.Layout)
	}
	if c.AgentBinary == "" {
		return errors.New("agent_binary must not be empty")
	}
	if _, err := c.Watch.PollInterval(); err != nil {
		return err
	}
	return nil
}

var envStrings = map[string]func(*Config) *string{
	"AGENTMGR_LAYOUT":         func(c *Config) *string { return &c.Layout },
	"AGENTMGR_AGENT_BINARY":   func(c *Config) *string { return &c.AgentBinary },
	"AGENTMGR_DISABLE_LOCK":   func(c *Config) *string { return &c.Paths.DisableLock },
	"AGENTMGR_RUN_LOCK":       func(c *Config) *string { return &c.Paths.RunLock },
	"AGENTMGR_PID_FILE":       func(c *Config) *string { return &c.Paths.PIDFile },
	"AGENTMGR_LASTRUN_REPORT": func(c *Config) *string { return &c.Paths.LastRunReport },
	"AGENTMGR_RESOURCE_FILE":  func(c *Config) *string { return &c.Paths.ResourceFile },
	"AGENTMGR_MUTEX_LOCK":     func(c *Config) *string { return &c.Paths.MutexLock },
	"AGENTMGR_WATCH_INTERVAL": func(c *Config) *string { return &c.Watch.Interval },
	"AGENTMGR_WATCH_LISTEN":   func(c *Config) *string { return &c.Watch.Listen },
	"AGENTMGR_NATS_URL":       func(c *Config) *string { return &c.Watch.NATS.URL },
	"AGENTMGR_NATS_SUBJECT":   func(c *Config) *string { return &c.Watch.NATS.Subject },
	"AGENTMGR_MQTT_BROKER":    func(c *Config) *string { return &c.Watch.MQTT.Broker },
	"AGENTMGR_MQTT_TOPIC":     func(c *Config) *string { return &c.Watch.MQTT.Topic },
	"AGENTMGR_MQTT_CLIENT_ID": func(c *Config) *string { return &c.Watch.MQTT.ClientID },
}

func applyEnv(c *Config) error {
	for key, field := range envStrings {
		if v, ok := os.LookupEnv(key); ok {
			*field(c) = v
		}
	}
	if v, ok := os.LookupEnv("AGENTMGR_OPEN_FILES"); ok {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("AGENTMGR_OPEN_FILES: %w", err)
		}
		c.OpenFiles = n
	}
	return nil
}
