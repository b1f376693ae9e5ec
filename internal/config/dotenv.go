package config

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// DefaultDir holds the system-wide config file and .env.
const DefaultDir = "/etc/agentmgr"

// LoadDotEnv reads a .env-style file and sets variables into the process env.
// Lines starting with '#' are comments. Supported formats:
//
//	KEY=VALUE
//	export KEY=VALUE
//	KEY="VALUE WITH SPACES"
//
// Existing env vars are preserved unless override is true.
func LoadDotEnv(path string, override bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	for s.Scan() {
		key, val, ok := parseDotEnvLine(s.Text())
		if !ok {
			continue
		}
		if !override {
			if _, set := os.LookupEnv(key); set {
				continue
			}
		}
		_ = os.Setenv(key, val)
	}
	return s.Err()
}

func parseDotEnvLine(line string) (key, val string, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}
	line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
	key, val, found := strings.Cut(line, "=")
	key = strings.TrimSpace(key)
	if !found || key == "" {
		return "", "", false
	}
	val = strings.TrimSpace(val)
	if len(val) >= 2 {
		if (val[0] == '"' && val[len(val)-1] == '"') || (val[0] == '\'' && val[len(val)-1] == '\'') {
			val = val[1 : len(val)-1]
		}
	}
	return key, val, true
}

// LoadDotEnvDefault loads .env from the working directory and then from
// DefaultDir, ignoring missing files. Earlier files win; existing env vars
// are never overridden.
func LoadDotEnvDefault() {
	var dirs []string
	if cwd, err := os.Getwd(); err == nil {
		dirs = append(dirs, cwd)
	}
	dirs = append(dirs, DefaultDir)
	loadDotEnvFrom(dirs...)
}

func loadDotEnvFrom(dirs ...string) {
	for _, d := range dirs {
		p := filepath.Join(d, ".env")
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			_ = LoadDotEnv(p, false)
		}
	}
}
