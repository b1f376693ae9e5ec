package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/carlosprados/agentmgr/internal/validate"
	"github.com/rs/zerolog/log"
)

// layoutV2: a single lock file. Zero bytes is the admin disable marker,
// otherwise it carries the pid of the running catalog.
type layoutV2 struct {
	paths Paths
}

func (l *layoutV2) Name() Name { return V2 }

func (l *layoutV2) Disabled() bool {
	st, err := os.Stat(l.paths.DisableLock)
	if err != nil {
		return false
	}
	return st.Size() == 0
}

func (l *layoutV2) RunLockPath() string { return l.paths.RunLock }

// LockMessage is always empty: this layout cannot store one.
func (l *layoutV2) LockMessage() string { return "" }

func (l *layoutV2) RemoveDisableLock() error { return removeLock(l.paths.DisableLock) }

func (l *layoutV2) WriteDisableLock(_ string, _ time.Time) (string, error) {
	if err := os.WriteFile(l.paths.DisableLock, nil, 0o644); err != nil {
		return "", fmt.Errorf("create disable lock: %w", err)
	}
	return "", nil
}

// layoutV3: the disable lock holds a JSON record, the catalog run lock and
// the daemon pid file are separate files.
type layoutV3 struct {
	paths Paths
}

// DisableRecord is the content of the v3 disable lock.
type DisableRecord struct {
	Message    string `json:"disabled_message"`
	DisabledAt string `json:"disabled_at,omitempty"`
}

func (l *layoutV3) Name() Name { return V3 }

func (l *layoutV3) Disabled() bool {
	_, err := os.Stat(l.paths.DisableLock)
	return err == nil
}

func (l *layoutV3) RunLockPath() string { return l.paths.RunLock }

func (l *layoutV3) LockMessage() string {
	if !l.Disabled() {
		return ""
	}
	msg, err := readDisableMessage(l.paths.DisableLock)
	if err != nil {
		log.Debug().Err(err).Str("path", l.paths.DisableLock).Msg("disable record unreadable")
		return ""
	}
	return msg
}

func readDisableMessage(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var generic any
	if err := json.Unmarshal(b, &generic); err != nil {
		return "", fmt.Errorf("decode disable record: %w", err)
	}
	if err := validate.ValidateDisableRecord(generic); err != nil {
		return "", fmt.Errorf("invalid disable record: %w", err)
	}
	var rec DisableRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return "", fmt.Errorf("decode disable record: %w", err)
	}
	return rec.Message, nil
}

func (l *layoutV3) RemoveDisableLock() error { return removeLock(l.paths.DisableLock) }

func (l *layoutV3) WriteDisableLock(msg string, now time.Time) (string, error) {
	if msg == "" {
		msg = "Disabled using agentmgr at " + now.Format(time.ANSIC)
	}
	b, err := json.Marshal(DisableRecord{Message: msg, DisabledAt: now.UTC().Format(time.RFC3339)})
	if err != nil {
		return "", err
	}
	if err := WriteFileAtomic(l.paths.DisableLock, b, 0o644); err != nil {
		return "", fmt.Errorf("write disable lock: %w", err)
	}
	return msg, nil
}

func removeLock(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove disable lock: %w", err)
	}
	return nil
}
