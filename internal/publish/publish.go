// Package publish sends status snapshots to message brokers.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"time"

	"github.com/carlosprados/agentmgr/internal/config"
	"github.com/carlosprados/agentmgr/internal/metrics"
	"github.com/carlosprados/agentmgr/internal/status"
	"github.com/rs/zerolog/log"
)

// Publisher delivers one encoded snapshot.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, payload []byte) error
	Close() error
}

// Envelope is the message body on every transport.
type Envelope struct {
	Host   string             `json:"host"`
	At     time.Time          `json:"at"`
	Status status.AgentStatus `json:"status"`
}

// Encode wraps st in an Envelope stamped with the local hostname.
func Encode(st status.AgentStatus, at time.Time) ([]byte, error) {
	host, _ := os.Hostname()
	return json.Marshal(Envelope{Host: host, At: at.UTC(), Status: st})
}

// Fanout publishes to every configured transport. A failing transport does
// not stop the others.
type Fanout struct {
	pubs []Publisher
}

func NewFanout(pubs ...Publisher) *Fanout { return &Fanout{pubs: pubs} }

// Open connects the transports enabled in cfg. With none enabled the
// returned Fanout is empty and Publish is a no-op.
func Open(cfg config.Watch) (*Fanout, error) {
	var pubs []Publisher
	if cfg.NATS.URL != "" {
		p, err := DialNATS(cfg.NATS.URL, cfg.NATS.Subject)
		if err != nil {
			return nil, err
		}
		pubs = append(pubs, p)
	}
	if cfg.MQTT.Broker != "" {
		p, err := DialMQTT(cfg.MQTT.Broker, cfg.MQTT.Topic, cfg.MQTT.ClientID)
		if err != nil {
			for _, q := range pubs {
				_ = q.Close()
			}
			return nil, err
		}
		pubs = append(pubs, p)
	}
	return NewFanout(pubs...), nil
}

func (f *Fanout) Len() int { return len(f.pubs) }

// Publish encodes st once and sends it everywhere.
func (f *Fanout) Publish(ctx context.Context, st status.AgentStatus) error {
	if len(f.pubs) == 0 {
		return nil
	}
	b, err := Encode(st, time.Now())
	if err != nil {
		return err
	}
	var errs []error
	for _, p := range f.pubs {
		if err := p.Publish(ctx, b); err != nil {
			metrics.IncPublishErrors(p.Name())
			log.Warn().Err(err).Str("transport", p.Name()).Msg("status publish failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *Fanout) Close() error {
	var errs []error
	for _, p := range f.pubs {
		errs = append(errs, p.Close())
	}
	return errors.Join(errs...)
}
