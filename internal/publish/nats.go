package publish

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

type natsConn interface {
	Publish(subject string, data []byte) error
	Close()
}

// NATS publishes snapshots as plain core NATS messages.
type NATS struct {
	conn    natsConn
	subject string
}

// DialNATS connects to url and keeps reconnecting in the background.
func DialNATS(url, subject string) (*NATS, error) {
	nc, err := nats.Connect(url,
		nats.Name("agentmgr"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("nats disconnected")
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	log.Info().Str("url", url).Str("subject", subject).Msg("nats publisher connected")
	return &NATS{conn: nc, subject: subject}, nil
}

func (n *NATS) Name() string { return "nats" }

func (n *NATS) Publish(_ context.Context, payload []byte) error {
	if err := n.conn.Publish(n.subject, payload); err != nil {
		return fmt.Errorf("nats publish %s: %w", n.subject, err)
	}
	return nil
}

func (n *NATS) Close() error {
	n.conn.Close()
	return nil
}
