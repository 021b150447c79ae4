package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// NATS publishes each event as JSON on <subject>.<kind>.
type NATS struct {
	nc      *nats.Conn
	subject string
}

// NewNATS connects to url (nats.DefaultURL when empty).
func NewNATS(url, subject string) (*NATS, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url,
		nats.Name("oooz-bot"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("events: nats connect: %w", err)
	}
	return NewNATSWithConn(nc, subject), nil
}

func NewNATSWithConn(nc *nats.Conn, subject string) *NATS {
	if subject == "" {
		subject = "oooz"
	}
	return &NATS{nc: nc, subject: subject}
}

// Subject returns the subject an event of kind is published on.
func (n *NATS) Subject(kind string) string {
	return n.subject + "." + kind
}

func (n *NATS) Publish(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return n.nc.Publish(n.Subject(ev.Kind), data)
}

func (n *NATS) Close() error {
	return n.nc.Drain()
}
