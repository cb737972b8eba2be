// Package events announces completed uploads on a message bus.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/itchan-dev/imagehost/internal/domain"
	"github.com/itchan-dev/imagehost/internal/service"
)

const (
	DefaultSubjectPrefix = "imagehost"
	uploadedSuffix       = "image.uploaded"
)

var errEmptyPrefix = errors.New("empty subject prefix")

// Noop drops every event. It is used when no bus is configured.
type Noop struct{}

var _ service.EventPublisher = Noop{}

func (Noop) PublishUploaded(context.Context, domain.UploadedEvent) error { return nil }

// publisherConn is the part of *nats.Conn the publisher needs.
type publisherConn interface {
	Publish(subject string, data []byte) error
	Close()
}

// NatsPublisher publishes JSON encoded events with core NATS semantics:
// fire and forget, no persistence.
type NatsPublisher struct {
	conn   publisherConn
	prefix string
}

var _ service.EventPublisher = (*NatsPublisher)(nil)

// NewNatsPublisher dials url and keeps reconnecting forever in the
// background once connected.
func NewNatsPublisher(url, prefix string) (*NatsPublisher, error) {
	opts := []nats.Option{
		nats.Name("imagehost"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			slog.Warn("disconnected from NATS", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("reconnected to NATS", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			slog.Info("NATS connection closed")
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	p, err := newPublisher(nc, prefix)
	if err != nil {
		nc.Close()
		return nil, err
	}
	return p, nil
}

func newPublisher(conn publisherConn, prefix string) (*NatsPublisher, error) {
	if prefix == "" {
		return nil, errEmptyPrefix
	}
	return &NatsPublisher{conn: conn, prefix: prefix}, nil
}

// UploadedSubject is the subject image.uploaded events are sent on.
func UploadedSubject(prefix string) string {
	return prefix + "." + uploadedSuffix
}

func (p *NatsPublisher) PublishUploaded(ctx context.Context, event domain.UploadedEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.conn.Publish(UploadedSubject(p.prefix), data); err != nil {
		return fmt.Errorf("publish %s: %w", UploadedSubject(p.prefix), err)
	}
	return nil
}

func (p *NatsPublisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}
