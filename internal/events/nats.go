package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

type NATSPublisher struct {
	conn   *nats.Conn
	logger *logrus.Entry
}

func NewNATSPublisher(url string, logger *logrus.Logger) (*NATSPublisher, error) {
	entry := logger.WithField("component", "events.publisher")
	conn, err := nats.Connect(url,
		nats.Name("omnistock"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				entry.WithError(err).Warn("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			entry.WithField("url", nc.ConnectedUrl()).Info("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSPublisher{conn: conn, logger: entry}, nil
}

func (p *NATSPublisher) Publish(_ context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.Subject, err)
	}
	if err := p.conn.Publish(event.Subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", event.Subject, err)
	}
	p.logger.WithFields(logrus.Fields{"subject": event.Subject, "event_id": event.ID}).Debug("event published")
	return nil
}

func (p *NATSPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}
