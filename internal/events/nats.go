package events

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const streamName = "BOOKMARKET"

var streamSubjects = []string{"settlements.>", "orders.>"}

type NatsPublisher struct {
	conn *nats.Conn
	js   jetstream.JetStream
}

// Connect dials NATS and makes sure the stream that captures order events exists.
func Connect(ctx context.Context, url string, timeout time.Duration) (*NatsPublisher, error) {
	nc, err := nats.Connect(url, nats.Timeout(timeout), nats.Name("bookmarket"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: streamSubjects,
		Storage:  jetstream.FileStorage,
	}); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure %s stream: %w", streamName, err)
	}

	return &NatsPublisher{conn: nc, js: js}, nil
}

func (p *NatsPublisher) Publish(ctx context.Context, event Event) error {
	data, err := event.Payload()
	if err != nil {
		return fmt.Errorf("failed to get event payload: %w", err)
	}
	if _, err := p.js.Publish(ctx, event.Subject(), data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Subject(), err)
	}
	return nil
}

func (p *NatsPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Drain()
}
