// Package eventbus mirrors conversation lifecycle events to NATS for
// external observers.
package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/duetlabs/persona-duet/internal/model"
	"github.com/duetlabs/persona-duet/pkg/logger"
)

// Publisher publishes conversation events to a NATS subject.
type Publisher struct {
	conn    *nats.Conn
	subject string
	log     *logger.Logger
}

// Connect establishes a NATS connection. The returned Publisher is safe to
// use from the event-consuming goroutine.
func Connect(url, subject string, log *logger.Logger) (*Publisher, error) {
	if log == nil {
		log = logger.NewNop()
	}
	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected")
		}),
	}
	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &Publisher{conn: conn, subject: subject, log: log}, nil
}

// Publish mirrors one event. Failures are logged, never fatal: event
// mirroring must not disturb the conversation loop.
func (p *Publisher) Publish(ev model.ConversationEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		p.log.Warn("marshal event", zap.Error(err))
		return
	}
	subject := p.subject + "." + string(ev.Type)
	if err := p.conn.Publish(subject, data); err != nil {
		p.log.Warn("publish event", zap.String("subject", subject), zap.Error(err))
	}
}

// Close flushes and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Flush()
	p.conn.Close()
}
