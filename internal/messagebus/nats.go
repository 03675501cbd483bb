// Package messagebus mirrors internal events onto NATS so external
// consumers can follow agent and task activity without polling the API.
package messagebus

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"agentd/internal/eventbus"
)

// Config holds the NATS bridge configuration.
type Config struct {
	URL           string        // NATS server URL (e.g. "nats://localhost:4222")
	SubjectPrefix string        // subject prefix, default "agentd"
	Timeout       time.Duration // connection timeout
}

// Bridge forwards bus events to NATS subjects of the form
// <prefix>.<event-type>, e.g. "agentd.task.completed".
type Bridge struct {
	conn   *nats.Conn
	prefix string
	logger *slog.Logger
	done   chan struct{}
}

// NewBridge connects to NATS. The connection reconnects indefinitely on
// network failures; events published while disconnected are dropped.
func NewBridge(cfg Config, logger *slog.Logger) (*Bridge, error) {
	if cfg.URL == "" {
		cfg.URL = "nats://localhost:4222"
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "agentd"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "nats-bridge")

	conn, err := nats.Connect(cfg.URL,
		nats.Timeout(cfg.Timeout),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	logger.Info("connected to nats", "url", cfg.URL, "subject_prefix", cfg.SubjectPrefix)
	return &Bridge{
		conn:   conn,
		prefix: cfg.SubjectPrefix,
		logger: logger,
		done:   make(chan struct{}),
	}, nil
}

// Run subscribes to the internal bus and forwards every event until
// Close is called or the bus shuts down. Intended to run as a goroutine.
func (b *Bridge) Run(bus *eventbus.Bus) {
	sub := bus.Subscribe("nats-bridge", nil)
	defer bus.Unsubscribe(sub.ID)

	for {
		select {
		case <-b.done:
			return
		case ev, ok := <-sub.Channel:
			if !ok {
				return
			}
			b.forward(ev)
		}
	}
}

func (b *Bridge) forward(ev *eventbus.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		b.logger.Error("event marshal failed", "event_type", ev.Type, "error", err)
		return
	}
	subject := fmt.Sprintf("%s.%s", b.prefix, ev.Type)
	if err := b.conn.Publish(subject, data); err != nil {
		b.logger.Warn("nats publish failed", "subject", subject, "error", err)
	}
}

// Close stops forwarding and drains the connection.
func (b *Bridge) Close() {
	close(b.done)
	if err := b.conn.Drain(); err != nil {
		b.logger.Warn("nats drain failed", "error", err)
	}
}
