package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// DefaultSubjectPrefix is used when none is configured.
const DefaultSubjectPrefix = "govern"

// NATSBroadcaster publishes events as JSON to NATS core subjects.
type NATSBroadcaster struct {
	nc     *nats.Conn
	prefix string
	owned  bool
	logger *zap.Logger
}

// NewNATSBroadcaster publishes on an existing connection. The caller keeps
// ownership of nc.
func NewNATSBroadcaster(nc *nats.Conn, prefix string, logger *zap.Logger) *NATSBroadcaster {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATSBroadcaster{nc: nc, prefix: prefix, logger: logger}
}

// ConnectNATS dials url and returns a broadcaster that owns the connection.
func ConnectNATS(url, prefix string, logger *zap.Logger) (*NATSBroadcaster, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	nc, err := nats.Connect(url,
		nats.Name("governd"),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	b := NewNATSBroadcaster(nc, prefix, logger)
	b.owned = true
	return b, nil
}

// Subject returns the subject e is published on.
func (b *NATSBroadcaster) Subject(e Event) string {
	switch e.Kind {
	case KindRulePromoted, KindRuleRevoked:
		kind := strings.TrimPrefix(string(e.Kind), "rule.")
		return fmt.Sprintf("%s.rules.%s.%s", b.prefix, token(e.CompanyID), kind)
	default:
		return fmt.Sprintf("%s.actions.%s.%s", b.prefix, token(e.CompanyID), token(e.Status))
	}
}

// Publish sends e. The context is checked but NATS core publishes do not
// block on acknowledgement.
func (b *NATSBroadcaster) Publish(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	subject := b.Subject(e)
	if err := b.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}
	b.logger.Debug("event published", zap.String("subject", subject), zap.String("action_id", e.ActionID))
	return nil
}

// Close flushes pending messages and closes the connection if owned.
func (b *NATSBroadcaster) Close() error {
	if !b.owned {
		return nil
	}
	err := b.nc.FlushTimeout(2 * time.Second)
	b.nc.Close()
	return err
}

// token makes s safe as a single subject token.
func token(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, s)
}
