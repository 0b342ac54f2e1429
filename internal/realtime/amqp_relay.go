package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/daisi-wa-support-console/internal/observer"
)

const defaultExchange = "console.events"

// amqpChannel is the part of *amqp.Channel the relay uses.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPRelay republishes emitted envelopes on a topic exchange so other
// services can observe console activity.
type AMQPRelay struct {
	conn       *amqp.Connection
	exchange   string
	origin     string
	mu         sync.Mutex
	ch         amqpChannel
	baseLogger *zap.Logger
}

// Ensure AMQPRelay implements Sink
var _ Sink = (*AMQPRelay)(nil)

// NewAMQPRelay dials url with exponential backoff and declares exchange.
func NewAMQPRelay(ctx context.Context, url, exchange, origin string, baseLogger *zap.Logger) (*AMQPRelay, error) {
	if exchange == "" {
		exchange = defaultExchange
	}
	log := baseLogger.Named("amqp_relay")

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 15 * time.Second
	bo.MaxElapsedTime = time.Minute

	conn, err := backoff.RetryNotifyWithData(func() (*amqp.Connection, error) {
		return amqp.Dial(url)
	}, backoff.WithContext(bo, ctx), func(err error, d time.Duration) {
		log.Warn("AMQP dial failed, retrying", zap.Duration("backoff", d), zap.Error(err))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to AMQP broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open AMQP channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	log.Info("AMQP relay connected", zap.String("exchange", exchange))
	return &AMQPRelay{conn: conn, exchange: exchange, origin: origin, ch: ch, baseLogger: log}, nil
}

// Name implements Sink.
func (r *AMQPRelay) Name() string { return "amqp" }

// RoutingKey returns "<organization>.<event with ':' replaced by '.'>".
func RoutingKey(env *Envelope) string {
	return env.OrganizationID + "." + strings.ReplaceAll(env.Event, ":", ".")
}

// Publish implements Sink.
func (r *AMQPRelay) Publish(ctx context.Context, env *Envelope) error {
	if env.Origin != r.origin {
		return nil
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	err = r.ch.PublishWithContext(ctx, r.exchange, RoutingKey(env), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		MessageId:    env.ID,
		AppId:        r.origin,
		Type:         env.Event,
		Timestamp:    env.EmittedAt,
		Body:         body,
	})
	if err != nil {
		observer.IncRealtimeRelayError(r.Name())
		return fmt.Errorf("failed to publish %s: %w", env.Event, err)
	}
	return nil
}

// Connected reports whether the broker connection is open.
func (r *AMQPRelay) Connected() bool {
	return r.conn != nil && !r.conn.IsClosed()
}

// Close closes the channel and the connection.
func (r *AMQPRelay) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ch != nil {
		_ = r.ch.Close()
	}
	if r.conn != nil {
		_ = r.conn.Close()
	}
}
