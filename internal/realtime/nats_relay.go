package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/daisi-wa-support-console/internal/jetstream"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/observer"
	"gitlab.com/timkado/api/daisi-wa-support-console/pkg/logger"
)

const (
	relayStreamMaxAge    = time.Hour
	relayDuplicateWindow = 2 * time.Minute
	natsMsgIDHeader      = "Nats-Msg-Id"
	natsOriginHeader     = "Console-Origin"
	defaultSubjectPrefix = "v1.console"
	defaultRelayStream   = "console_events"
)

// NATSRelay republishes emitted envelopes on JetStream and feeds envelopes
// emitted by other replicas into a local sink.
type NATSRelay struct {
	client        jetstream.ClientInterface
	stream        string
	subjectPrefix string
	origin        string
	sub           *nats.Subscription
	baseLogger    *zap.Logger
}

// Ensure NATSRelay implements Sink
var _ Sink = (*NATSRelay)(nil)

// NewNATSRelay creates a relay. origin must be unique per replica.
func NewNATSRelay(client jetstream.ClientInterface, stream, subjectPrefix, origin string, baseLogger *zap.Logger) *NATSRelay {
	if stream == "" {
		stream = defaultRelayStream
	}
	if subjectPrefix == "" {
		subjectPrefix = defaultSubjectPrefix
	}
	return &NATSRelay{
		client:        client,
		stream:        stream,
		subjectPrefix: strings.TrimSuffix(subjectPrefix, "."),
		origin:        origin,
		baseLogger:    baseLogger.Named("nats_relay"),
	}
}

// Setup ensures the relay stream exists.
func (r *NATSRelay) Setup(ctx context.Context) error {
	return r.client.SetupStream(ctx, &nats.StreamConfig{
		Name:       r.stream,
		Subjects:   []string{r.subjectPrefix + ".>"},
		Storage:    nats.MemoryStorage,
		Retention:  nats.LimitsPolicy,
		MaxAge:     relayStreamMaxAge,
		Duplicates: relayDuplicateWindow,
	})
}

// Name implements Sink.
func (r *NATSRelay) Name() string { return "nats" }

// Subject returns the subject an envelope is published on:
// <prefix>.<organization>.<event with ':' replaced by '_'>.
func (r *NATSRelay) Subject(env *Envelope) string {
	return r.subjectPrefix + "." + env.OrganizationID + "." + strings.ReplaceAll(env.Event, ":", "_")
}

// Publish implements Sink. Envelopes that originated elsewhere are not
// republished.
func (r *NATSRelay) Publish(ctx context.Context, env *Envelope) error {
	if env.Origin != r.origin {
		return nil
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}
	headers := map[string]string{
		natsMsgIDHeader:  env.ID,
		natsOriginHeader: r.origin,
	}
	if err := r.client.Publish(ctx, r.Subject(env), data, headers); err != nil {
		observer.IncRealtimeRelayError(r.Name())
		return err
	}
	return nil
}

// Subscribe delivers envelopes from other replicas to local.
func (r *NATSRelay) Subscribe(local Sink) error {
	sub, err := r.client.Subscribe(r.subjectPrefix+".>", r.handler(local))
	if err != nil {
		return err
	}
	r.sub = sub
	r.baseLogger.Info("Subscribed to relay stream", zap.String("stream", r.stream), zap.String("subject", r.subjectPrefix+".>"))
	return nil
}

func (r *NATSRelay) handler(local Sink) nats.MsgHandler {
	return func(msg *nats.Msg) {
		if msg.Header != nil && msg.Header.Get(natsOriginHeader) == r.origin {
			return
		}
		var env Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			r.baseLogger.Warn("Dropping undecodable relay message", zap.String("subject", msg.Subject), zap.Error(err))
			return
		}
		if env.Origin == r.origin {
			return
		}
		ctx := logger.WithLogger(context.Background(), r.baseLogger)
		if err := local.Publish(ctx, &env); err != nil {
			r.baseLogger.Warn("Failed to deliver relayed event", zap.String("event", env.Event), zap.Error(err))
		}
	}
}

// Close stops the subscription.
func (r *NATSRelay) Close() {
	if r.sub != nil {
		_ = r.sub.Unsubscribe()
	}
}
