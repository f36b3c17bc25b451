package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/aretw0/sagaflow/pkg/ports"
	backend "github.com/redis/go-redis/v9"
)

var (
	_ ports.EventSink  = (*EventStream)(nil)
	_ ports.CommandBus = (*CommandStream)(nil)
)

// dataField holds the JSON body of every stream entry.
const dataField = "data"

func xadd(ctx context.Context, client *backend.Client, stream string, maxLen int64, msg any) (string, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}
	id, err := client.XAdd(ctx, &backend.XAddArgs{
		Stream: stream,
		MaxLen: maxLen,
		Approx: maxLen > 0,
		Values: map[string]any{dataField: string(data)},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", stream, err)
	}
	return id, nil
}

// EventStream publishes saga envelopes to a single Redis stream.
type EventStream struct {
	client *backend.Client
	stream string
	maxLen int64
}

// NewEventStream publishes to stream, trimming it to roughly maxLen entries (0 keeps all).
func NewEventStream(client *backend.Client, stream string, maxLen int64) *EventStream {
	return &EventStream{client: client, stream: stream, maxLen: maxLen}
}

func (s *EventStream) Publish(ctx context.Context, env domain.Envelope) error {
	_, err := xadd(ctx, s.client, s.stream, s.maxLen, env)
	return err
}

// CommandStream hands commands to their domains through one stream per domain,
// named prefix + domain. Outcomes arrive later as domain events, so every
// successful Send returns domain.ErrDeferred.
type CommandStream struct {
	client *backend.Client
	prefix string
}

func NewCommandStream(client *backend.Client, prefix string) *CommandStream {
	return &CommandStream{client: client, prefix: prefix}
}

// Stream returns the stream name commands for domainName are written to.
func (s *CommandStream) Stream(domainName string) string {
	return s.prefix + domainName
}

func (s *CommandStream) Send(ctx context.Context, cmd domain.CommandMessage) (json.RawMessage, error) {
	if _, err := xadd(ctx, s.client, s.Stream(cmd.Domain), 0, cmd); err != nil {
		return nil, err
	}
	return nil, domain.ErrDeferred
}

// EventHandler consumes one domain event.
type EventHandler func(ctx context.Context, event domain.DomainEvent) error

// ConsumerOptions tunes a Consumer.
type ConsumerOptions struct {
	BatchSize int64
	BlockTime time.Duration
}

// DefaultConsumerOptions reads up to 10 entries, blocking for at most a second.
var DefaultConsumerOptions = ConsumerOptions{
	BatchSize: 10,
	BlockTime: time.Second,
}

// Consumer reads domain events from a stream through a consumer group.
// Entries the handler rejects are copied to stream + ":dlq" and acknowledged.
type Consumer struct {
	client   *backend.Client
	stream   string
	group    string
	consumer string
	handler  EventHandler
	opts     ConsumerOptions
	logger   *slog.Logger
}

// NewConsumer creates a consumer. A nil opts uses DefaultConsumerOptions.
func NewConsumer(client *backend.Client, stream, group, consumer string, handler EventHandler, opts *ConsumerOptions) *Consumer {
	if opts == nil {
		opts = &DefaultConsumerOptions
	}
	return &Consumer{
		client:   client,
		stream:   stream,
		group:    group,
		consumer: consumer,
		handler:  handler,
		opts:     *opts,
		logger:   slog.Default(),
	}
}

// WithLogger sets the logger and returns c.
func (c *Consumer) WithLogger(logger *slog.Logger) *Consumer {
	c.logger = logger
	return c
}

// Setup creates the consumer group, and the stream if needed.
func (c *Consumer) Setup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create group: %w", err)
	}
	return nil
}

// Run consumes until ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.Setup(ctx); err != nil {
		return err
	}
	for {
		if _, err := c.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// Poll reads one batch and returns how many entries it handled.
func (c *Consumer) Poll(ctx context.Context) (int, error) {
	results, err := c.client.XReadGroup(ctx, &backend.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumer,
		Streams:  []string{c.stream, ">"},
		Count:    c.opts.BatchSize,
		Block:    c.opts.BlockTime,
	}).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("xreadgroup: %w", err)
	}

	n := 0
	for _, result := range results {
		for _, m := range result.Messages {
			c.process(ctx, m)
			n++
		}
	}
	return n, nil
}

func (c *Consumer) process(ctx context.Context, m backend.XMessage) {
	data, _ := m.Values[dataField].(string)

	var event domain.DomainEvent
	err := json.Unmarshal([]byte(data), &event)
	if err != nil {
		err = fmt.Errorf("decode event: %w", err)
	} else {
		err = c.handler(ctx, event)
	}

	if err != nil {
		c.logger.WarnContext(ctx, "event rejected",
			"stream", c.stream,
			"message_id", m.ID,
			"event_type", event.Type,
			"error", err,
		)
		if dlqErr := c.sendToDLQ(ctx, m, err.Error()); dlqErr != nil {
			// Leave it pending for a later XCLAIM.
			c.logger.ErrorContext(ctx, "dead-letter failed", "message_id", m.ID, "error", dlqErr)
			return
		}
	}

	if err := c.client.XAck(ctx, c.stream, c.group, m.ID).Err(); err != nil {
		c.logger.ErrorContext(ctx, "ack failed", "message_id", m.ID, "error", err)
	}
}

func (c *Consumer) sendToDLQ(ctx context.Context, m backend.XMessage, reason string) error {
	_, err := c.client.XAdd(ctx, &backend.XAddArgs{
		Stream: c.DeadLetterStream(),
		Values: map[string]any{
			"stream":   c.stream,
			"msgId":    m.ID,
			"reason":   reason,
			dataField:  m.Values[dataField],
			"tsMs":     time.Now().UnixMilli(),
			"group":    c.group,
			"consumer": c.consumer,
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("xadd dlq: %w", err)
	}
	return nil
}

// DeadLetterStream names the stream rejected entries are copied to.
func (c *Consumer) DeadLetterStream() string {
	return c.stream + ":dlq"
}

// PublishEvent writes a domain event to stream in the format Consumer reads.
func PublishEvent(ctx context.Context, client *backend.Client, stream string, event domain.DomainEvent) (string, error) {
	return xadd(ctx, client, stream, 0, event)
}
