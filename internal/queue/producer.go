package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

type Producer interface {
	// EnqueueCommand puts a slash command on the relay stream and returns
	// the stream message ID. Synchronous: the entry is durable when this
	// returns.
	EnqueueCommand(ctx context.Context, msg RelayMessage, traceID string) (string, error)
	// EnqueueTicketEvent puts a raw ITSM event on the relay stream for
	// the worker's forward path.
	EnqueueTicketEvent(ctx context.Context, payload []byte, traceID string) (string, error)
	Close() error
}

type redisProducer struct {
	client *redis.Client
	stream string
	logger *slog.Logger
	now    func() time.Time
}

func NewRedisProducer(client *redis.Client, stream string, logger *slog.Logger) Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisProducer{
		client: client,
		stream: stream,
		logger: logger,
		now:    time.Now,
	}
}

func (p *redisProducer) EnqueueCommand(ctx context.Context, msg RelayMessage, traceID string) (string, error) {
	id, err := p.add(ctx, Message{
		TaskType:   TaskTypeCommand,
		Command:    msg,
		EnqueuedAt: p.now().UTC(),
		TraceID:    traceID,
	})
	if err != nil {
		return "", fmt.Errorf("enqueue command: %w", err)
	}

	p.logger.InfoContext(ctx, "enqueued command",
		"message_id", id,
		"action", msg.Action,
		"ticket_number", msg.TicketNumber)
	return id, nil
}

func (p *redisProducer) EnqueueTicketEvent(ctx context.Context, payload []byte, traceID string) (string, error) {
	id, err := p.add(ctx, Message{
		TaskType:     TaskTypeTicketEvent,
		EventPayload: payload,
		EnqueuedAt:   p.now().UTC(),
		TraceID:      traceID,
	})
	if err != nil {
		return "", fmt.Errorf("enqueue ticket event: %w", err)
	}

	p.logger.InfoContext(ctx, "enqueued ticket event",
		"message_id", id,
		"payload_bytes", len(payload))
	return id, nil
}

func (p *redisProducer) add(ctx context.Context, msg Message) (string, error) {
	return p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: messageValues(msg, 1),
	}).Result()
}

func (p *redisProducer) Close() error {
	return p.client.Close()
}
