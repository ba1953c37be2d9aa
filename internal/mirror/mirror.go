// Package mirror copies room-wide coordinator events to Redis Pub/Sub so that
// processes outside the coordinator (dashboards, spectators, recorders) can follow
// a room. It is a one-way feed: nothing read from Redis ever changes room state.
package mirror

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"devsync/internal/protocol"
)

// Channel returns the Pub/Sub channel for roomID.
func Channel(prefix, roomID string) string {
	return prefix + roomID
}

type publishClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

type message struct {
	channel string
	payload []byte
}

// Publisher queues events without blocking the caller and publishes them from Run.
// Events are dropped when the queue is full.
type Publisher struct {
	client publishClient
	prefix string
	log    *zap.Logger
	queue  chan message
}

func NewPublisher(client publishClient, prefix string, buffer int, log *zap.Logger) *Publisher {
	return &Publisher{
		client: client,
		prefix: prefix,
		log:    log,
		queue:  make(chan message, buffer),
	}
}

// Publish implements coordinator.Sink.
func (p *Publisher) Publish(roomID string, ev protocol.ServerEvent) {
	payload, err := protocol.EncodeServerEvent(ev)
	if err != nil {
		p.log.Error("encode mirrored event", zap.String("room", roomID), zap.Error(err))
		return
	}
	select {
	case p.queue <- message{channel: Channel(p.prefix, roomID), payload: payload}:
	default:
		p.log.Warn("mirror queue full, dropping event", zap.String("room", roomID), zap.String("event", ev.EventName()))
	}
}

// Run publishes queued events until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-p.queue:
			pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			err := p.client.Publish(pctx, m.channel, m.payload).Err()
			cancel()
			if err != nil {
				p.log.Warn("publish to redis", zap.String("channel", m.channel), zap.Error(err))
			}
		}
	}
}
