package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/shadowgate/pkg/config"
	"github.com/noah-isme/shadowgate/pkg/events"
)

// RedisSink forwards shadow report events to a Redis pub/sub channel so
// consumers outside the process (alerting, dashboards) can subscribe. It is
// a reference consumer of the event bus contract, not part of the core
// pipeline; publish failures are logged and dropped.
type RedisSink struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// NewRedisSink connects to Redis and verifies the connection with a ping.
func NewRedisSink(cfg config.RedisConfig, channel string, logger *zap.Logger) (*RedisSink, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return &RedisSink{client: client, channel: channel, logger: logger}, nil
}

// Attach subscribes the sink to all three report topics on the bus.
func (s *RedisSink) Attach(bus *events.Bus) {
	for _, topic := range []string{events.TopicOK, events.TopicMismatch, events.TopicError} {
		bus.Subscribe(topic, s.forward)
	}
}

// Close releases the Redis connection.
func (s *RedisSink) Close() error {
	return s.client.Close()
}

func (s *RedisSink) forward(topic string, payload interface{}) {
	data, err := json.Marshal(map[string]interface{}{
		"topic": topic,
		"event": payload,
	})
	if err != nil {
		s.logger.Sugar().Errorw("failed to encode shadow event", "topic", topic, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := s.client.Publish(ctx, s.channel, data).Err(); err != nil {
		s.logger.Sugar().Errorw("failed to publish shadow event", "topic", topic, "error", err)
	}
}
