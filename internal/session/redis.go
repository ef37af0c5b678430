package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the Redis pub/sub channel carrying session events.
const DefaultChannel = "smart-bookmarks:session-events"

// RedisOptions configures the connection used by the relay.
type RedisOptions struct {
	Addr           string
	Password       string
	DB             int
	ConnectTimeout time.Duration // total time allowed for the initial ping
	RetryInterval  time.Duration // first wait between pings, doubled up to MaxWait
	MaxWait        time.Duration
}

// ConnectRedis creates a client and pings it with exponential backoff until
// it answers or ConnectTimeout elapses.
func ConnectRedis(ctx context.Context, opts RedisOptions, logger *slog.Logger) (*redis.Client, error) {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 30 * time.Second
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = time.Second
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = 10 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()

	wait := opts.RetryInterval
	for attempt := 1; ; attempt++ {
		err := client.Ping(ctx).Err()
		if err == nil {
			logger.Info("connected to redis", slog.String("addr", opts.Addr), slog.Int("attempts", attempt))
			return client, nil
		}

		logger.Warn("redis connection failed, retrying",
			slog.String("addr", opts.Addr),
			slog.Int("attempt", attempt),
			slog.Duration("next_retry_in", wait),
			slog.String("error", err.Error()),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			client.Close()
			return nil, fmt.Errorf("session: redis unavailable at %s after %d attempts: %w", opts.Addr, attempt, err)
		case <-timer.C:
		}

		wait *= 2
		if wait > opts.MaxWait {
			wait = opts.MaxWait
		}
	}
}

// RedisRelay shares session events between server instances. Publish sends
// an event to the channel; Run consumes the channel and hands every event to
// the local hub, including the ones this instance published itself.
type RedisRelay struct {
	client  *redis.Client
	channel string
	hub     *Hub
	logger  *slog.Logger
}

var _ Publisher = (*RedisRelay)(nil)

// NewRedisRelay wires a Redis client to the local hub.
func NewRedisRelay(client *redis.Client, hub *Hub, logger *slog.Logger) *RedisRelay {
	return &RedisRelay{
		client:  client,
		channel: DefaultChannel,
		hub:     hub,
		logger:  logger,
	}
}

// Publish sends ev to every instance subscribed to the channel.
func (r *RedisRelay) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("session: encoding event: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("session: publishing event: %w", err)
	}
	return nil
}

// Run forwards channel messages to the hub until ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	// Wait for the subscription confirmation so events published right after
	// startup are not lost.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("session: subscribing to %s: %w", r.channel, err)
	}

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			r.deliver(ctx, msg.Payload)
		}
	}
}

func (r *RedisRelay) deliver(ctx context.Context, payload string) {
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		r.logger.Warn("ignoring malformed session event", slog.String("error", err.Error()))
		return
	}
	if ev.SessionID == "" || ev.Type == "" {
		r.logger.Warn("ignoring incomplete session event")
		return
	}
	r.hub.Publish(ctx, ev)
}

// Close releases the Redis connection pool.
func (r *RedisRelay) Close() error {
	return r.client.Close()
}
