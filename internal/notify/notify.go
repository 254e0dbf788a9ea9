// Package notify carries advisory "work is ready" signals between the
// processes sharing one queue. A lost signal only delays a worker until its
// next poll.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Channel is the Redis pub/sub channel for ready notifications.
const Channel = "jobqueue:ready"

// Notifier publishes and receives ready notifications.
type Notifier interface {
	Publish(ctx context.Context, jobType string) error
	// Subscribe returns a channel that yields the job type of each
	// notification. It is closed when ctx is done.
	Subscribe(ctx context.Context) (<-chan string, error)
	Close() error
}

// Noop is used when no broker is configured.
type Noop struct{}

func (Noop) Publish(ctx context.Context, jobType string) error { return nil }

// Subscribe returns a channel that never yields and closes with ctx.
func (Noop) Subscribe(ctx context.Context) (<-chan string, error) {
	ch := make(chan string)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func (Noop) Close() error { return nil }

// Redis implements Notifier on Redis pub/sub.
type Redis struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedis connects to the server at url (redis://...) and verifies it
// answers a ping.
func NewRedis(ctx context.Context, url string, logger *slog.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{client: client, logger: logger.With("component", "notify")}, nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client *redis.Client, logger *slog.Logger) *Redis {
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{client: client, logger: logger.With("component", "notify")}
}

// Publish announces that a job of jobType is claimable. An empty type means
// "something changed", e.g. after stale claims were reclaimed.
func (r *Redis) Publish(ctx context.Context, jobType string) error {
	if err := r.client.Publish(ctx, Channel, jobType).Err(); err != nil {
		return fmt.Errorf("failed to publish ready notification: %w", err)
	}
	return nil
}

// Subscribe listens on Channel until ctx is done.
func (r *Redis) Subscribe(ctx context.Context) (<-chan string, error) {
	ps := r.client.Subscribe(ctx, Channel)

	// Wait for the subscription confirmation so callers know they will not
	// miss a message published after Subscribe returns.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", Channel, err)
	}

	out := make(chan string, 1)
	go func() {
		defer ps.Close()
		forward(ctx, ps.Channel(), out)
	}()
	return out, nil
}

// Close releases the Redis connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}

// forward copies message payloads from in to out until ctx is done or in
// closes. Notifications are coalesced: when out is full the new one is
// dropped, since the pending one already wakes the reader.
func forward(ctx context.Context, in <-chan *redis.Message, out chan<- string) {
	defer close(out)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			select {
			case out <- msg.Payload:
			default:
			}
		}
	}
}
