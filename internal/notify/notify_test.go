package notify

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestNoop_SubscribeClosesWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := Noop{}.Subscribe(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := (Noop{}).Publish(ctx, "echo"); err != nil {
		t.Errorf("Publish returned %v", err)
	}

	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected closed channel, got a value")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestForward_CoalescesWhenFull(t *testing.T) {
	in := make(chan *redis.Message, 3)
	out := make(chan string, 1)

	in <- &redis.Message{Channel: Channel, Payload: "echo"}
	in <- &redis.Message{Channel: Channel, Payload: "create_file"}
	in <- &redis.Message{Channel: Channel, Payload: "delete_file"}
	close(in)

	forward(context.Background(), in, out)

	got, ok := <-out
	if !ok || got != "echo" {
		t.Errorf("got %q (ok=%v), want first payload", got, ok)
	}
	if _, ok := <-out; ok {
		t.Error("expected later notifications to be dropped and out closed")
	}
}

func TestForward_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	in := make(chan *redis.Message)
	out := make(chan string, 1)

	done := make(chan struct{})
	go func() {
		forward(ctx, in, out)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("forward did not stop after cancel")
	}
}

func TestNewRedis_BadURL(t *testing.T) {
	if _, err := NewRedis(context.Background(), "not-a-url", nil); err == nil {
		t.Error("expected error for invalid url")
	}
}

// TestRedis_RoundTrip needs a live server, e.g. REDIS_URL=redis://localhost:6379/0.
func TestRedis_RoundTrip(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	r, err := NewRedis(ctx, url, nil)
	if err != nil {
		t.Fatalf("NewRedis failed: %v", err)
	}
	defer r.Close()

	ch, err := r.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if err := r.Publish(ctx, "echo"); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case got := <-ch:
		if got != "echo" {
			t.Errorf("got %q, want echo", got)
		}
	case <-ctx.Done():
		t.Fatal("no notification received")
	}
}
