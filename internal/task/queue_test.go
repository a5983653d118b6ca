package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestDispatchDeliversEachJobOnce(t *testing.T) {
	var mu sync.Mutex
	counts := make(map[string]int)

	q := NewQueue(32, func(ctx context.Context, job Job) error {
		mu.Lock()
		counts[job.Token]++
		mu.Unlock()
		return nil
	}, zerolog.Nop())

	q.Start(context.Background(), 4)

	for i := 0; i < 20; i++ {
		if err := q.Dispatch(Job{Token: fmt.Sprintf("job-%d", i)}); err != nil {
			t.Fatalf("Dispatch failed: %v", err)
		}
	}
	q.Shutdown()

	mu.Lock()
	defer mu.Unlock()
	if len(counts) != 20 {
		t.Fatalf("Expected 20 distinct jobs handled, got %d", len(counts))
	}
	for token, n := range counts {
		if n != 1 {
			t.Errorf("Job %s handled %d times, want exactly once", token, n)
		}
	}
}

func TestDispatchQueueFull(t *testing.T) {
	block := make(chan struct{})
	q := NewQueue(1, func(ctx context.Context, job Job) error {
		<-block
		return nil
	}, zerolog.Nop())
	q.Start(context.Background(), 1)
	defer func() {
		close(block)
		q.Shutdown()
	}()

	// First job occupies the worker, second fills the buffer; give the
	// worker a moment to pick up the first.
	if err := q.Dispatch(Job{Token: "a"}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	if err := q.Dispatch(Job{Token: "b"}); err != nil {
		t.Fatal(err)
	}

	if err := q.Dispatch(Job{Token: "c"}); !errors.Is(err, ErrQueueFull) {
		t.Errorf("Expected ErrQueueFull, got %v", err)
	}
}

func TestDispatchAfterShutdown(t *testing.T) {
	q := NewQueue(1, func(ctx context.Context, job Job) error { return nil }, zerolog.Nop())
	q.Start(context.Background(), 1)
	q.Shutdown()

	if err := q.Dispatch(Job{Token: "late"}); err == nil {
		t.Error("Dispatch after shutdown must fail")
	}
}

func TestHandlerErrorDoesNotStopWorkers(t *testing.T) {
	var mu sync.Mutex
	var handled []string

	q := NewQueue(8, func(ctx context.Context, job Job) error {
		mu.Lock()
		handled = append(handled, job.Token)
		mu.Unlock()
		if job.Token == "bad" {
			return errors.New("boom")
		}
		return nil
	}, zerolog.Nop())
	q.Start(context.Background(), 1)

	q.Dispatch(Job{Token: "bad"})
	q.Dispatch(Job{Token: "good"})
	q.Shutdown()

	mu.Lock()
	defer mu.Unlock()
	if len(handled) != 2 {
		t.Errorf("Expected both jobs handled, got %v", handled)
	}
}
