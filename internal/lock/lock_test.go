package lock

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestMemoryExclusive(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	release, err := m.Acquire(ctx, "ingest:u1")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := m.Acquire(ctx, "ingest:u1"); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	other, err := m.Acquire(ctx, "ingest:u2")
	if err != nil {
		t.Fatalf("other key should be free: %v", err)
	}
	other()

	release()
	release()
	again, err := m.Acquire(ctx, "ingest:u1")
	if err != nil {
		t.Fatalf("re-acquire after release: %v", err)
	}
	again()
}

func TestMemoryConcurrentSingleWinner(t *testing.T) {
	m := NewMemory()
	var winners atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := m.Acquire(context.Background(), "k"); err == nil {
				winners.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()
	if winners.Load() != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners.Load())
	}
}

func TestRedisLock(t *testing.T) {
	url := os.Getenv("OMNISTOCK_TEST_REDIS_URL")
	if url == "" {
		t.Skip("OMNISTOCK_TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	client, err := DialRedis(ctx, url)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	l := NewRedis(client, time.Minute, logrus.New())
	key := "test:" + time.Now().Format("150405.000000")
	release, err := l.Acquire(ctx, key)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := l.Acquire(ctx, key); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	release()
	again, err := l.Acquire(ctx, key)
	if err != nil {
		t.Fatalf("re-acquire: %v", err)
	}
	again()
}
