package poll

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
)

func TestUntilCompletes(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	var checks int32
	result := make(chan error, 1)
	go func() {
		result <- Until(context.Background(), Config{Interval: time.Minute, Timeout: time.Hour, Clock: clk},
			func(context.Context) (bool, error) {
				return atomic.AddInt32(&checks, 1) == 3, nil
			})
	}()

	for i := 0; i < 2; i++ {
		if err := clk.WaitAdvance(time.Minute, time.Second, 1); err != nil {
			t.Fatalf("WaitAdvance failed: %v", err)
		}
	}

	select {
	case err := <-result:
		if err != nil {
			t.Fatalf("Expected success, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Until did not return")
	}
	if got := atomic.LoadInt32(&checks); got != 3 {
		t.Errorf("Expected 3 checks, got %d", got)
	}
}

func TestUntilTimesOut(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	var checks int32
	result := make(chan error, 1)
	go func() {
		result <- Until(context.Background(), Config{Interval: 10 * time.Second, Timeout: 25 * time.Second, Clock: clk},
			func(context.Context) (bool, error) {
				atomic.AddInt32(&checks, 1)
				return false, nil
			})
	}()

	for _, d := range []time.Duration{10 * time.Second, 10 * time.Second, 5 * time.Second} {
		if err := clk.WaitAdvance(d, time.Second, 1); err != nil {
			t.Fatalf("WaitAdvance failed: %v", err)
		}
	}

	select {
	case err := <-result:
		if !errors.Is(err, ErrTimeout) {
			t.Fatalf("Expected ErrTimeout, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Until did not return")
	}
	if got := atomic.LoadInt32(&checks); got != 4 {
		t.Errorf("Expected 4 checks, got %d", got)
	}
}

func TestUntilCheckError(t *testing.T) {
	boom := errors.New("replication failed")
	err := Until(context.Background(), Config{Clock: testclock.NewClock(time.Now())},
		func(context.Context) (bool, error) { return false, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("Expected check error, got %v", err)
	}
}

func TestUntilCancelled(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() {
		result <- Until(ctx, Config{Interval: time.Minute, Clock: clk},
			func(context.Context) (bool, error) { return false, nil })
	}()

	// Wait for the loop to block on the clock before cancelling.
	select {
	case <-clk.Alarms():
	case <-time.After(5 * time.Second):
		t.Fatal("poll loop never waited on the clock")
	}
	cancel()

	select {
	case err := <-result:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Until did not return after cancel")
	}
}
