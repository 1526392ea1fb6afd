package workerpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunAllItems(t *testing.T) {
	items := make([]int, 100)
	for i := range items {
		items[i] = i
	}

	var sum atomic.Int64
	errs := Run(context.Background(), Options{}, items, func(_ context.Context, _ int, item int) error {
		sum.Add(int64(item))
		return nil
	})

	if len(errs) != len(items) {
		t.Fatalf("len(errs) = %d, want %d", len(errs), len(items))
	}
	if got := Failed(errs); len(got) != 0 {
		t.Errorf("unexpected failures: %v", got)
	}
	if sum.Load() != 4950 {
		t.Errorf("sum = %d, want 4950", sum.Load())
	}
}

func TestRunIsolatesErrors(t *testing.T) {
	boom := errors.New("boom")
	var ran atomic.Int32

	errs := Run(context.Background(), Options{Limit: 2}, []string{"a", "fail", "b", "c"}, func(_ context.Context, _ int, item string) error {
		ran.Add(1)
		if item == "fail" {
			return boom
		}
		return nil
	})

	if ran.Load() != 4 {
		t.Errorf("ran %d tasks, want 4", ran.Load())
	}
	if !errors.Is(errs[1], boom) {
		t.Errorf("errs[1] = %v, want boom", errs[1])
	}
	for _, i := range []int{0, 2, 3} {
		if errs[i] != nil {
			t.Errorf("errs[%d] = %v, want nil", i, errs[i])
		}
	}
}

func TestRunRespectsLimit(t *testing.T) {
	const limit = 3
	var running, peak atomic.Int32

	items := make([]struct{}, 20)
	Run(context.Background(), Options{Limit: limit}, items, func(context.Context, int, struct{}) error {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		running.Add(-1)
		return nil
	})

	if peak.Load() > limit {
		t.Errorf("peak concurrency %d exceeds limit %d", peak.Load(), limit)
	}
}

func TestRunStopHaltsDispatch(t *testing.T) {
	var stop atomic.Bool
	var mu sync.Mutex
	var seen []int

	errs := Run(context.Background(), Options{Limit: 1, Stop: stop.Load}, []int{0, 1, 2, 3, 4}, func(_ context.Context, i int, _ int) error {
		mu.Lock()
		seen = append(seen, i)
		mu.Unlock()
		if i == 1 {
			stop.Store(true)
		}
		return nil
	})

	// With a limit of one, item 2 can only be dispatched after item 1 returned.
	for i := 2; i < 5; i++ {
		if !errors.Is(errs[i], ErrNotDispatched) {
			t.Errorf("errs[%d] = %v, want ErrNotDispatched", i, errs[i])
		}
	}
	if errs[0] != nil || errs[1] != nil {
		t.Errorf("dispatched tasks should succeed: %v %v", errs[0], errs[1])
	}
	if len(seen) != 2 {
		t.Errorf("ran %v, want [0 1]", seen)
	}
}

func TestRunConsultsStopWithFreeSlot(t *testing.T) {
	const limit = 2
	var running atomic.Int32
	var calls, busy atomic.Int32

	stop := func() bool {
		calls.Add(1)
		if running.Load() >= limit {
			busy.Add(1)
		}
		return false
	}
	items := make([]int, 12)
	errs := Run(context.Background(), Options{Limit: limit, Stop: stop}, items, func(_ context.Context, _ int, _ int) error {
		running.Add(1)
		defer running.Add(-1)
		time.Sleep(2 * time.Millisecond)
		return nil
	})

	if n := len(Failed(errs)); n != 0 {
		t.Fatalf("%d tasks failed", n)
	}
	if got := calls.Load(); got != int32(len(items)) {
		t.Errorf("Stop consulted %d times, want %d", got, len(items))
	}
	if got := busy.Load(); got != 0 {
		t.Errorf("Stop consulted %d times while every slot was taken", got)
	}
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	errs := Run(ctx, Options{}, []int{1, 2}, func(context.Context, int, int) error {
		t.Error("task should not run")
		return nil
	})
	for i, err := range errs {
		if !errors.Is(err, ErrNotDispatched) {
			t.Errorf("errs[%d] = %v, want ErrNotDispatched", i, err)
		}
	}
}

func TestRunRecoversPanics(t *testing.T) {
	errs := Run(context.Background(), Options{}, []int{1}, func(context.Context, int, int) error {
		panic("kaboom")
	})
	if errs[0] == nil {
		t.Fatal("panic should be reported as an error")
	}
}

func TestRunOnDispatched(t *testing.T) {
	release := make(chan struct{})
	var dispatched atomic.Bool

	go func() {
		for !dispatched.Load() {
			time.Sleep(time.Millisecond)
		}
		close(release)
	}()

	errs := Run(context.Background(), Options{
		OnDispatched: func() { dispatched.Store(true) },
	}, []int{1, 2, 3}, func(context.Context, int, int) error {
		<-release
		return nil
	})
	if len(Failed(errs)) != 0 {
		t.Fatalf("unexpected failures: %v", Failed(errs))
	}
	if !dispatched.Load() {
		t.Error("OnDispatched was not called")
	}
}
