// Package workerpool runs one task per work item with an optional concurrency
// bound and a join barrier. A failing task never cancels its siblings.
package workerpool

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// ErrNotDispatched marks items that were never started because Stop returned
// true or the context was cancelled.
var ErrNotDispatched = errors.New("task not dispatched")

// Options controls dispatch.
type Options struct {
	// Limit bounds the number of tasks running at once. Zero or negative means unbounded.
	Limit int
	// Stop is consulted before each dispatch. Tasks already started are unaffected.
	Stop func() bool
	// OnDispatched runs once dispatch has ended, before waiting for running tasks.
	OnDispatched func()
}

// Func processes one item. index is the item's position in the input slice.
type Func[T any] func(ctx context.Context, index int, item T) error

// Run starts fn for every item and waits for all started tasks to return.
// The returned slice is index-aligned with items; nil means success.
// A panicking task is reported as that item's error.
func Run[T any](ctx context.Context, opts Options, items []T, fn Func[T]) []error {
	errs := make([]error, len(items))

	var g errgroup.Group
	var slots chan struct{}
	if opts.Limit > 0 {
		slots = make(chan struct{}, opts.Limit)
	}

	for i, item := range items {
		// Take a slot before consulting Stop so a bounded pool sees the
		// outcome of the tasks it waited for.
		if slots != nil {
			select {
			case slots <- struct{}{}:
			case <-ctx.Done():
			}
		}
		if ctx.Err() != nil || (opts.Stop != nil && opts.Stop()) {
			if slots != nil && ctx.Err() == nil {
				<-slots
			}
			for j := i; j < len(items); j++ {
				errs[j] = ErrNotDispatched
			}
			break
		}

		g.Go(func() error {
			defer func() {
				if slots != nil {
					<-slots
				}
			}()
			defer func() {
				if r := recover(); r != nil {
					errs[i] = fmt.Errorf("task %d panicked: %v", i, r)
				}
			}()
			errs[i] = fn(ctx, i, item)
			return nil
		})
	}

	if opts.OnDispatched != nil {
		opts.OnDispatched()
	}
	_ = g.Wait()
	return errs
}

// Failed returns the non-nil errors from a Run result.
func Failed(errs []error) []error {
	var out []error
	for _, err := range errs {
		if err != nil {
			out = append(out, err)
		}
	}
	return out
}
