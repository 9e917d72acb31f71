package naming

import (
	"context"
	"sync"
	"time"
)

const (
	defaultDebounce = 500 * time.Millisecond
	minCheckLength  = 3
)

// Debouncer serializes keystroke-level registry lookups. Inputs below
// the minimum name length never reach the registries, and only the
// result for the most recent input may be delivered: superseded
// in-flight lookups are discarded on arrival by a sequence guard, since
// the registry clients are not assumed cancellable.
type Debouncer[T any] struct {
	debounce time.Duration

	mu    sync.Mutex
	seq   uint64
	timer *time.Timer
}

func NewDebouncer[T any](debounce time.Duration) *Debouncer[T] {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &Debouncer[T]{debounce: debounce}
}

// Update registers a new input value. Once the debounce window expires,
// run is invoked with the normalized name and its result handed to
// deliver, unless the input is superseded first.
func (d *Debouncer[T]) Update(
	ctx context.Context,
	input string,
	run func(ctx context.Context, name string) (T, error),
	deliver func(name string, v T, err error),
) {
	name := Normalize(input)

	d.mu.Lock()
	d.seq++
	current := d.seq
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if len(name) < minCheckLength {
		d.mu.Unlock()
		return
	}
	d.timer = time.AfterFunc(d.debounce, func() {
		if !d.isCurrent(current) {
			return
		}
		v, err := run(ctx, name)
		if !d.isCurrent(current) {
			return
		}
		deliver(name, v, err)
	})
	d.mu.Unlock()
}

// Cancel drops any pending lookup, releasing its timer.
func (d *Debouncer[T]) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (d *Debouncer[T]) isCurrent(seq uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seq == seq
}

// CheckFunc is the joint availability check, normally Resolver.CheckBoth.
type CheckFunc func(ctx context.Context, username string) (Availability, error)

// AvailabilityChecker debounces per-keystroke availability checks.
type AvailabilityChecker struct {
	check CheckFunc
	deb   *Debouncer[Availability]
}

func NewAvailabilityChecker(check CheckFunc, debounce time.Duration) *AvailabilityChecker {
	return &AvailabilityChecker{
		check: check,
		deb:   NewDebouncer[Availability](debounce),
	}
}

// Update registers a new input value. deliver is invoked with the
// normalized name and the check outcome unless the input is superseded
// first.
func (c *AvailabilityChecker) Update(ctx context.Context, input string, deliver func(name string, avail Availability, err error)) {
	c.deb.Update(ctx, input, c.check, deliver)
}

// Cancel drops any pending check, releasing its timer.
func (c *AvailabilityChecker) Cancel() {
	c.deb.Cancel()
}
