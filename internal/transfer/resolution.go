package transfer

import (
	"context"
	"time"

	"github.com/aki-0517/metawallet/internal/naming"
)

// DestinationWatcher feeds keystroke-level destination input into the
// router's resolution path. Username-shaped input waits out a debounce
// window before any registry lookup, and only the most recent input's
// resolution may be delivered; raw addresses bind immediately without
// touching the registries.
type DestinationWatcher struct {
	router *Router
	deb    *naming.Debouncer[*Transfer]
}

// NewDestinationWatcher returns a watcher bound to this router.
// A non-positive debounce selects the default window.
func (r *Router) NewDestinationWatcher(debounce time.Duration) *DestinationWatcher {
	return &DestinationWatcher{
		router: r,
		deb:    naming.NewDebouncer[*Transfer](debounce),
	}
}

// Update registers the latest destination input. deliver receives the
// resolved transfer unless a newer input supersedes it first.
func (w *DestinationWatcher) Update(ctx context.Context, req Request, deliver func(*Transfer, error)) {
	if !IsUsername(req.Destination) {
		w.deb.Cancel()
		t := w.router.NewTransfer(req)
		deliver(t, w.router.Resolve(ctx, t))
		return
	}

	w.deb.Update(ctx, req.Destination,
		func(ctx context.Context, name string) (*Transfer, error) {
			t := w.router.NewTransfer(Request{
				Destination: name,
				Amount:      req.Amount,
				Selection:   req.Selection,
			})
			return t, w.router.Resolve(ctx, t)
		},
		func(_ string, t *Transfer, err error) {
			deliver(t, err)
		})
}

// Cancel drops any pending resolution.
func (w *DestinationWatcher) Cancel() {
	w.deb.Cancel()
}
