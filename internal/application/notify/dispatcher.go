package notify

import (
	"log/slog"
	"sync"

	"github.com/go-notify-core/internal/domain"
)

// Dispatcher event names. EventReceived fires for realtime-origin receipts,
// EventReceivedLocal for device-level delivery (the OS alert went out),
// EventClicked on tap, EventAction when a tapped notification carries an
// action descriptor.
const (
	EventReceived      = "received"
	EventReceivedLocal = "received_local"
	EventClicked       = "clicked"
	EventAction        = "action"
)

// Subscription identifies one registered listener so it can be removed.
// Go functions are not comparable, so removal is by handle rather than by
// callback identity.
type Subscription struct {
	event string
	id    int
}

type listener struct {
	id int
	fn func(payload interface{})
}

// Dispatcher fans events out to registered listeners. Listeners run in
// insertion order; a panicking listener is recovered and logged so it cannot
// stop the ones behind it.
type Dispatcher struct {
	mu            sync.Mutex
	nextID        int
	listeners     map[string][]listener
	pendingAction *domain.Action
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{listeners: make(map[string][]listener)}
}

// On registers fn for the named event and returns its subscription handle.
func (d *Dispatcher) On(event string, fn func(payload interface{})) Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	d.listeners[event] = append(d.listeners[event], listener{id: d.nextID, fn: fn})
	return Subscription{event: event, id: d.nextID}
}

// Off removes the listener registered under sub. Unknown handles are ignored.
func (d *Dispatcher) Off(sub Subscription) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ls := d.listeners[sub.event]
	for i, l := range ls {
		if l.id == sub.id {
			d.listeners[sub.event] = append(ls[:i:i], ls[i+1:]...)
			return
		}
	}
}

// Emit invokes every listener registered for event, in insertion order.
func (d *Dispatcher) Emit(event string, payload interface{}) {
	d.mu.Lock()
	ls := make([]listener, len(d.listeners[event]))
	copy(ls, d.listeners[event])
	d.mu.Unlock()

	for _, l := range ls {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("notification listener panicked", "event", event, "panic", r)
				}
			}()
			l.fn(payload)
		}()
	}
}

// SetPendingAction stores the most recent unconsumed action so a UI that was
// not listening when the tap happened can still pick it up.
func (d *Dispatcher) SetPendingAction(a domain.Action) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pendingAction = &a
}

// ConsumePendingAction returns the pending action and clears the slot.
// Returns nil when nothing is pending.
func (d *Dispatcher) ConsumePendingAction() *domain.Action {
	d.mu.Lock()
	defer d.mu.Unlock()
	a := d.pendingAction
	d.pendingAction = nil
	return a
}
