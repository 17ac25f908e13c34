// ABOUTME: Single-slot handoff of decoded samples to the application
// ABOUTME: A new event replaces one the application has not yet taken
package rx

import (
	"context"
	"sync/atomic"

	"github.com/Resonate-Protocol/spdif-go/pkg/spdif"
)

// Mailbox holds at most one pending event. It has a single producer.
type Mailbox struct {
	slot        chan spdif.Event
	overwritten atomic.Uint64
}

func NewMailbox() *Mailbox {
	return &Mailbox{slot: make(chan spdif.Event, 1)}
}

// Put stores e, discarding any event still pending.
func (m *Mailbox) Put(e spdif.Event) {
	select {
	case m.slot <- e:
		return
	default:
	}
	select {
	case <-m.slot:
		m.overwritten.Add(1)
	default:
	}
	m.slot <- e
}

// Ready is readable exactly when an event is pending. Receiving from it
// takes the event.
func (m *Mailbox) Ready() <-chan spdif.Event {
	return m.slot
}

// Poll takes the pending event without blocking.
func (m *Mailbox) Poll() (spdif.Event, bool) {
	select {
	case e := <-m.slot:
		return e, true
	default:
		return spdif.Event{}, false
	}
}

// Wait blocks until an event is pending or ctx is done.
func (m *Mailbox) Wait(ctx context.Context) (spdif.Event, error) {
	select {
	case e := <-m.slot:
		return e, nil
	case <-ctx.Done():
		return spdif.Event{}, ctx.Err()
	}
}

// Overwritten returns the number of events replaced before being taken.
func (m *Mailbox) Overwritten() uint64 {
	return m.overwritten.Load()
}
