// Package events provides a small named-topic publish/subscribe bus used
// to break the cyclic reference between the queue, the dead letter office
// and the CTO-Agent: the queue publishes to "dlo.capture" instead of
// importing the DLO, the health monitor publishes to "health.alert"
// instead of importing the CTO-Agent, and so on. Handlers run
// synchronously on the publisher's goroutine, each in a recovered call,
// so a panicking subscriber never takes down the publisher.
package events

import (
	"sync"

	applog "github.com/cellbridge/sms-bridge/pkg/log"
)

// Handler receives one published event. Handlers must treat payload as
// read-only; the bus does not clone it between subscribers.
type Handler func(payload any)

// Bus is a process-local, in-memory pub/sub bus keyed by topic name.
type Bus struct {
	mu   sync.RWMutex
	subs map[string][]Handler
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[string][]Handler)}
}

// Subscribe registers handler to run whenever topic is published.
func (b *Bus) Subscribe(topic string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[topic] = append(b.subs[topic], handler)
}

// Publish invokes every handler subscribed to topic synchronously, in a
// recovered call so one panicking subscriber cannot affect the publisher
// or the other subscribers.
func (b *Bus) Publish(topic string, payload any) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.subs[topic]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		func(h Handler) {
			defer func() {
				if r := recover(); r != nil {
					applog.WithComponentAndFields("events", applog.Fields{
						"topic": topic,
						"panic": r,
					}).Error("event subscriber panicked")
				}
			}()
			h(payload)
		}(h)
	}
}
