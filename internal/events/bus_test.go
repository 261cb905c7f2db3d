package events_test

import (
	"sync"
	"testing"

	"github.com/cellbridge/sms-bridge/internal/events"
	"github.com/stretchr/testify/assert"
)

func TestPublishInvokesAllSubscribers(t *testing.T) {
	bus := events.New()

	var mu sync.Mutex
	var received []int

	bus.Subscribe("dlo.capture", func(payload any) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, payload.(int))
	})
	bus.Subscribe("dlo.capture", func(payload any) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, payload.(int)*10)
	})

	bus.Publish("dlo.capture", 7)

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []int{7, 70}, received)
}

func TestPublishIsolatesPanickingSubscriber(t *testing.T) {
	bus := events.New()

	called := false
	bus.Subscribe("health.alert", func(payload any) {
		panic("boom")
	})
	bus.Subscribe("health.alert", func(payload any) {
		called = true
	})

	assert.NotPanics(t, func() {
		bus.Publish("health.alert", "alert-payload")
	})
	assert.True(t, called)
}

func TestPublishUnknownTopicIsNoop(t *testing.T) {
	bus := events.New()
	assert.NotPanics(t, func() {
		bus.Publish("nothing.subscribed", nil)
	})
}
