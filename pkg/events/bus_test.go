package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublishFansOutInOrder(t *testing.T) {
	bus := NewBus()

	var order []string
	bus.Subscribe(TopicOK, func(topic string, payload interface{}) {
		order = append(order, "first:"+payload.(string))
	})
	bus.Subscribe(TopicOK, func(topic string, payload interface{}) {
		order = append(order, "second:"+payload.(string))
	})

	bus.Publish(TopicOK, "event")

	assert.Equal(t, []string{"first:event", "second:event"}, order)
}

func TestPublishOnlyMatchingTopic(t *testing.T) {
	bus := NewBus()

	var got int
	bus.Subscribe(TopicMismatch, func(string, interface{}) { got++ })

	bus.Publish(TopicOK, nil)
	bus.Publish(TopicError, nil)
	assert.Zero(t, got)

	bus.Publish(TopicMismatch, nil)
	assert.Equal(t, 1, got)
}

func TestPublishSurvivesPanickingSubscriber(t *testing.T) {
	bus := NewBus()

	var reached bool
	bus.Subscribe(TopicError, func(string, interface{}) { panic("bad subscriber") })
	bus.Subscribe(TopicError, func(string, interface{}) { reached = true })

	assert.NotPanics(t, func() { bus.Publish(TopicError, nil) })
	assert.True(t, reached)
}

func TestPublishWithoutSubscribers(t *testing.T) {
	bus := NewBus()
	assert.NotPanics(t, func() { bus.Publish(TopicOK, "ignored") })
}

func TestSubscribeNilIgnored(t *testing.T) {
	bus := NewBus()
	bus.Subscribe(TopicOK, nil)
	assert.NotPanics(t, func() { bus.Publish(TopicOK, nil) })
}
