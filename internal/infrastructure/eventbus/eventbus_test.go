package eventbus

import (
	"testing"
	"time"

	"github.com/doeshing/multiprompt/internal/domain"
)

func receive(t *testing.T, ch <-chan domain.Event) domain.Event {
	t.Helper()
	select {
	case evt := <-ch:
		return evt
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for event")
		return domain.Event{}
	}
}

func TestBus_PublishAndSubscribe(t *testing.T) {
	bus := New()
	all, cancelAll := bus.Subscribe()
	defer cancelAll()
	done, cancelDone := bus.Subscribe(domain.EventResponseDone)
	defer cancelDone()

	bus.Publish(domain.Event{Type: domain.EventResponseDelta, ResponseID: "r1", Delta: "hi"})
	bus.Publish(domain.Event{Type: domain.EventResponseDone, ResponseID: "r1"})

	if evt := receive(t, all); evt.Type != domain.EventResponseDelta || evt.Delta != "hi" {
		t.Errorf("first event = %+v", evt)
	}
	if evt := receive(t, all); evt.Type != domain.EventResponseDone {
		t.Errorf("second event = %+v", evt)
	}
	if evt := receive(t, done); evt.Type != domain.EventResponseDone {
		t.Errorf("filtered subscriber got %+v", evt)
	}
	select {
	case evt := <-done:
		t.Errorf("filtered subscriber got unexpected %+v", evt)
	default:
	}
}

func TestBus_FullBufferDrops(t *testing.T) {
	bus := New()
	ch, cancel := bus.Subscribe()
	defer cancel()

	for i := 0; i < defaultBufferSize+10; i++ {
		bus.Publish(domain.Event{Type: domain.EventResponseDelta})
	}
	if got := len(ch); got != defaultBufferSize {
		t.Errorf("buffered events = %d, want %d", got, defaultBufferSize)
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New()
	ch, cancel := bus.Subscribe()
	cancel()
	cancel()

	if bus.Subscribers() != 0 {
		t.Errorf("Subscribers() = %d after unsubscribe", bus.Subscribers())
	}
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after unsubscribe")
	}
	bus.Publish(domain.Event{Type: domain.EventEntryCreated})
}
