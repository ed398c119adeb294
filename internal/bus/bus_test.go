package bus

import (
	"reflect"
	"testing"
)

func TestTypedDelivery(t *testing.T) {
	b := New()
	var got []string
	b.Subscribe(SessionCreated, func(ev Event) {
		got = append(got, ev.Payload["id"].(string))
	})
	b.Subscribe(SessionDeleted, func(ev Event) {
		t.Error("wrong topic delivered")
	})

	b.Publish(SessionCreated, map[string]any{"id": "ses_1"})
	b.Publish(SessionCreated, map[string]any{"id": "ses_2"})

	if want := []string{"ses_1", "ses_2"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestTypedBeforeFirehose(t *testing.T) {
	b := New()
	var order []string
	b.SubscribeAll(func(ev Event) { order = append(order, "all") })
	b.Subscribe(PartUpdated, func(ev Event) { order = append(order, "typed") })

	b.Publish(PartUpdated, nil)

	if want := []string{"typed", "all"}; !reflect.DeepEqual(order, want) {
		t.Fatalf("delivery order %v, want %v", order, want)
	}
}

func TestPanickingHandlerIsSkipped(t *testing.T) {
	b := New()
	var delivered bool
	b.Subscribe(MessageUpdated, func(Event) { panic("boom") })
	b.Subscribe(MessageUpdated, func(Event) { delivered = true })

	b.Publish(MessageUpdated, nil)

	if !delivered {
		t.Fatal("publish aborted after a handler panicked")
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	var count int
	unsub := b.Subscribe(StepStarted, func(Event) { count++ })

	b.Publish(StepStarted, nil)
	unsub()
	b.Publish(StepStarted, nil)

	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
}

func TestClear(t *testing.T) {
	b := New()
	var count int
	b.Subscribe(StepStarted, func(Event) { count++ })
	b.SubscribeAll(func(Event) { count++ })

	b.Clear()
	b.Publish(StepStarted, nil)

	if count != 0 {
		t.Fatalf("count = %d after Clear, want 0", count)
	}
}

func TestFirehoseSeesAllTypes(t *testing.T) {
	b := New()
	var types []string
	b.SubscribeAll(func(ev Event) { types = append(types, ev.Type) })

	b.Publish(StepStarted, nil)
	b.Publish(ToolStateChanged, nil)
	b.Publish(StepFinished, nil)

	want := []string{StepStarted, ToolStateChanged, StepFinished}
	if !reflect.DeepEqual(types, want) {
		t.Fatalf("got %v, want %v", types, want)
	}
}
