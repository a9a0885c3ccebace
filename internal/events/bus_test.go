package events

import (
	"testing"
)

func TestBus_EmitDeliversInOrder(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var got []EventType
	bus.Subscribe(func(e Event) {
		got = append(got, e.Type)
	})

	bus.Emit(NewEvent(RunStarted, ""))
	bus.Emit(NewEvent(TargetRunning, "json4s"))
	bus.Emit(NewEvent(RunCompleted, ""))

	want := []EventType{RunStarted, TargetRunning, RunCompleted}
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestBus_EmitStampsTime(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var stamped bool
	bus.Subscribe(func(e Event) {
		stamped = !e.Time.IsZero()
	})

	bus.Emit(NewEvent(RunStarted, ""))
	if !stamped {
		t.Error("expected Emit to set the event time")
	}
}

func TestBus_EmitAfterCloseIsDropped(t *testing.T) {
	bus := NewBus()

	var count int
	bus.Subscribe(func(Event) { count++ })

	bus.Emit(NewEvent(RunStarted, ""))
	bus.Close()
	bus.Emit(NewEvent(RunCompleted, ""))

	if count != 1 {
		t.Errorf("expected 1 delivered event, got %d", count)
	}
}

func TestBus_NilHandlerIgnored(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	bus.Subscribe(nil)

	// Should not panic
	bus.Emit(NewEvent(RunStarted, ""))
}
