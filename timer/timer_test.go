package timer

import (
	"testing"
	"time"
)

func TestRunDueFiresInDeadlineOrder(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	m := NewTimerManager(clock)

	var fired []string
	m.AddTimer(3*time.Second, 0, func() { fired = append(fired, "c") })
	m.AddTimer(1*time.Second, 0, func() { fired = append(fired, "a") })
	m.AddTimer(2*time.Second, 0, func() { fired = append(fired, "b") })

	if n := m.RunDue(); n != 0 {
		t.Fatalf("nothing should be due yet, fired %d", n)
	}

	clock.Advance(2 * time.Second)
	if n := m.RunDue(); n != 2 {
		t.Fatalf("expected 2 tasks due, got %d", n)
	}
	clock.Advance(time.Second)
	m.RunDue()

	want := []string{"a", "b", "c"}
	if len(fired) != len(want) {
		t.Fatalf("fired = %v, want %v", fired, want)
	}
	for i := range want {
		if fired[i] != want[i] {
			t.Fatalf("fired = %v, want %v", fired, want)
		}
	}
}

func TestRemoveTimer(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	m := NewTimerManager(clock)

	called := false
	id := m.AddTimer(time.Second, 0, func() { called = true })
	m.RemoveTimer(id)

	clock.Advance(time.Minute)
	m.RunDue()
	if called {
		t.Error("removed timer should not fire")
	}
	if m.Len() != 0 {
		t.Errorf("queue length = %d, want 0", m.Len())
	}
}

func TestIntervalTaskReschedules(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	m := NewTimerManager(clock)

	count := 0
	m.AddTimer(time.Second, time.Second, func() { count++ })
	for i := 0; i < 3; i++ {
		clock.Advance(time.Second)
		m.RunDue()
	}
	if count != 3 {
		t.Errorf("interval task fired %d times, want 3", count)
	}
	if m.Len() != 1 {
		t.Errorf("interval task should stay scheduled, queue length = %d", m.Len())
	}
}

// A callback may schedule another timer without deadlocking.
func TestCallbackCanSchedule(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	m := NewTimerManager(clock)

	m.AddTimer(time.Second, 0, func() {
		m.AddTimer(time.Second, 0, func() {})
	})
	clock.Advance(time.Second)
	m.RunDue()
	if m.Len() != 1 {
		t.Errorf("queue length = %d, want 1", m.Len())
	}
}
