package exam

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type countingViolator struct {
	mu      sync.Mutex
	armed   bool
	signals []Signal
}

func (v *countingViolator) Violate(sig Signal) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.signals = append(v.signals, sig)
	if !v.armed {
		return false
	}
	v.armed = false
	return true
}

func (v *countingViolator) seen() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.signals)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestMonitorFansInBothSignals(t *testing.T) {
	target := &countingViolator{armed: true}
	var fired atomic.Int32
	m := NewMonitor(target, func(Signal) { fired.Add(1) })
	defer m.Stop()

	visibility := make(chan Signal)
	blur := make(chan Signal)
	m.Subscribe(context.Background(), visibility)
	m.Subscribe(context.Background(), blur)

	blur <- SignalWindowBlur
	visibility <- SignalVisibilityHidden

	waitFor(t, func() bool { return target.seen() == 2 })
	if n := fired.Load(); n != 1 {
		t.Errorf("onViolation fired %d times, want 1", n)
	}
}

func TestMonitorSubscriptionsCancelIndependently(t *testing.T) {
	target := &countingViolator{}
	m := NewMonitor(target, nil)
	defer m.Stop()

	a := make(chan Signal, 1)
	b := make(chan Signal, 1)
	cancelA := m.Subscribe(context.Background(), a)
	m.Subscribe(context.Background(), b)

	if m.Active() != 2 {
		t.Fatalf("active = %d, want 2", m.Active())
	}

	cancelA()
	waitFor(t, func() bool { return m.Active() == 1 })

	b <- SignalWindowBlur
	waitFor(t, func() bool { return target.seen() == 1 })
}

func TestMonitorStopsOnClosedSource(t *testing.T) {
	m := NewMonitor(&countingViolator{}, nil)
	src := make(chan Signal)
	m.Subscribe(context.Background(), src)
	close(src)

	waitFor(t, func() bool { return m.Active() == 0 })
	m.Stop()
}

func TestMonitorDrivesSession(t *testing.T) {
	h := newHarness(t, activeExam(testToken), nil)
	h.start(t)

	ended := make(chan Signal, 1)
	m := NewMonitor(h.s, func(sig Signal) { ended <- sig })
	defer m.Stop()

	signals := make(chan Signal)
	m.Subscribe(context.Background(), signals)
	signals <- SignalVisibilityHidden

	select {
	case sig := <-ended:
		if sig != SignalVisibilityHidden {
			t.Errorf("signal = %s", sig)
		}
	case <-time.After(time.Second):
		t.Fatal("violation not propagated")
	}
	if st := h.s.State(); st != StateSubmitted {
		t.Errorf("state = %s, want SUBMITTED", st)
	}
}
