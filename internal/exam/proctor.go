package exam

import (
	"context"
	"sync"
)

// Signal is a client-side focus event that counts as leaving the exam.
type Signal string

const (
	SignalVisibilityHidden Signal = "visibility_hidden"
	SignalWindowBlur       Signal = "window_blur"
)

// Violator receives proctoring signals. It reports whether the signal
// ended the attempt.
type Violator interface {
	Violate(sig Signal) bool
}

// Monitor fans focus signals from any number of sources into a single
// violation target. Each source is an independent subscription that can
// be cancelled on its own; the target decides whether proctoring is armed.
type Monitor struct {
	target      Violator
	onViolation func(Signal)

	mu      sync.Mutex
	wg      sync.WaitGroup
	cancels map[int]context.CancelFunc
	next    int
	tripped bool
}

// NewMonitor creates a monitor for target. onViolation runs once, after
// the first signal that ends the attempt.
func NewMonitor(target Violator, onViolation func(Signal)) *Monitor {
	return &Monitor{
		target:      target,
		onViolation: onViolation,
		cancels:     make(map[int]context.CancelFunc),
	}
}

// Subscribe consumes signals until ctx is done, the channel closes or the
// returned cancel func is called.
func (m *Monitor) Subscribe(ctx context.Context, signals <-chan Signal) context.CancelFunc {
	ctx, cancel := context.WithCancel(ctx)

	m.mu.Lock()
	id := m.next
	m.next++
	m.cancels[id] = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.forget(id)
		for {
			select {
			case <-ctx.Done():
				return
			case sig, ok := <-signals:
				if !ok {
					return
				}
				m.handle(sig)
			}
		}
	}()

	return cancel
}

func (m *Monitor) handle(sig Signal) {
	if !m.target.Violate(sig) {
		return
	}
	m.mu.Lock()
	first := !m.tripped
	m.tripped = true
	m.mu.Unlock()
	if first && m.onViolation != nil {
		m.onViolation(sig)
	}
}

func (m *Monitor) forget(id int) {
	m.mu.Lock()
	if cancel, ok := m.cancels[id]; ok {
		cancel()
		delete(m.cancels, id)
	}
	m.mu.Unlock()
}

// Active returns the number of live subscriptions.
func (m *Monitor) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cancels)
}

// Stop cancels every subscription and waits for them to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	for _, cancel := range m.cancels {
		cancel()
	}
	m.mu.Unlock()
	m.wg.Wait()
}
