package runner

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// VUState is the lifecycle state of a virtual user.
type VUState int

const (
	VURunning VUState = iota
	VUStopping
	VUStopped
)

func (s VUState) String() string {
	switch s {
	case VURunning:
		return "running"
	case VUStopping:
		return "stopping"
	case VUStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// VirtualUser is one simulated client. The Manager owns it.
type VirtualUser struct {
	ID        int
	StartTime time.Time

	scenario Scenario
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}

	mu    sync.Mutex
	state VUState
}

func newVirtualUser(parent context.Context, id int, scenario Scenario) *VirtualUser {
	ctx, cancel := context.WithCancel(parent)
	return &VirtualUser{
		ID:        id,
		StartTime: time.Now(),
		scenario:  scenario,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// State returns the current state.
func (v *VirtualUser) State() VUState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// stop asks the VU to finish. Safe to call more than once.
func (v *VirtualUser) stop() {
	v.mu.Lock()
	if v.state == VURunning {
		v.state = VUStopping
	}
	v.mu.Unlock()
	v.cancel()
}

func (v *VirtualUser) markStopped() {
	v.mu.Lock()
	v.state = VUStopped
	v.mu.Unlock()
	close(v.done)
}

// PanicError wraps a value recovered from a panicking iteration.
type PanicError struct {
	VU    int
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("vu %d panicked: %v", e.VU, e.Value)
}
