package server

import (
	"sync"
	"time"
)

type heartbeatState int

const (
	stateAlive heartbeatState = iota
	stateAwaitingPong
	stateTerminated
)

func (s heartbeatState) String() string {
	switch s {
	case stateAlive:
		return "alive"
	case stateAwaitingPong:
		return "awaiting_pong"
	case stateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// heartbeat tracks the liveness of one connection. The write pump calls
// pinged after each ping frame, the pong handler calls ponged. If no pong
// arrives within the deadline, onTimeout runs once and the heartbeat becomes
// terminated for good.
type heartbeat struct {
	mu         sync.Mutex
	state      heartbeatState
	deadline   time.Duration
	deathTimer *time.Timer
	cycle      uint64
	onTimeout  func()
}

func newHeartbeat(deadline time.Duration, onTimeout func()) *heartbeat {
	return &heartbeat{
		state:     stateAlive,
		deadline:  deadline,
		onTimeout: onTimeout,
	}
}

// pinged arms the pong deadline. It returns false once terminated.
func (h *heartbeat) pinged() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state == stateTerminated {
		return false
	}
	if h.state == stateAwaitingPong {
		// Still waiting on the previous ping; keep its deadline.
		return true
	}
	h.state = stateAwaitingPong
	h.cycle++
	cycle := h.cycle
	h.deathTimer = time.AfterFunc(h.deadline, func() { h.expire(cycle) })
	return true
}

// ponged cancels the pending deadline.
func (h *heartbeat) ponged() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != stateAwaitingPong {
		return
	}
	h.state = stateAlive
	h.stopTimer()
}

// stop terminates the heartbeat without running onTimeout.
func (h *heartbeat) stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.state = stateTerminated
	h.stopTimer()
}

func (h *heartbeat) current() heartbeatState {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.state
}

// expire ignores timers from earlier cycles whose Stop lost the race.
func (h *heartbeat) expire(cycle uint64) {
	h.mu.Lock()
	if h.state != stateAwaitingPong || h.cycle != cycle {
		h.mu.Unlock()
		return
	}
	h.state = stateTerminated
	h.deathTimer = nil
	h.mu.Unlock()

	if h.onTimeout != nil {
		h.onTimeout()
	}
}

func (h *heartbeat) stopTimer() {
	if h.deathTimer != nil {
		h.deathTimer.Stop()
		h.deathTimer = nil
	}
}
