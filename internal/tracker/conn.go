package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/ernie/heistwatch/internal/domain"
)

// BanChecker re-validates a ban against the upstream status endpoint.
// The call itself does not change ban state; the collaborator updates
// its own flags, which the tracker observes on the next sync.
type BanChecker interface {
	CheckBanStatus(ctx context.Context) error
}

// Machine is the per-feed connection lifecycle state machine. It is
// driven by transport-level signals, a 1-second tick, and user
// interaction. Transport failures surface as lastError, never panics.
type Machine struct {
	mu      sync.Mutex
	feed    domain.Feed
	checker BanChecker

	state        domain.ConnState
	wasConnected bool // idle-after-connected, resumable by interaction

	banRemaining int
	hasBan       bool
	recheckDone  bool // one-shot guard for the current countdown cycle
	checking     bool // at most one ban-status check in flight

	lastError string
	lastTouch time.Time
	idleAfter time.Duration
}

// NewMachine creates a state machine in the idle state. idleAfter is
// the feed's inactivity window; zero disables idle detection.
func NewMachine(feed domain.Feed, idleAfter time.Duration, checker BanChecker) *Machine {
	return &Machine{
		feed:      feed,
		checker:   checker,
		state:     domain.ConnIdle,
		idleAfter: idleAfter,
		lastTouch: time.Now(),
	}
}

// Connecting records that the transport is establishing a session
func (m *Machine) Connecting() {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case domain.ConnBanned, domain.ConnRequiresManualReconnect:
		return
	}
	m.state = domain.ConnConnecting
}

// Connected records an established session. An idle feed stays idle
// until interaction resumes it; delivery is merely paused there.
func (m *Machine) Connected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case domain.ConnConnecting, domain.ConnDisconnectedStale:
		m.state = domain.ConnConnected
		m.wasConnected = true
		m.lastTouch = time.Now()
	}
}

// Disconnected records transport loss without a ban. Last-known data
// keeps being served; the view is stale, not cleared.
func (m *Machine) Disconnected(errText string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if errText != "" {
		m.lastError = errText
	}
	if m.state == domain.ConnConnected {
		m.state = domain.ConnDisconnectedStale
	}
}

// RecordError surfaces a transport error without a state transition
func (m *Machine) RecordError(errText string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastError = errText
}

// Superseded records that another session took over the connection.
// Recovery requires an explicit user-triggered reconnect.
func (m *Machine) Superseded() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = domain.ConnRequiresManualReconnect
}

// ManualReconnect exits the requires-manual-reconnect state. Returns
// false when the machine is not waiting for a manual reconnect.
func (m *Machine) ManualReconnect() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != domain.ConnRequiresManualReconnect {
		return false
	}
	m.state = domain.ConnConnecting
	return true
}

// Ban enters the banned state with the server-provided remaining
// duration. A fresh non-zero remaining value re-arms the one-shot
// re-check guard for the next expiry cycle.
func (m *Machine) Ban(remainingSeconds int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if remainingSeconds < 0 {
		remainingSeconds = 0
	}
	if remainingSeconds > 0 {
		m.recheckDone = false
	}
	m.hasBan = true
	m.banRemaining = remainingSeconds
	m.state = domain.ConnBanned
}

// BanCleared exits the banned state back to connecting
func (m *Machine) BanCleared() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hasBan {
		return
	}
	m.hasBan = false
	m.banRemaining = 0
	if m.state == domain.ConnBanned {
		m.state = domain.ConnConnecting
	}
}

// Touch records user interaction; interaction resumes an idle feed
func (m *Machine) Touch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastTouch = time.Now()
	if m.state == domain.ConnIdle && m.wasConnected {
		m.state = domain.ConnConnected
	}
}

// Tick advances the machine by one second: the ban countdown
// decrements floored at zero, and an inactive connected feed goes
// idle. When the countdown reaches zero the ban re-check fires exactly
// once per cycle; repeated zero-ticks do not retrigger it.
func (m *Machine) Tick(ctx context.Context, now time.Time) {
	m.mu.Lock()
	if m.state == domain.ConnBanned && m.hasBan {
		if m.banRemaining > 0 {
			m.banRemaining--
		}
		if m.banRemaining == 0 && !m.recheckDone && !m.checking {
			m.recheckDone = true
			m.checking = true
			go m.runBanCheck(ctx)
		}
	}
	if m.state == domain.ConnConnected && m.idleAfter > 0 && now.Sub(m.lastTouch) >= m.idleAfter {
		m.state = domain.ConnIdle
	}
	m.mu.Unlock()
}

// runBanCheck issues the asynchronous ban-status re-check. The result
// only surfaces as lastError; ban state changes arrive through the
// collaborator's own flags.
func (m *Machine) runBanCheck(ctx context.Context) {
	var err error
	if m.checker != nil {
		err = m.checker.CheckBanStatus(ctx)
	}
	m.mu.Lock()
	m.checking = false
	if err != nil {
		m.lastError = err.Error()
	}
	m.mu.Unlock()
}

// State returns the current lifecycle position
func (m *Machine) State() domain.ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Status returns a snapshot for the query surface
func (m *Machine) Status() domain.ConnectionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := domain.ConnectionStatus{
		Feed:                m.feed,
		State:               m.state,
		IsCheckingBanStatus: m.checking,
		LastError:           m.lastError,
	}
	if m.state == domain.ConnBanned && m.hasBan {
		remaining := m.banRemaining
		cd := domain.DecomposeCountdown(remaining)
		st.BanRemainingSeconds = &remaining
		st.Countdown = &cd
	}
	return st
}
