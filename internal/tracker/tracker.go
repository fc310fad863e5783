package tracker

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/ernie/heistwatch/internal/derive"
	"github.com/ernie/heistwatch/internal/domain"
)

// Message is one discrete delivery from the live transport: either a
// full snapshot or an incremental update of a feed's events.
type Message struct {
	Snapshot bool
	Events   []domain.Event
}

// TransportStatus is the flag set the transport collaborator exposes.
// The engine observes these; it never mutates them.
type TransportStatus struct {
	Connected               bool
	Connecting              bool
	Err                     string
	RequiresManualReconnect bool
	Banned                  bool
	BanRemainingSeconds     int
}

// Transport is the live duplex channel collaborator for one feed. The
// engine treats delivery order and retry policy as the transport's
// contract; it only ingests what arrives and observes status flags.
type Transport interface {
	// Messages delivers events until the transport is closed
	Messages() <-chan Message
	// Status returns the current connection flags
	Status() TransportStatus
	// Reconnect recovers from a superseded session; user-triggered only
	Reconnect()
	// CheckBanStatus re-validates the ban server-side (idempotent)
	CheckBanStatus(ctx context.Context) error
	// Close releases the subscription
	Close()
}

// Update is a recomputed view snapshot pushed to subscribers after
// every relevant input change.
type Update struct {
	Feed       domain.Feed             `json:"feed"`
	Events     []domain.Event          `json:"events"`
	Combos     []domain.ComboResult    `json:"combos,omitempty"`
	Stats      domain.Stats            `json:"stats"`
	Connection domain.ConnectionStatus `json:"connection"`
}

// Tracker drives one feed: it owns the feed's event store and
// connection state machine exclusively, ingests transport messages,
// and recomputes the derived views whenever the store or the filter
// state changes.
type Tracker struct {
	feed      domain.Feed
	store     *EventStore
	machine   *Machine
	transport Transport
	presets   []domain.ComboPreset
	updates   chan<- Update

	mu       sync.RWMutex
	filters  domain.Filters
	received bool // at least one message ingested; distinguishes "no data yet" from zero matches
	view     []domain.Event
	combos   []domain.ComboResult
	stats    domain.Stats

	banSeen int // last transport remaining folded into the machine; run goroutine only

	done chan struct{}
	wg   sync.WaitGroup
}

// NewTracker wires a tracker for one feed. updates may be nil when no
// subscriber wants push notifications.
func NewTracker(feed domain.Feed, transport Transport, presets []domain.ComboPreset, idleAfter time.Duration, updates chan<- Update) *Tracker {
	return &Tracker{
		feed:      feed,
		store:     NewEventStore(),
		machine:   NewMachine(feed, idleAfter, transport),
		transport: transport,
		presets:   presets,
		updates:   updates,
		filters:   domain.DefaultFilters(),
		done:      make(chan struct{}),
	}
}

// Start begins driving the feed. The tracker enters connecting state
// immediately; actual delivery starts when the transport is up.
func (t *Tracker) Start(ctx context.Context) {
	t.machine.Connecting()
	t.wg.Add(1)
	go t.run(ctx)
}

// Stop tears the feed down: the transport subscription is released
// and the countdown/idle ticker is cancelled. A stopped tracker is
// never resumed; reactivation builds a fresh one.
func (t *Tracker) Stop() {
	close(t.done)
	t.transport.Close()
	t.wg.Wait()
}

func (t *Tracker) run(ctx context.Context) {
	defer t.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ctx.Done():
			return
		case msg, ok := <-t.transport.Messages():
			if !ok {
				t.machine.Disconnected("transport closed")
				t.publish()
				return
			}
			t.store.Ingest(msg.Events, msg.Snapshot)
			t.mu.Lock()
			t.received = true
			t.mu.Unlock()
			t.syncConnState()
			t.recompute()
			t.publish()
		case <-ticker.C:
			t.step(ctx, time.Now())
		}
	}
}

// step is one tick of the drive loop: fold the transport flags, then
// advance the machine clock. Runs on the run goroutine only.
func (t *Tracker) step(ctx context.Context, now time.Time) {
	t.syncConnState()
	t.machine.Tick(ctx, now)
}

// syncConnState folds the transport's current flags into the state
// machine. Precedence: superseded session, then ban, then liveness.
func (t *Tracker) syncConnState() {
	st := t.transport.Status()
	switch {
	case st.RequiresManualReconnect:
		t.machine.Superseded()
	case st.Banned:
		// Edge-triggered: the transport reports a static remaining
		// value; the machine owns the countdown. Re-entering Ban on
		// every tick would reset the decrement and the one-shot
		// re-check forever.
		if t.machine.State() != domain.ConnBanned || st.BanRemainingSeconds != t.banSeen {
			t.machine.Ban(st.BanRemainingSeconds)
		}
		t.banSeen = st.BanRemainingSeconds
	default:
		t.machine.BanCleared()
		switch {
		case st.Connected:
			t.machine.Connected()
		case st.Connecting:
			t.machine.Connecting()
		default:
			t.machine.Disconnected(st.Err)
		}
	}
	if st.Err != "" {
		t.machine.RecordError(st.Err)
	}
}

// recompute re-derives the filtered view, combo results, and stats
// from the current store contents and filter state.
func (t *Tracker) recompute() {
	events := t.store.Current()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.view = derive.Apply(t.feed, events, t.filters)
	if t.filters.Mode == domain.TypeAll && t.feed == domain.FeedRobbery {
		t.combos = derive.MatchCombos(events, t.presets, t.filters)
		t.stats = derive.AggregateCombos(t.combos)
	} else {
		t.combos = nil
		t.stats = derive.Aggregate(t.feed, t.view)
	}
}

// publish pushes the current snapshot to the update channel, dropping
// when the subscriber lags
func (t *Tracker) publish() {
	if t.updates == nil {
		return
	}
	select {
	case t.updates <- t.Snapshot():
	default:
		log.Printf("Update channel full, dropping %s snapshot", t.feed)
	}
}

// SetFilters replaces the user-selected view state and recomputes
func (t *Tracker) SetFilters(f domain.Filters) {
	t.mu.Lock()
	t.filters = f
	t.mu.Unlock()
	t.recompute()
	t.publish()
}

// Filters returns the current view state
func (t *Tracker) Filters() domain.Filters {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.filters
}

// Touch records user interaction for idle detection
func (t *Tracker) Touch() {
	t.machine.Touch()
}

// Reconnect performs the explicit user-triggered recovery from a
// superseded session. Returns false when the feed is not waiting for
// a manual reconnect.
func (t *Tracker) Reconnect() bool {
	if !t.machine.ManualReconnect() {
		return false
	}
	t.transport.Reconnect()
	return true
}

// Feed returns the feed this tracker drives
func (t *Tracker) Feed() domain.Feed {
	return t.feed
}

// Events returns the current filtered, sorted view
func (t *Tracker) Events() []domain.Event {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]domain.Event, len(t.view))
	copy(out, t.view)
	return out
}

// Combos returns the current power-combo results (robbery feed,
// combo mode only)
func (t *Tracker) Combos() []domain.ComboResult {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]domain.ComboResult, len(t.combos))
	copy(out, t.combos)
	return out
}

// Stats returns the current aggregate counts
func (t *Tracker) Stats() domain.Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.stats
}

// Connection returns the connection state snapshot. HasData lets
// consumers tell "no data received yet" apart from zero filter matches.
func (t *Tracker) Connection() domain.ConnectionStatus {
	st := t.machine.Status()
	t.mu.RLock()
	st.HasData = t.received
	t.mu.RUnlock()
	return st
}

// Snapshot bundles the full derived state for broadcast
func (t *Tracker) Snapshot() Update {
	return Update{
		Feed:       t.feed,
		Events:     t.Events(),
		Combos:     t.Combos(),
		Stats:      t.Stats(),
		Connection: t.Connection(),
	}
}
