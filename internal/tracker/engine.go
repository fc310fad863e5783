package tracker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ernie/heistwatch/internal/domain"
)

// TransportFactory opens a fresh transport subscription for a feed
type TransportFactory func(feed domain.Feed) (Transport, error)

// Engine manages the feed trackers. One feed is active at a time,
// matching the tab model of the site: activating a feed releases the
// previous feed's subscription and builds a fresh tracker, never
// resuming stale state.
type Engine struct {
	factory   TransportFactory
	presets   []domain.ComboPreset
	idleAfter map[domain.Feed]time.Duration
	updates   chan Update

	mu     sync.Mutex
	active *Tracker
}

// NewEngine creates an engine with the given static combo preset
// catalog and per-feed inactivity windows.
func NewEngine(factory TransportFactory, presets []domain.ComboPreset, idleAfter map[domain.Feed]time.Duration) *Engine {
	return &Engine{
		factory:   factory,
		presets:   presets,
		idleAfter: idleAfter,
		updates:   make(chan Update, 64),
	}
}

// Activate switches the active feed. The deactivated feed stops
// receiving state updates and its transport subscription is released.
// Activating the already-active feed is a no-op.
func (e *Engine) Activate(ctx context.Context, feed domain.Feed) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active != nil && e.active.Feed() == feed {
		return nil
	}
	if e.active != nil {
		log.Printf("Deactivating %s feed", e.active.Feed())
		e.active.Stop()
		e.active = nil
	}

	transport, err := e.factory(feed)
	if err != nil {
		return fmt.Errorf("opening %s transport: %w", feed, err)
	}

	t := NewTracker(feed, transport, e.presets, e.idleAfter[feed], e.updates)
	t.Start(ctx)
	e.active = t
	log.Printf("Activated %s feed", feed)
	return nil
}

// Get returns the tracker for a feed if it is the active one
func (e *Engine) Get(feed domain.Feed) (*Tracker, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == nil || e.active.Feed() != feed {
		return nil, false
	}
	return e.active, true
}

// ActiveFeed returns the currently active feed, if any
func (e *Engine) ActiveFeed() (domain.Feed, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == nil {
		return "", false
	}
	return e.active.Feed(), true
}

// Presets returns the static combo preset catalog
func (e *Engine) Presets() []domain.ComboPreset {
	return e.presets
}

// Updates returns the channel of recomputed view snapshots
func (e *Engine) Updates() <-chan Update {
	return e.updates
}

// Stop tears down the active feed
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active != nil {
		e.active.Stop()
		e.active = nil
	}
}
