package tracker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ernie/heistwatch/internal/domain"
)

type fakeTransport struct {
	msgs chan Message

	mu         sync.Mutex
	status     TransportStatus
	closed     bool
	reconnects int
	banChecks  int
	banChecked chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		msgs:       make(chan Message, 8),
		banChecked: make(chan struct{}, 16),
	}
}

func (f *fakeTransport) Messages() <-chan Message { return f.msgs }

func (f *fakeTransport) Status() TransportStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeTransport) setStatus(st TransportStatus) {
	f.mu.Lock()
	f.status = st
	f.mu.Unlock()
}

func (f *fakeTransport) Reconnect() {
	f.mu.Lock()
	f.reconnects++
	f.mu.Unlock()
}

// CheckBanStatus mimics the real client: a successful re-check of an
// expired ban clears the transport's own flags.
func (f *fakeTransport) CheckBanStatus(ctx context.Context) error {
	f.mu.Lock()
	f.banChecks++
	f.status.Banned = false
	f.status.BanRemainingSeconds = 0
	f.mu.Unlock()
	select {
	case f.banChecked <- struct{}{}:
	default:
	}
	return nil
}

func (f *fakeTransport) banCheckCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.banChecks
}

func (f *fakeTransport) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.msgs)
	}
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func testPresets() []domain.ComboPreset {
	return []domain.ComboPreset{
		{ID: "double-bank", Label: "Double Bank", Types: []string{"Bank", "Bank2"}},
	}
}

func TestTrackerIngestRecomputes(t *testing.T) {
	ft := newFakeTransport()
	ft.setStatus(TransportStatus{Connected: true})
	tr := NewTracker(domain.FeedRobbery, ft, testPresets(), 0, nil)
	tr.Start(context.Background())
	defer tr.Stop()

	if tr.Connection().HasData {
		t.Error("HasData must be false before any delivery")
	}

	ft.msgs <- Message{Snapshot: true, Events: []domain.Event{
		{MarkerName: "Bank", Name: "Bank", Status: 1, JobID: "A", Timestamp: 10},
		{MarkerName: "Jewelry", Name: "Jewelry", Status: 2, JobID: "A", Timestamp: 20},
	}}

	waitFor(t, "snapshot ingest", func() bool { return len(tr.Events()) == 2 })

	conn := tr.Connection()
	if !conn.HasData {
		t.Error("HasData must be true after first delivery")
	}
	if conn.State != domain.ConnConnected {
		t.Errorf("expected connected, got %v", conn.State)
	}
	if s := tr.Stats(); s.Total != 2 || s.Open != 1 || s.InProgress != 1 {
		t.Errorf("unexpected stats: %+v", s)
	}
}

func TestTrackerComboMode(t *testing.T) {
	ft := newFakeTransport()
	ft.setStatus(TransportStatus{Connected: true})
	tr := NewTracker(domain.FeedRobbery, ft, testPresets(), 0, nil)
	tr.Start(context.Background())
	defer tr.Stop()

	ft.msgs <- Message{Snapshot: true, Events: []domain.Event{
		{MarkerName: "Bank", Status: 1, JobID: "A", Timestamp: 10},
		{MarkerName: "Bank2", Status: 1, JobID: "A", Timestamp: 15},
	}}
	waitFor(t, "snapshot ingest", func() bool { return len(tr.Events()) == 2 })

	if len(tr.Combos()) != 0 {
		t.Fatal("single-type mode must not produce combo results")
	}

	f := domain.DefaultFilters()
	f.Mode = domain.TypeAll
	tr.SetFilters(f)

	combos := tr.Combos()
	if len(combos) != 1 || combos[0].ComboID != "double-bank" {
		t.Fatalf("expected the double-bank combo, got %+v", combos)
	}
	if s := tr.Stats(); s.Total != 1 || s.Open != 1 {
		t.Errorf("combo mode stats must count combos, got %+v", s)
	}
}

func TestTrackerFilterChangeRecomputes(t *testing.T) {
	ft := newFakeTransport()
	ft.setStatus(TransportStatus{Connected: true})
	tr := NewTracker(domain.FeedRobbery, ft, testPresets(), 0, nil)
	tr.Start(context.Background())
	defer tr.Stop()

	ft.msgs <- Message{Snapshot: true, Events: []domain.Event{
		{MarkerName: "Bank", Name: "Rising City Bank", Status: 1, JobID: "A", Timestamp: 10},
		{MarkerName: "Jewelry", Name: "Jewelry Store", Status: 1, JobID: "A", Timestamp: 20},
	}}
	waitFor(t, "snapshot ingest", func() bool { return len(tr.Events()) == 2 })

	f := domain.DefaultFilters()
	f.Search = "rising"
	tr.SetFilters(f)
	got := tr.Events()
	if len(got) != 1 || got[0].Name != "Rising City Bank" {
		t.Fatalf("expected filtered view, got %+v", got)
	}
}

func TestTrackerUpdatesPublished(t *testing.T) {
	ft := newFakeTransport()
	ft.setStatus(TransportStatus{Connected: true})
	updates := make(chan Update, 8)
	tr := NewTracker(domain.FeedMansion, ft, nil, 0, updates)
	tr.Start(context.Background())
	defer tr.Stop()

	ft.msgs <- Message{Snapshot: true, Events: []domain.Event{
		{MarkerName: "Mansion", Name: "Hilltop", Status: 1, JobID: "A", Timestamp: 10},
	}}

	select {
	case u := <-updates:
		if u.Feed != domain.FeedMansion || len(u.Events) != 1 {
			t.Errorf("unexpected update: %+v", u)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published update")
	}
}

func TestTrackerSupersededAndReconnect(t *testing.T) {
	ft := newFakeTransport()
	ft.setStatus(TransportStatus{Connected: true})
	tr := NewTracker(domain.FeedRobbery, ft, nil, 0, nil)
	tr.Start(context.Background())
	defer tr.Stop()

	if tr.Reconnect() {
		t.Error("Reconnect must refuse when not superseded")
	}

	ft.setStatus(TransportStatus{RequiresManualReconnect: true})
	ft.msgs <- Message{Snapshot: true} // forces a status sync
	waitFor(t, "superseded state", func() bool {
		return tr.Connection().State == domain.ConnRequiresManualReconnect
	})

	if !tr.Reconnect() {
		t.Fatal("expected Reconnect to accept")
	}
	ft.mu.Lock()
	reconnects := ft.reconnects
	ft.mu.Unlock()
	if reconnects != 1 {
		t.Errorf("expected 1 transport reconnect, got %d", reconnects)
	}
}

func TestTrackerBanFromTransport(t *testing.T) {
	ft := newFakeTransport()
	ft.setStatus(TransportStatus{Banned: true, BanRemainingSeconds: 120})
	tr := NewTracker(domain.FeedRobbery, ft, nil, 0, nil)
	tr.Start(context.Background())
	defer tr.Stop()

	ft.msgs <- Message{Snapshot: true}
	waitFor(t, "banned state", func() bool {
		return tr.Connection().State == domain.ConnBanned
	})

	conn := tr.Connection()
	if conn.BanRemainingSeconds == nil || *conn.BanRemainingSeconds != 120 {
		t.Fatalf("expected remaining 120, got %+v", conn.BanRemainingSeconds)
	}
	if conn.Countdown == nil || conn.Countdown.Minutes != 2 {
		t.Errorf("expected 2m countdown, got %+v", conn.Countdown)
	}
}

// TestTrackerBanCountdownThroughTicks steps the drive loop's own tick
// body: the countdown must reach zero, fire exactly one re-check, and
// the cleared flags must let the feed leave the banned state.
func TestTrackerBanCountdownThroughTicks(t *testing.T) {
	ft := newFakeTransport()
	ft.setStatus(TransportStatus{Banned: true, BanRemainingSeconds: 3})
	tr := NewTracker(domain.FeedRobbery, ft, nil, 0, nil)
	ctx := context.Background()
	now := time.Now()

	tr.step(ctx, now)
	tr.step(ctx, now)
	conn := tr.Connection()
	if conn.BanRemainingSeconds == nil || *conn.BanRemainingSeconds != 1 {
		t.Fatalf("expected remaining 1 after 2 ticks, got %+v", conn.BanRemainingSeconds)
	}
	if n := ft.banCheckCount(); n != 0 {
		t.Fatalf("re-check must not fire before expiry, got %d", n)
	}

	tr.step(ctx, now)
	conn = tr.Connection()
	if conn.BanRemainingSeconds == nil || *conn.BanRemainingSeconds != 0 {
		t.Fatalf("countdown must reach zero, got %+v", conn.BanRemainingSeconds)
	}
	select {
	case <-ft.banChecked:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ban-status re-check")
	}

	// The re-check cleared the transport flags; further ticks exit the
	// ban without firing again.
	waitFor(t, "ban exit", func() bool {
		tr.step(ctx, now)
		return tr.Connection().State == domain.ConnConnecting
	})
	for i := 0; i < 5; i++ {
		tr.step(ctx, now)
	}
	if n := ft.banCheckCount(); n != 1 {
		t.Fatalf("expected exactly 1 re-check, got %d", n)
	}
}

// TestTrackerBanResyncKeepsCountdown covers the tick/resync interplay:
// the transport keeps reporting the original remaining value, and the
// per-tick status fold must not reset the machine's countdown.
func TestTrackerBanResyncKeepsCountdown(t *testing.T) {
	ft := newFakeTransport()
	ft.setStatus(TransportStatus{Banned: true, BanRemainingSeconds: 10})
	tr := NewTracker(domain.FeedRobbery, ft, nil, 0, nil)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 4; i++ {
		tr.step(ctx, now)
	}
	conn := tr.Connection()
	if conn.BanRemainingSeconds == nil || *conn.BanRemainingSeconds != 6 {
		t.Fatalf("expected remaining 6 after 4 ticks, got %+v", conn.BanRemainingSeconds)
	}

	// A fresh ban with a different remaining value does restart it
	ft.setStatus(TransportStatus{Banned: true, BanRemainingSeconds: 30})
	tr.step(ctx, now)
	conn = tr.Connection()
	if conn.BanRemainingSeconds == nil || *conn.BanRemainingSeconds != 29 {
		t.Fatalf("expected restarted countdown at 29, got %+v", conn.BanRemainingSeconds)
	}
}

func TestEngineActivateSwitchesFeeds(t *testing.T) {
	var mu sync.Mutex
	transports := map[domain.Feed]*fakeTransport{}
	calls := 0
	factory := func(feed domain.Feed) (Transport, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		ft := newFakeTransport()
		ft.setStatus(TransportStatus{Connected: true})
		transports[feed] = ft
		return ft, nil
	}

	e := NewEngine(factory, testPresets(), nil)
	defer e.Stop()

	if err := e.Activate(context.Background(), domain.FeedRobbery); err != nil {
		t.Fatal(err)
	}
	if feed, ok := e.ActiveFeed(); !ok || feed != domain.FeedRobbery {
		t.Fatalf("expected robbery active, got %v %v", feed, ok)
	}

	// Re-activating the active feed is a no-op
	if err := e.Activate(context.Background(), domain.FeedRobbery); err != nil {
		t.Fatal(err)
	}
	mu.Lock()
	if calls != 1 {
		t.Errorf("expected 1 transport open, got %d", calls)
	}
	robbery := transports[domain.FeedRobbery]
	mu.Unlock()

	if err := e.Activate(context.Background(), domain.FeedMansion); err != nil {
		t.Fatal(err)
	}
	if !robbery.isClosed() {
		t.Error("deactivation must release the previous transport")
	}
	if _, ok := e.Get(domain.FeedRobbery); ok {
		t.Error("deactivated feed must not be reachable")
	}
	if _, ok := e.Get(domain.FeedMansion); !ok {
		t.Error("expected mansion tracker")
	}
}

func TestEngineActivationIsFresh(t *testing.T) {
	var mu sync.Mutex
	var current *fakeTransport
	factory := func(feed domain.Feed) (Transport, error) {
		mu.Lock()
		defer mu.Unlock()
		current = newFakeTransport()
		current.setStatus(TransportStatus{Connected: true})
		return current, nil
	}

	e := NewEngine(factory, nil, nil)
	defer e.Stop()

	if err := e.Activate(context.Background(), domain.FeedRobbery); err != nil {
		t.Fatal(err)
	}
	mu.Lock()
	first := current
	mu.Unlock()
	first.msgs <- Message{Snapshot: true, Events: []domain.Event{
		{MarkerName: "Bank", Status: 1, JobID: "A", Timestamp: 1},
	}}
	tr, _ := e.Get(domain.FeedRobbery)
	waitFor(t, "snapshot ingest", func() bool { return len(tr.Events()) == 1 })

	if err := e.Activate(context.Background(), domain.FeedMansion); err != nil {
		t.Fatal(err)
	}
	if err := e.Activate(context.Background(), domain.FeedRobbery); err != nil {
		t.Fatal(err)
	}

	// The round trip built a new tracker; no stale events survive
	tr, ok := e.Get(domain.FeedRobbery)
	if !ok {
		t.Fatal("expected robbery tracker")
	}
	if len(tr.Events()) != 0 {
		t.Errorf("reactivation must start from empty state, got %d events", len(tr.Events()))
	}
	if tr.Connection().HasData {
		t.Error("reactivation must reset HasData")
	}
}
