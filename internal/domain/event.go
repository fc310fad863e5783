package domain

// Feed identifies one of the live event streams
type Feed string

const (
	FeedRobbery Feed = "robbery"
	FeedMansion Feed = "mansion"
	FeedAirdrop Feed = "airdrop"
)

// Feeds returns all feeds in display order
func Feeds() []Feed {
	return []Feed{FeedRobbery, FeedMansion, FeedAirdrop}
}

// ValidFeed reports whether s names a known feed
func ValidFeed(s string) bool {
	switch Feed(s) {
	case FeedRobbery, FeedMansion, FeedAirdrop:
		return true
	}
	return false
}

// Event status codes. The upstream encodes lifecycle position as an
// ordered integer per feed; only open and in-progress have fixed
// meanings, higher values are feed-dependent closed/ready states.
const (
	StatusOpen       = 1
	StatusInProgress = 2
)

// Player is a player on a game-server instance
type Player struct {
	Name string `json:"name"`
}

// ServerRef identifies the game-server instance an event was observed on
type ServerRef struct {
	JobID   string   `json:"jobId"`
	Players []Player `json:"players"`
}

// Event is the base shape shared by all three feeds
type Event struct {
	MarkerName string     `json:"markerName"`
	Name       string     `json:"name"`
	Status     int        `json:"status"`
	Timestamp  int64      `json:"timestamp"` // unix seconds
	Server     *ServerRef `json:"server,omitempty"`
	JobID      string     `json:"jobId,omitempty"` // fallback when server is absent

	// Airdrop-only fields
	Location string `json:"location,omitempty"`
	Color    string `json:"color,omitempty"` // difficulty encoding
}

// ServerID resolves the event's server identity: server.jobId when
// present, otherwise the top-level jobId. Empty means the event cannot
// participate in server-keyed grouping.
func (e Event) ServerID() string {
	if e.Server != nil && e.Server.JobID != "" {
		return e.Server.JobID
	}
	return e.JobID
}

// PlayerCount returns the server's player count, 0 when unknown
func (e Event) PlayerCount() int {
	if e.Server == nil {
		return 0
	}
	return len(e.Server.Players)
}

// EventKey is the identity used for ingest deduplication
type EventKey struct {
	MarkerName string
	ServerID   string
	Timestamp  int64
}

// Key returns the event's deduplication identity
func (e Event) Key() EventKey {
	return EventKey{MarkerName: e.MarkerName, ServerID: e.ServerID(), Timestamp: e.Timestamp}
}
