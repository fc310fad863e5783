// Package derive holds the pure derivation pipeline: filtered/sorted
// event views, power-combo matching, and aggregate statistics. Nothing
// here blocks, performs I/O, or mutates its inputs.
package derive

import (
	"sort"
	"strings"

	"github.com/ernie/heistwatch/internal/domain"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// colorSeverity maps airdrop difficulty colors to an explicit ordering.
// Unrecognized colors sort as severity 0.
var colorSeverity = map[string]int{
	"blue":   1,
	"red":    2,
	"purple": 3,
}

// ColorSeverity returns the difficulty rank for an airdrop color
func ColorSeverity(color string) int {
	return colorSeverity[strings.ToLower(color)]
}

// Apply filters and sorts a feed's events per the user-selected view
// state. The input slice is not modified. An empty result is a valid
// state, distinct from "no data received yet".
//
// In power-combo mode (Filters.Mode == TypeAll) the per-event type
// filter does not apply; combo membership is decided by MatchCombos.
func Apply(feed domain.Feed, events []domain.Event, f domain.Filters) []domain.Event {
	typeSet := f.TypeSet()
	out := make([]domain.Event, 0, len(events))
	for _, e := range events {
		if !matchesSize(e, f.Size) {
			continue
		}
		if f.Mode != domain.TypeAll && typeSet != nil && !typeSet[e.MarkerName] {
			continue
		}
		if !matchesSearch(feed, e, f.Search) {
			continue
		}
		out = append(out, e)
	}
	sortEvents(feed, out, f)
	return out
}

// matchesSize applies the server-size bucket predicate
func matchesSize(e domain.Event, size domain.ServerSize) bool {
	switch size {
	case domain.SizeBig:
		return e.PlayerCount() >= domain.BigServerMinPlayers
	case domain.SizeSmall:
		return e.PlayerCount() < domain.BigServerMinPlayers
	default:
		return true
	}
}

// matchesSearch does a case-insensitive substring match against the
// event name; airdrops also match on location and color.
func matchesSearch(feed domain.Feed, e domain.Event, term string) bool {
	if term == "" {
		return true
	}
	term = strings.ToLower(term)
	if strings.Contains(strings.ToLower(e.Name), term) {
		return true
	}
	if feed == domain.FeedAirdrop {
		if strings.Contains(strings.ToLower(e.Location), term) {
			return true
		}
		if strings.Contains(strings.ToLower(e.Color), term) {
			return true
		}
	}
	return false
}

// sortEvents orders events in place: status ascending first (open
// before in-progress before closed), then the optional airdrop
// difficulty key ahead of the timestamp sort, then the user-selected
// secondary key. Difficulty never outranks an explicit name sort. The
// sort is stable so equal keys keep their arrival order.
func sortEvents(feed domain.Feed, events []domain.Event, f domain.Filters) {
	c := collate.New(language.English, collate.Loose)
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if a.Status != b.Status {
			return a.Status < b.Status
		}
		if feed == domain.FeedAirdrop && f.ByDifficulty && f.SortBy != domain.SortByName {
			sa, sb := ColorSeverity(a.Color), ColorSeverity(b.Color)
			if sa != sb {
				if f.TimeDir == domain.SortDesc {
					return sa > sb
				}
				return sa < sb
			}
		}
		switch f.SortBy {
		case domain.SortByName:
			if cmp := c.CompareString(a.Name, b.Name); cmp != 0 {
				if f.NameDir == domain.SortDesc {
					return cmp > 0
				}
				return cmp < 0
			}
		default:
			if a.Timestamp != b.Timestamp {
				if f.TimeDir == domain.SortDesc {
					return a.Timestamp > b.Timestamp
				}
				return a.Timestamp < b.Timestamp
			}
		}
		return false
	})
}
