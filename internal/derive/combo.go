package derive

import (
	"sort"
	"strings"

	"github.com/ernie/heistwatch/internal/domain"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// MatchCombos finds servers where every type of a preset is
// simultaneously open. The server-size filter is applied to the raw
// event list before grouping; events without a resolvable server id
// never participate. When Filters.Presets is empty all presets are
// considered active.
func MatchCombos(events []domain.Event, presets []domain.ComboPreset, f domain.Filters) []domain.ComboResult {
	active := activePresets(presets, f.Presets)
	if len(active) == 0 {
		return nil
	}

	sized := make([]domain.Event, 0, len(events))
	for _, e := range events {
		if matchesSize(e, f.Size) {
			sized = append(sized, e)
		}
	}

	search := strings.ToLower(f.Search)
	var results []domain.ComboResult
	for _, p := range active {
		results = append(results, matchPreset(sized, p, search)...)
	}

	sortCombos(results, labelIndex(presets), f)
	return results
}

// matchPreset evaluates a single preset against the size-filtered events
func matchPreset(events []domain.Event, p domain.ComboPreset, search string) []domain.ComboResult {
	typeSet := make(map[string]bool, len(p.Types))
	for _, t := range p.Types {
		typeSet[t] = true
	}

	// serverID -> markerName -> most recent open event
	best := make(map[string]map[string]domain.Event)
	for _, e := range events {
		if e.Status != domain.StatusOpen || !typeSet[e.MarkerName] {
			continue
		}
		sid := e.ServerID()
		if sid == "" {
			continue
		}
		m := best[sid]
		if m == nil {
			m = make(map[string]domain.Event, len(p.Types))
			best[sid] = m
		}
		if cur, ok := m[e.MarkerName]; !ok || e.Timestamp > cur.Timestamp {
			m[e.MarkerName] = e
		}
	}

	var results []domain.ComboResult
	for sid, m := range best {
		if len(m) != len(typeSet) {
			continue // partial matches never qualify
		}
		reps := make([]domain.Event, 0, len(p.Types))
		var latest int64
		for _, t := range p.Types {
			e := m[t]
			reps = append(reps, e)
			if e.Timestamp > latest {
				latest = e.Timestamp
			}
		}
		if search != "" && !comboMatchesSearch(p.Label, reps, search) {
			continue
		}
		results = append(results, domain.ComboResult{
			ComboID:         p.ID,
			ServerID:        sid,
			Robberies:       reps,
			LatestTimestamp: latest,
		})
	}
	return results
}

// comboMatchesSearch matches the lowercased term against the preset
// label or any representative event name
func comboMatchesSearch(label string, reps []domain.Event, search string) bool {
	if strings.Contains(strings.ToLower(label), search) {
		return true
	}
	for _, e := range reps {
		if strings.Contains(strings.ToLower(e.Name), search) {
			return true
		}
	}
	return false
}

// activePresets resolves the user's preset selection; an empty
// selection activates every defined preset.
func activePresets(presets []domain.ComboPreset, selected []string) []domain.ComboPreset {
	if len(selected) == 0 {
		return presets
	}
	want := make(map[string]bool, len(selected))
	for _, id := range selected {
		want[id] = true
	}
	out := make([]domain.ComboPreset, 0, len(selected))
	for _, p := range presets {
		if want[p.ID] {
			out = append(out, p)
		}
	}
	return out
}

func labelIndex(presets []domain.ComboPreset) map[string]string {
	idx := make(map[string]string, len(presets))
	for _, p := range presets {
		idx[p.ID] = p.Label
	}
	return idx
}

// sortCombos orders results by combo label, then server id (both
// locale-compared in the global name direction), then latest timestamp
// in the global time direction.
func sortCombos(results []domain.ComboResult, labels map[string]string, f domain.Filters) {
	c := collate.New(language.English, collate.Loose)
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if cmp := c.CompareString(labels[a.ComboID], labels[b.ComboID]); cmp != 0 {
			if f.NameDir == domain.SortDesc {
				return cmp > 0
			}
			return cmp < 0
		}
		if cmp := c.CompareString(a.ServerID, b.ServerID); cmp != 0 {
			if f.NameDir == domain.SortDesc {
				return cmp > 0
			}
			return cmp < 0
		}
		if a.LatestTimestamp != b.LatestTimestamp {
			if f.TimeDir == domain.SortDesc {
				return a.LatestTimestamp > b.LatestTimestamp
			}
			return a.LatestTimestamp < b.LatestTimestamp
		}
		return false
	})
}
