package api

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/ernie/heistwatch/internal/domain"
	"github.com/ernie/heistwatch/internal/tracker"
)

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// parseFeed extracts and validates the feed path segment
func parseFeed(req *http.Request) (domain.Feed, bool) {
	name := req.PathValue("feed")
	if !domain.ValidFeed(name) {
		return "", false
	}
	return domain.Feed(name), true
}

// activeTracker resolves the feed's tracker; feeds that are not the
// active one have no live engine state.
func (r *Router) activeTracker(w http.ResponseWriter, req *http.Request) (*tracker.Tracker, bool) {
	feed, ok := parseFeed(req)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown feed")
		return nil, false
	}
	t, ok := r.engine.Get(feed)
	if !ok {
		writeError(w, http.StatusConflict, "feed not active")
		return nil, false
	}
	return t, true
}

// parseFilters builds the view state from query parameters, starting
// from the defaults. Missing parameters keep their default values.
func parseFilters(req *http.Request) domain.Filters {
	q := req.URL.Query()
	f := domain.DefaultFilters()

	f.Search = q.Get("search")
	switch domain.ServerSize(q.Get("size")) {
	case domain.SizeBig:
		f.Size = domain.SizeBig
	case domain.SizeSmall:
		f.Size = domain.SizeSmall
	}
	if types := q.Get("types"); types != "" {
		f.Types = strings.Split(types, ",")
	}
	if domain.TypeMode(q.Get("mode")) == domain.TypeAll {
		f.Mode = domain.TypeAll
	}
	if domain.SortKey(q.Get("sort")) == domain.SortByName {
		f.SortBy = domain.SortByName
	}
	if domain.SortDir(q.Get("name_dir")) == domain.SortDesc {
		f.NameDir = domain.SortDesc
	}
	if domain.SortDir(q.Get("time_dir")) == domain.SortAsc {
		f.TimeDir = domain.SortAsc
	}
	if q.Get("difficulty") == "1" || q.Get("difficulty") == "true" {
		f.ByDifficulty = true
	}
	if presets := q.Get("presets"); presets != "" {
		f.Presets = strings.Split(presets, ",")
	}
	return f
}

// feedInfo describes one feed in the listing
type feedInfo struct {
	Feed   domain.Feed `json:"feed"`
	Active bool        `json:"active"`
}

// handleGetFeeds lists all feeds and which one is active
func (r *Router) handleGetFeeds(w http.ResponseWriter, req *http.Request) {
	active, _ := r.engine.ActiveFeed()
	feeds := make([]feedInfo, 0, 3)
	for _, f := range domain.Feeds() {
		feeds = append(feeds, feedInfo{Feed: f, Active: f == active})
	}
	writeJSON(w, http.StatusOK, feeds)
}

// handleActivate switches the active feed
func (r *Router) handleActivate(w http.ResponseWriter, req *http.Request) {
	feed, ok := parseFeed(req)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown feed")
		return
	}
	if err := r.engine.Activate(r.baseCtx, feed); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"active": string(feed)})
}

// handleGetEvents returns the filtered, sorted view of the feed.
// Query parameters update the shared filter state; the read counts as
// user interaction for idle detection.
func (r *Router) handleGetEvents(w http.ResponseWriter, req *http.Request) {
	t, ok := r.activeTracker(w, req)
	if !ok {
		return
	}
	t.Touch()
	t.SetFilters(parseFilters(req))

	events := t.Events()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events":     events,
		"total":      len(events),
		"stats":      t.Stats(),
		"connection": t.Connection(),
	})
}

// handleGetCombos returns power-combo results. Combo mode is implied;
// the robbery feed is the only one with combo semantics.
func (r *Router) handleGetCombos(w http.ResponseWriter, req *http.Request) {
	feed, ok := parseFeed(req)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown feed")
		return
	}
	if feed != domain.FeedRobbery {
		writeError(w, http.StatusBadRequest, "power combos exist on the robbery feed only")
		return
	}
	t, ok := r.engine.Get(feed)
	if !ok {
		writeError(w, http.StatusConflict, "feed not active")
		return
	}
	t.Touch()
	f := parseFilters(req)
	f.Mode = domain.TypeAll
	t.SetFilters(f)

	combos := t.Combos()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"combos":     combos,
		"total":      len(combos),
		"stats":      t.Stats(),
		"connection": t.Connection(),
	})
}

// handleGetStats returns the aggregate counts for the current view
func (r *Router) handleGetStats(w http.ResponseWriter, req *http.Request) {
	t, ok := r.activeTracker(w, req)
	if !ok {
		return
	}
	t.Touch()
	writeJSON(w, http.StatusOK, t.Stats())
}

// handleGetConnection returns the feed's connection state snapshot
func (r *Router) handleGetConnection(w http.ResponseWriter, req *http.Request) {
	t, ok := r.activeTracker(w, req)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, t.Connection())
}

// handleReconnect performs the explicit user-triggered recovery from
// a superseded session
func (r *Router) handleReconnect(w http.ResponseWriter, req *http.Request) {
	t, ok := r.activeTracker(w, req)
	if !ok {
		return
	}
	if !t.Reconnect() {
		writeError(w, http.StatusConflict, "feed is not awaiting manual reconnect")
		return
	}
	writeJSON(w, http.StatusOK, t.Connection())
}

// handleGetPresets returns the static combo preset catalog
func (r *Router) handleGetPresets(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, r.engine.Presets())
}

// handleHealth is a basic liveness check
func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStatic serves the site frontend with an SPA fallback
func (r *Router) handleStatic(w http.ResponseWriter, req *http.Request) {
	path := filepath.Join(r.staticDir, filepath.Clean("/"+req.URL.Path))
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		path = filepath.Join(r.staticDir, "index.html")
	}
	http.ServeFile(w, req, path)
}
