package domain

// Stats summarizes the current filtered view of a feed.
// Easy/Medium/Hard are populated for airdrops only.
type Stats struct {
	Total      int `json:"total"`
	Open       int `json:"open"`
	InProgress int `json:"in_progress"`
	Easy       int `json:"easy,omitempty"`
	Medium     int `json:"medium,omitempty"`
	Hard       int `json:"hard,omitempty"`
}
