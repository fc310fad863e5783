package domain

// ComboPreset is a statically configured set of event types that must
// be simultaneously open on the same server to count as a power combo.
// Types is ordered; combo results list representative events in this order.
type ComboPreset struct {
	ID    string   `json:"id" yaml:"id"`
	Label string   `json:"label" yaml:"label"`
	Types []string `json:"types" yaml:"types"`
}

// ComboResult is a derived, ephemeral match of a preset on one server.
// Robberies holds one representative event per required type (the most
// recent open one); LatestTimestamp is the max across them.
type ComboResult struct {
	ComboID         string  `json:"comboId"`
	ServerID        string  `json:"serverId"`
	Robberies       []Event `json:"robberies"`
	LatestTimestamp int64   `json:"latestTimestamp"`
}
