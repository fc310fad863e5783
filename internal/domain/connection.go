package domain

import "fmt"

// ConnState is the connection lifecycle position of a feed
type ConnState int

const (
	ConnIdle ConnState = iota
	ConnConnecting
	ConnConnected
	ConnBanned
	ConnRequiresManualReconnect
	ConnDisconnectedStale
)

var connStateNames = map[ConnState]string{
	ConnIdle:                    "idle",
	ConnConnecting:              "connecting",
	ConnConnected:               "connected",
	ConnBanned:                  "banned",
	ConnRequiresManualReconnect: "requires_manual_reconnect",
	ConnDisconnectedStale:       "disconnected_stale",
}

func (s ConnState) String() string {
	if name, ok := connStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

// MarshalText renders the state name for JSON output
func (s ConnState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name
func (s *ConnState) UnmarshalText(text []byte) error {
	name := string(text)
	for state, n := range connStateNames {
		if n == name {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown connection state %q", name)
}

// Countdown is a ban countdown decomposed for display
type Countdown struct {
	Days    int `json:"days"`
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
	Seconds int `json:"seconds"`
}

// DecomposeCountdown splits a second count into days/hours/minutes/seconds.
// Negative input is treated as zero.
func DecomposeCountdown(seconds int) Countdown {
	if seconds < 0 {
		seconds = 0
	}
	return Countdown{
		Days:    seconds / 86400,
		Hours:   (seconds % 86400) / 3600,
		Minutes: (seconds % 3600) / 60,
		Seconds: seconds % 60,
	}
}

// ConnectionStatus is a point-in-time snapshot of a feed's connection
// state machine, shaped for the query surface.
type ConnectionStatus struct {
	Feed                Feed       `json:"feed"`
	State               ConnState  `json:"state"`
	BanRemainingSeconds *int       `json:"ban_remaining_seconds,omitempty"`
	Countdown           *Countdown `json:"countdown,omitempty"`
	IsCheckingBanStatus bool       `json:"is_checking_ban_status,omitempty"`
	LastError           string     `json:"last_error,omitempty"`
	HasData             bool       `json:"has_data"`
}
