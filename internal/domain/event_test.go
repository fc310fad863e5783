package domain

import "testing"

func TestEventServerID(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		want  string
	}{
		{
			name:  "server jobId wins",
			event: Event{Server: &ServerRef{JobID: "srv-1"}, JobID: "top-level"},
			want:  "srv-1",
		},
		{
			name:  "falls back to top-level jobId",
			event: Event{JobID: "top-level"},
			want:  "top-level",
		},
		{
			name:  "empty server jobId falls back",
			event: Event{Server: &ServerRef{}, JobID: "top-level"},
			want:  "top-level",
		},
		{
			name:  "no identity at all",
			event: Event{Server: &ServerRef{}},
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.event.ServerID(); got != tt.want {
				t.Errorf("ServerID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEventPlayerCount(t *testing.T) {
	if got := (Event{}).PlayerCount(); got != 0 {
		t.Errorf("expected 0 players without server, got %d", got)
	}
	e := Event{Server: &ServerRef{Players: []Player{{Name: "a"}, {Name: "b"}}}}
	if got := e.PlayerCount(); got != 2 {
		t.Errorf("expected 2 players, got %d", got)
	}
}

func TestEventKeyIdentity(t *testing.T) {
	a := Event{MarkerName: "Bank", Server: &ServerRef{JobID: "A"}, Timestamp: 100}
	b := Event{MarkerName: "Bank", JobID: "A", Timestamp: 100, Name: "different label"}
	if a.Key() != b.Key() {
		t.Error("expected identical keys for same (marker, server, timestamp)")
	}
	c := Event{MarkerName: "Bank", JobID: "A", Timestamp: 101}
	if a.Key() == c.Key() {
		t.Error("expected different keys for different timestamps")
	}
}
