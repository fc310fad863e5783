package domain

// ServerSize buckets servers by player count
type ServerSize string

const (
	SizeAll   ServerSize = "all"
	SizeBig   ServerSize = "big"
	SizeSmall ServerSize = "small"
)

// BigServerMinPlayers is the boundary between big and small servers
const BigServerMinPlayers = 9

// TypeMode selects how the type filter combines
type TypeMode string

const (
	// TypeAny includes an event when its marker name is in the selected set
	TypeAny TypeMode = "any"
	// TypeAll is power-combo mode: all selected types must be
	// simultaneously open on the same server (robbery feed only)
	TypeAll TypeMode = "all"
)

// SortDir is a sort direction
type SortDir string

const (
	SortAsc  SortDir = "asc"
	SortDesc SortDir = "desc"
)

// SortKey selects the secondary sort key (status ascending is always primary)
type SortKey string

const (
	SortByName SortKey = "name"
	SortByTime SortKey = "time"
)

// Filters is the user-selected view state every derivation reads.
// Filters are inputs to derivations, never outputs.
type Filters struct {
	Search       string     `json:"search"`
	Size         ServerSize `json:"size"`
	Types        []string   `json:"types"`
	Mode         TypeMode   `json:"mode"`
	SortBy       SortKey    `json:"sort_by"`
	NameDir      SortDir    `json:"name_dir"`
	TimeDir      SortDir    `json:"time_dir"`
	ByDifficulty bool       `json:"by_difficulty"` // airdrop only
	Presets      []string   `json:"presets"`       // active combo preset ids; empty selects all
}

// DefaultFilters returns the initial view state
func DefaultFilters() Filters {
	return Filters{
		Size:    SizeAll,
		Mode:    TypeAny,
		SortBy:  SortByTime,
		NameDir: SortAsc,
		TimeDir: SortDesc,
	}
}

// TypeSet returns the selected marker names as a set
func (f Filters) TypeSet() map[string]bool {
	if len(f.Types) == 0 {
		return nil
	}
	set := make(map[string]bool, len(f.Types))
	for _, t := range f.Types {
		set[t] = true
	}
	return set
}
