package settlement

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Identity names a participant, administrator, asset or oracle.
type Identity string

func (id Identity) String() string { return string(id) }

// Valid reports whether the identity is non-empty.
func (id Identity) Valid() bool { return id != "" }

// RoomID is the registry room counter value a room was created with.
type RoomID uint64

// MaxRoomID bounds room identifiers so they stay exact as Redis sorted-set
// scores (float64) and as Postgres BIGINT keys.
const MaxRoomID RoomID = 1 << 53

func (id RoomID) String() string { return strconv.FormatUint(uint64(id), 10) }

// ParseRoomID parses a decimal room identifier.
func ParseRoomID(s string) (RoomID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil || RoomID(v) >= MaxRoomID {
		return 0, detailf(ErrInvalidIdentity, "invalid room id %q", s)
	}
	return RoomID(v), nil
}

// RoomAccount returns the custodial account that holds a room's pot.
func RoomAccount(id RoomID) Identity {
	return Identity("room:" + id.String())
}

// Status is the lifecycle phase of a room.
type Status int32

const (
	StatusNotStarted Status = iota
	StatusInProgress
	StatusEnded
)

func (s Status) String() string {
	switch s {
	case StatusNotStarted:
		return "not_started"
	case StatusInProgress:
		return "in_progress"
	case StatusEnded:
		return "ended"
	default:
		return fmt.Sprintf("status(%d)", s)
	}
}

// ParseStatus converts a status name back to a Status.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "not_started":
		return StatusNotStarted, nil
	case "in_progress":
		return StatusInProgress, nil
	case "ended":
		return StatusEnded, nil
	default:
		return StatusNotStarted, fmt.Errorf("unknown room status %q", s)
	}
}

// MarshalJSON implements json.Marshaler.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Status) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	parsed, err := ParseStatus(str)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// CanAdvanceTo reports whether next is the single forward step from s.
func (s Status) CanAdvanceTo(next Status) bool {
	return next == s+1 && next <= StatusEnded
}

// IsTerminal reports whether no further transition exists.
func (s Status) IsTerminal() bool { return s == StatusEnded }

// Asset is a whitelisted payment token and its price oracle.
type Asset struct {
	AssetID  Identity `json:"asset_id"`
	OracleID Identity `json:"oracle_id"`
}

// Registry is the global configuration shared by all rooms.
type Registry struct {
	Initialized       bool       `json:"initialized"`
	RoomCount         uint64     `json:"room_count"`
	Administrators    []Identity `json:"administrators"`
	WhitelistedAssets []Asset    `json:"whitelisted_assets"`
	CommissionRate    uint64     `json:"commission_rate"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Clone returns a deep copy.
func (r Registry) Clone() Registry {
	out := r
	out.Administrators = append([]Identity(nil), r.Administrators...)
	out.WhitelistedAssets = append([]Asset(nil), r.WhitelistedAssets...)
	return out
}

// Entry is one recorded contribution. AssetID is empty for native deposits.
type Entry struct {
	Participant   Identity  `json:"participant"`
	WeightedValue uint64    `json:"weighted_value"`
	AssetID       Identity  `json:"asset_id,omitempty"`
	RawAmount     uint64    `json:"raw_amount"`
	PriceFactor   uint64    `json:"price_factor"`
	CreatedAt     time.Time `json:"created_at"`
}

// IsNative reports whether the entry was a native-asset deposit.
func (e Entry) IsNative() bool { return e.AssetID == "" }

// DrawResult records how a winner was chosen.
type DrawResult struct {
	OracleID    Identity `json:"oracle_id"`
	RandomValue uint64   `json:"random_value"`
	Target      uint64   `json:"target"`
	Total       uint64   `json:"total"`
	WinnerIndex int      `json:"winner_index"`
	Proof       string   `json:"proof,omitempty"`
}

// Room is one lottery round.
type Room struct {
	ID         RoomID      `json:"id"`
	Status     Status      `json:"status"`
	MinLimit   uint64      `json:"min_limit"`
	MaxLimit   uint64      `json:"max_limit"`
	Entries    []Entry     `json:"entries"`
	Total      uint64      `json:"total"`
	Winner     Identity    `json:"winner,omitempty"`
	Draw       *DrawResult `json:"draw,omitempty"`
	Settled    bool        `json:"settled"`
	Settlement *Settlement `json:"settlement,omitempty"`
	CreatedBy  Identity    `json:"created_by"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
	EndedAt    *time.Time  `json:"ended_at,omitempty"`
	SettledAt  *time.Time  `json:"settled_at,omitempty"`
}

// HasWinner reports whether a winner has been assigned.
func (r Room) HasWinner() bool { return r.Winner != "" }

// Clone returns a deep copy.
func (r Room) Clone() Room {
	out := r
	out.Entries = append([]Entry(nil), r.Entries...)
	if r.Draw != nil {
		d := *r.Draw
		out.Draw = &d
	}
	if r.Settlement != nil {
		s := r.Settlement.clone()
		out.Settlement = &s
	}
	if r.EndedAt != nil {
		t := *r.EndedAt
		out.EndedAt = &t
	}
	if r.SettledAt != nil {
		t := *r.SettledAt
		out.SettledAt = &t
	}
	return out
}
