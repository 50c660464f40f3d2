package protocol

// Zone event actions.
const (
	ActionClaim           = "CLAIM"
	ActionRelease         = "RELEASE"
	ActionClearWorld      = "CLEAR_WORLD"
	ActionInvalidateCache = "INVALIDATE_CACHE"
)

// ZoneEvent records one ownership/zone mutation. It is the audit log record, the sqlite
// index row source, and the observer stream message.
type ZoneEvent struct {
	Type string `json:"type"`
	Seq  uint64 `json:"seq"`
	Time string `json:"time"`

	World  string  `json:"world,omitempty"`
	Kind   string  `json:"kind,omitempty"`
	Action string  `json:"action"`
	Anchor *[3]int `json:"anchor,omitempty"`

	Requested int      `json:"requested,omitempty"`
	Granted   int      `json:"granted,omitempty"`
	Changed   int      `json:"changed,omitempty"`
	Gravity   *float64 `json:"gravity,omitempty"`
	// Coords lists coordinates whose ownership changed hands.
	Coords [][3]int `json:"coords,omitempty"`
	Reason string   `json:"reason,omitempty"`
}

// WELCOME (server -> observer)
type WelcomeMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	SessionID       string   `json:"session_id"`
	Worlds          []string `json:"worlds"`
}

// HELLO (observer -> server)
type HelloMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	ObserverName    string   `json:"observer_name,omitempty"`
	Worlds          []string `json:"worlds,omitempty"`
}

type ApplyReq struct {
	World  string   `json:"world"`
	Anchor [3]int   `json:"anchor"`
	Coords [][3]int `json:"coords"`
	// Gravity is required for gravity applies and ignored for oxygen.
	Gravity *float64 `json:"gravity,omitempty"`
}

type ApplyResp struct {
	Granted [][3]int `json:"granted"`
	Denied  int      `json:"denied"`
}

type RemoveReq struct {
	World  string `json:"world"`
	Anchor [3]int `json:"anchor"`
}

type RemoveResp struct {
	Released int `json:"released"`
}

type UnloadReq struct {
	World string `json:"world"`
}

type ProbeResp struct {
	World             string   `json:"world"`
	Pos               [3]int   `json:"pos"`
	OxygenOwner       *[3]int  `json:"oxygen_owner,omitempty"`
	GravityOwner      *[3]int  `json:"gravity_owner,omitempty"`
	DefaultAtmosphere bool     `json:"default_atmosphere"`
	OxygenZone        bool     `json:"oxygen_zone"`
	Breathable        bool     `json:"breathable"`
	Gravity           *float64 `json:"gravity,omitempty"`
}

type WorldStats struct {
	World           string `json:"world"`
	OxygenOccupied  int    `json:"oxygen_occupied"`
	GravityOccupied int    `json:"gravity_occupied"`
	OxygenZones     int    `json:"oxygen_zones"`
	GravityZones    int    `json:"gravity_zones"`
}

type StateResp struct {
	ProtocolVersion string       `json:"protocol_version"`
	PlanetsDigest   string       `json:"planets_digest,omitempty"`
	Worlds          []WorldStats `json:"worlds"`
}

type ErrorResp struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
