package types

// ------------------------
// Capability addressing & kinds
// ------------------------

type Kind string

const (
	KindPressure    Kind = "pressure"
	KindTemperature Kind = "temperature"
	KindBarometer   Kind = "barometer" // driver lifecycle state
)

// CapabilityAddress identifies a public capability on the bus.
type CapabilityAddress struct {
	Domain string `json:"domain"` // e.g. "env"
	Kind   Kind   `json:"kind"`
	Name   string `json:"name"`
}

// ------------------------
// Common HAL state (retained)
// ------------------------

type HALState struct {
	Level  string `json:"level"`  // "idle", "ready", "stopped"
	Status string `json:"status"` // freeform short code
	TS     int64  `json:"ts_ns"`
}

// Link is the link/state reported for a capability.
type Link string

const (
	LinkUp       Link = "up"
	LinkDown     Link = "down"
	LinkDegraded Link = "degraded"
)

type CapabilityStatus struct {
	Link  Link   `json:"link"`
	TS    int64  `json:"ts_ns"`
	Error string `json:"error,omitempty"` // machine-readable short code
}

// ------------------------
// HAL configuration (topic "config/hal")
// ------------------------

type HALConfig struct {
	Buses   []BusConfig `json:"buses"`
	Devices []HALDevice `json:"devices"`
}

// BusConfig declares one I²C bus. Backend is "periph", "embd" or "sim".
type BusConfig struct {
	ID      string `json:"id"`             // e.g. "i2c1"
	Backend string `json:"backend"`        // empty => service default
	Name    string `json:"name,omitempty"` // periph: i2creg name, "" for first bus
	Number  byte   `json:"number"`         // embd: /dev/i2c-<n>
}

type HALDevice struct {
	ID     string `json:"id"`     // logical device id, e.g. "baro0"
	Type   string `json:"type"`   // e.g. "bmp390"
	Params any    `json:"params"` // device-specific params (JSON-like)
}

// ------------------------
// Generic replies
// ------------------------

type OKReply struct {
	OK bool `json:"ok"`
}

type ErrorReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// ------------------------
// Info envelope (retained)
// ------------------------

type Info struct {
	SchemaVersion int    `json:"schema_version"`
	Driver        string `json:"driver"`
	Detail        any    `json:"detail,omitempty"`
}
