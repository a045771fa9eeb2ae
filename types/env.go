package types

// ------------------------
// Barometer (pressure + temperature)
// ------------------------

// BarometerParams configures a "bmp390" HAL device.
type BarometerParams struct {
	Bus  string `json:"bus"`            // bus id from HALConfig.Buses
	Addr uint16 `json:"addr,omitempty"` // defaults to 0x77
	// Mode is the intent applied at start: "off", "slow", "fast" or "faster".
	// Empty selects "slow".
	Mode string `json:"mode,omitempty"`
	// ReadIntervalMs overrides how often the HAL publishes readings. Zero
	// follows the active sampling period.
	ReadIntervalMs uint32 `json:"read_interval_ms,omitempty"`
}

type BarometerInfo struct {
	Sensor   string `json:"sensor"` // "bmp390"
	Addr     uint16 `json:"addr"`
	Bus      string `json:"bus"`
	Revision uint8  `json:"revision"`
}

// PressureValue is published retained on .../pressure/<name>/value.
type PressureValue struct {
	MilliPa int64 `json:"mpa"`
	TS      int64 `json:"ts_ns"` // when the sample was decoded
}

// TemperatureValue is published retained on .../temperature/<name>/value.
type TemperatureValue struct {
	MilliC int32 `json:"milli_c"`
	TS     int64 `json:"ts_ns"`
}

// BarometerState is published retained on .../barometer/<name>/value.
type BarometerState struct {
	Mode        string `json:"mode"`
	Acquisition string `json:"acquisition,omitempty"` // "continuous" or "one_shot"
	PeriodMs    uint32 `json:"period_ms"`
	Users       int    `json:"users"`
	Configured  bool   `json:"configured"`
	Validity    string `json:"validity"`
	Samples     uint64 `json:"samples"`
}

// ---- Controls ----

// SetMode is the payload of control/set_mode.
type SetMode struct {
	Mode string `json:"mode"`
}

// BarometerReading is the reply to control/read on the barometer capability.
type BarometerReading struct {
	Pressure    PressureValue    `json:"pressure"`
	Temperature TemperatureValue `json:"temperature"`
	Validity    string           `json:"validity"`
}
