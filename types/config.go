package types

// MetricsConfig is published on "config/metrics".
type MetricsConfig struct {
	Listen    string `json:"listen"`              // e.g. ":9109", empty disables HTTP
	Namespace string `json:"namespace,omitempty"` // defaults to "barometer"
}

// ConsoleConfig is published on "config/console".
type ConsoleConfig struct {
	Enabled bool   `json:"enabled"`
	Prompt  string `json:"prompt,omitempty"`
	Device  string `json:"device,omitempty"` // HAL device id the commands address
}
