package config

// -----------------------------------------------------------------------------
// Embedded configuration
//
// Key: target name (same value placed in ctx under CtxDeviceKey)
// Val: raw JSON bytes for that target
// -----------------------------------------------------------------------------

// Raspberry Pi style host: the sensor on /dev/i2c-1, periph picks the backend.
const cfgLinux = `{
  "hal": {
    "buses": [
      {"id": "i2c1", "name": "1", "number": 1}
    ],
    "devices": [
      {"id": "baro0", "type": "bmp390", "params": {"bus": "i2c1", "addr": 119, "mode": "slow"}}
    ]
  },
  "metrics": {"listen": ":9109"},
  "console": {"enabled": true, "prompt": "> ", "device": "baro0"},
  "heartbeat": {"interval": 60}
}`

// Emulated sensor for development without hardware.
const cfgSim = `{
  "hal": {
    "buses": [
      {"id": "i2c1", "backend": "sim"}
    ],
    "devices": [
      {"id": "baro0", "type": "bmp390", "params": {"bus": "i2c1", "mode": "fast", "read_interval_ms": 1000}}
    ]
  },
  "metrics": {"listen": "127.0.0.1:9109"},
  "console": {"enabled": true, "prompt": "> ", "device": "baro0"},
  "heartbeat": {"interval": 5}
}`

var embeddedConfigs = map[string][]byte{
	"linux": []byte(cfgLinux),
	"sim":   []byte(cfgSim),
}
