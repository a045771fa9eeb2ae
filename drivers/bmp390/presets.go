package bmp390

import (
	"time"

	"tinygo.org/x/drivers/bmp388"
)

// Intent is the caller-facing sampling rate/power trade-off.
type Intent uint8

const (
	Disabled Intent = iota
	Slow            // one forced sample per minute (weather monitor)
	Fast            // 12.5 Hz continuous (handheld low power)
	Faster          // 50 Hz continuous (handheld dynamic)
	intentCount
)

func (i Intent) String() string {
	switch i {
	case Disabled:
		return "off"
	case Slow:
		return "slow"
	case Fast:
		return "fast"
	case Faster:
		return "faster"
	default:
		return "invalid"
	}
}

// ParseIntent accepts the names produced by Intent.String, plus "disabled".
func ParseIntent(s string) (Intent, error) {
	switch s {
	case "off", "disabled":
		return Disabled, nil
	case "slow":
		return Slow, nil
	case "fast":
		return Fast, nil
	case "faster":
		return Faster, nil
	}
	return Disabled, ErrInvalidIntent
}

// Preset names one experimentally derived device configuration.
type Preset uint8

const (
	PresetHandheldLowPower Preset = iota
	PresetHandheldDynamic
	PresetWeatherMonitor
	PresetDropDetection
	PresetIndoorNavigation
	PresetDrone
	PresetIndoorLocalization
	presetCount
)

// Acquisition selects how conversions are started.
type Acquisition uint8

const (
	// Continuous runs the device in normal mode; it converts at the ODR.
	Continuous Acquisition = iota
	// OneShot keeps the device asleep; every poll triggers one forced conversion.
	OneShot
)

func (a Acquisition) String() string {
	if a == OneShot {
		return "one_shot"
	}
	return "continuous"
}

// SensorConfig is one preset row. Values are datasheet register codes.
type SensorConfig struct {
	PressureOversampling    bmp388.Oversampling
	TemperatureOversampling bmp388.Oversampling
	Filter                  bmp388.FilterCoefficient
	ODR                     bmp388.OutputDataRate
	Acquisition             Acquisition
	Period                  time.Duration // polling period, 0 disables polling
}

// Forced reports whether each measurement must be triggered explicitly.
func (c SensorConfig) Forced() bool { return c.Acquisition == OneShot }

// osrValue is the OSR register byte: osr_p in bits 2:0, osr_t in bits 5:3.
func (c SensorConfig) osrValue() byte {
	return byte(c.PressureOversampling) | byte(c.TemperatureOversampling)<<3
}

// configValue is the CONFIG register byte: iir_filter in bits 3:1.
func (c SensorConfig) configValue() byte {
	return byte(c.Filter) << configFilterShift
}

func (c SensorConfig) odrValue() byte { return byte(c.ODR) }

var presets = [presetCount]SensorConfig{
	PresetHandheldLowPower:   {bmp388.Sampling8X, bmp388.Sampling1X, bmp388.Coeff1, bmp388.Odr12p5, Continuous, 80 * time.Millisecond},
	PresetHandheldDynamic:    {bmp388.Sampling4X, bmp388.Sampling1X, bmp388.Coeff3, bmp388.Odr50, Continuous, 20 * time.Millisecond},
	PresetWeatherMonitor:     {bmp388.Sampling1X, bmp388.Sampling1X, bmp388.Coeff0, bmp388.Odr200, OneShot, 60 * time.Second},
	PresetDropDetection:      {bmp388.Sampling2X, bmp388.Sampling1X, bmp388.Coeff0, bmp388.Odr100, Continuous, 10 * time.Millisecond},
	PresetIndoorNavigation:   {bmp388.Sampling16X, bmp388.Sampling2X, bmp388.Coeff3, bmp388.Odr25, Continuous, 50 * time.Millisecond},
	PresetDrone:              {bmp388.Sampling4X, bmp388.Sampling1X, bmp388.Coeff1, bmp388.Odr50, Continuous, 20 * time.Millisecond},
	PresetIndoorLocalization: {bmp388.Sampling1X, bmp388.Sampling1X, bmp388.Coeff3, bmp388.Odr1p5, Continuous, 667 * time.Millisecond},
}

var intentPresets = [intentCount]Preset{
	Disabled: presetCount, // no row
	Slow:     PresetWeatherMonitor,
	Fast:     PresetHandheldLowPower,
	Faster:   PresetHandheldDynamic,
}

// PresetConfig returns the configuration row for p.
func PresetConfig(p Preset) (SensorConfig, error) {
	if p >= presetCount {
		return SensorConfig{}, ErrInvalidPreset
	}
	return presets[p], nil
}

// Preset returns the preset implementing i. Disabled has none.
func (i Intent) Preset() (Preset, error) {
	if i >= intentCount || intentPresets[i] >= presetCount {
		return presetCount, ErrInvalidIntent
	}
	return intentPresets[i], nil
}

// IntentConfig resolves the configuration row for a non-disabled intent.
func IntentConfig(i Intent) (SensorConfig, error) {
	p, err := i.Preset()
	if err != nil {
		return SensorConfig{}, err
	}
	return PresetConfig(p)
}
