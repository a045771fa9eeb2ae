package bmp390

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/physic"
	"tinygo.org/x/drivers"
)

// STATUS is polled every resetPoll, at most resetPolls times, for cmd_rdy
// after a soft reset.
const (
	resetPoll  = 200 * time.Microsecond
	resetPolls = 25
)

// Config controls non-hardware behaviour. All fields are optional.
type Config struct {
	// Address defaults to 0x77 if zero.
	Address uint16
	// BusLock brackets every register transaction. Share one lock between all
	// devices on the same bus. Default: a private mutex.
	BusLock sync.Locker
	// Logger defaults to the logrus standard logger.
	Logger logrus.FieldLogger
	// Clock drives polling. Default SystemClock.
	Clock Clock
	// DefaultIntent is applied by StartSampling. Default Fast.
	DefaultIntent Intent
}

// Device is one BMP390. All methods are safe for concurrent use; bus
// transactions run with the state lock held, so a caller (or the poller) can
// block for the length of a full preset write sequence.
type Device struct {
	mu    sync.Mutex
	regs  regs
	log   logrus.FieldLogger
	clock Clock
	start Intent

	initialized bool
	configOnce  bool
	users       int
	intent      Intent
	cfg         SensorConfig // valid iff intent != Disabled
	configured  bool         // last preset application completed
	ready       bool         // STATUS latched both DRDY bits
	reading     Reading
	samples     uint64

	timer   Timer
	period  time.Duration
	pollGen uint32

	block [dataBlockLength]byte
}

// New creates a driver for the device behind bus. It does not touch the bus.
func New(bus drivers.I2C, cfg Config) *Device {
	if cfg.Address == 0 {
		cfg.Address = Address
	}
	if cfg.BusLock == nil {
		cfg.BusLock = new(sync.Mutex)
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	if cfg.DefaultIntent == Disabled || cfg.DefaultIntent >= intentCount {
		cfg.DefaultIntent = Fast
	}
	return &Device{
		regs:  regs{i2c: bus, addr: cfg.Address, lock: cfg.BusLock},
		log:   cfg.Logger.WithField("driver", "bmp390"),
		clock: cfg.Clock,
		start: cfg.DefaultIntent,
	}
}

// Init probes the chip id and puts the device to sleep. Until Init succeeds
// every other operation except Status and Configure panics. Calling Init again
// after success is a no-op.
func (d *Device) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.initialized {
		return nil
	}
	id, err := d.regs.readByte(regChipID)
	if err != nil {
		d.log.WithError(err).Debug("probe failed")
		return &ProbeError{Err: err}
	}
	if id != ChipID {
		d.log.WithField("chip_id", id).Debug("probe failed: unexpected chip id")
		return &ProbeError{Got: id}
	}
	if err := d.regs.write(regPwrCtrl, pwrSleep); err != nil {
		return err
	}
	d.initialized = true
	d.log.WithField("addr", d.regs.addr).Debug("probe ok")
	return nil
}

// Initialized reports whether Init has succeeded.
func (d *Device) Initialized() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.initialized
}

// Configure starts slow background sampling the first time it is called on
// an initialized, idle device, holding its own use reference. Later calls
// are no-ops.
func (d *Device) Configure() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized || d.configOnce || d.intent != Disabled {
		return nil
	}
	d.users++
	if err := d.changeModeLocked(Slow); err != nil {
		d.users--
		return err
	}
	d.configOnce = true
	return nil
}

func (d *Device) mustInit() {
	if !d.initialized {
		panic(ErrNotInitialized)
	}
}

// Use takes a reference. It does not change the sampling mode.
func (d *Device) Use() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mustInit()
	d.users++
}

// StartSampling takes a reference and, if the sensor is off, switches to the
// default intent. A failure leaves the reference held.
func (d *Device) StartSampling() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mustInit()
	d.users++
	if d.intent != Disabled {
		return nil
	}
	return d.changeModeLocked(d.start)
}

// Release drops a reference. Dropping the last one turns sampling off; the
// driver is off afterwards even when the device did not accept the sleep
// command, in which case the bus error is returned.
func (d *Device) Release() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mustInit()
	if d.users == 0 {
		panic("bmp390: release without use")
	}
	d.users--
	if d.users > 0 {
		return nil
	}
	return d.disableLocked(true)
}

// Users returns the reference count.
func (d *Device) Users() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.users
}

// ChangeMode applies intent. With no references held a valid request
// succeeds without touching the device.
func (d *Device) ChangeMode(intent Intent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mustInit()
	return d.changeModeLocked(intent)
}

func (d *Device) changeModeLocked(intent Intent) error {
	var cfg SensorConfig
	if intent != Disabled {
		c, err := IntentConfig(intent)
		if err != nil {
			return err
		}
		cfg = c
	}
	if d.users == 0 {
		return nil
	}
	if intent == Disabled {
		return d.disableLocked(false)
	}
	if err := d.applyLocked(cfg); err != nil {
		d.configured = false
		return err
	}
	d.intent = intent
	return nil
}

// disableLocked puts the device to sleep and stops polling. Unless force is
// set a failed sleep write leaves all state untouched.
func (d *Device) disableLocked(force bool) error {
	err := d.regs.write(regPwrCtrl, pwrSleep)
	if err != nil {
		if !force {
			return err
		}
		d.log.WithError(err).Error("failed to put sensor to sleep")
	}
	d.stopPollingLocked()
	d.intent = Disabled
	d.cfg = SensorConfig{}
	d.configured = false
	d.ready = false
	if d.reading.Validity == Fresh {
		d.reading.Validity = Stale
	}
	return err
}

// applyLocked writes one preset row and (re)arms polling.
func (d *Device) applyLocked(cfg SensorConfig) error {
	pwr := byte(pwrNormal)
	if cfg.Forced() {
		pwr = pwrIdle
	}
	steps := [...]struct {
		name     string
		reg, val byte
	}{
		{"oversampling", regOSR, cfg.osrValue()},
		{"filter", regConfig, cfg.configValue()},
		{"output data rate", regODR, cfg.odrValue()},
		{"power mode", regPwrCtrl, pwr},
	}
	for _, s := range steps {
		if err := d.regs.write(s.reg, s.val); err != nil {
			d.log.WithError(err).WithField("step", s.name).Error("preset write failed")
			return err
		}
	}
	e, err := d.regs.readByte(regErr)
	if err != nil {
		return err
	}
	if e&errConf != 0 {
		d.log.WithField("err_reg", e).Error("device rejected configuration")
		return ErrConfig
	}
	d.setPeriodLocked(cfg.Period)
	d.cfg = cfg
	d.configured = true
	return nil
}

// ReadData returns the latest decoded reading. With no fresh reading cached
// it tries one decode. While the sensor is off it returns ErrSensorOff.
func (d *Device) ReadData() (Reading, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mustInit()
	if d.intent == Disabled {
		return Reading{}, ErrSensorOff
	}
	if d.freshLocked() {
		return d.reading, nil
	}
	if d.reading.Validity == Fresh {
		d.reading.Validity = Stale
	}
	return d.sampleLocked()
}

// freshLocked reports whether the cached reading is within two periods.
func (d *Device) freshLocked() bool {
	if d.reading.Validity != Fresh {
		return false
	}
	if d.cfg.Period <= 0 {
		return true
	}
	return d.clock.Now().Sub(d.reading.At) <= 2*d.cfg.Period
}

// Pressure returns the last decoded pressure.
func (d *Device) Pressure() physic.Pressure {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mustInit()
	return d.reading.Pressure
}

// Temperature returns the last decoded temperature.
func (d *Device) Temperature() physic.Temperature {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mustInit()
	return d.reading.Temperature
}

// SamplingMode returns the current intent.
func (d *Device) SamplingMode() Intent {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mustInit()
	return d.intent
}

// Status is a snapshot of the driver state.
type Status struct {
	Initialized bool
	Users       int
	Intent      Intent
	Configured  bool
	Acquisition Acquisition
	Period      time.Duration
	Validity    Validity
	Samples     uint64
}

// Status never touches the bus and may be called before Init.
func (d *Device) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := Status{
		Initialized: d.initialized,
		Users:       d.users,
		Intent:      d.intent,
		Configured:  d.configured,
		Period:      d.period,
		Validity:    d.reading.Validity,
		Samples:     d.samples,
	}
	if d.intent != Disabled {
		s.Acquisition = d.cfg.Acquisition
	}
	if s.Validity == Fresh && !d.freshLocked() {
		s.Validity = Stale
	}
	return s
}

// Revision reads REV_ID.
func (d *Device) Revision() (byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mustInit()
	return d.regs.readByte(regRevID)
}

// Reset soft-resets the device and re-applies the active preset, if any.
func (d *Device) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mustInit()
	if err := d.regs.write(regCmd, cmdSoftReset); err != nil {
		return err
	}
	d.ready = false
	if err := d.waitCmdReadyLocked(); err != nil {
		d.configured = false
		return err
	}
	if d.intent == Disabled {
		return nil
	}
	if err := d.applyLocked(d.cfg); err != nil {
		d.configured = false
		return err
	}
	return nil
}

// waitCmdReadyLocked polls STATUS until the device accepts commands again.
// Bus errors while the device restarts are retried.
func (d *Device) waitCmdReadyLocked() error {
	var err error
	for i := 0; i < resetPolls; i++ {
		var st byte
		if st, err = d.regs.readByte(regStatus); err == nil && st&statusCmdReady != 0 {
			return nil
		}
		time.Sleep(resetPoll)
	}
	if err != nil {
		return err
	}
	return ErrResetTimeout
}

// FlushFIFO clears the on-chip FIFO.
func (d *Device) FlushFIFO() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mustInit()
	return d.regs.write(regCmd, cmdFIFOFlush)
}
