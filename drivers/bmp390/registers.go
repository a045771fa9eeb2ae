// Package bmp390 provides a driver for the Bosch BMP390 barometric pressure
// and temperature sensor on an I²C bus.
//
// The BMP390 shares the BMP388 register map (only the chip id differs), so
// register addresses and the oversampling, output-data-rate and IIR filter
// codes are taken from tinygo.org/x/drivers/bmp388.
//
// Datasheet: https://www.bosch-sensortec.com/media/boschsensortec/downloads/datasheets/bst-bmp390-ds002.pdf
package bmp390

import "tinygo.org/x/drivers/bmp388"

// I2C addresses (SDO high / low).
const (
	Address    = 0x77
	AddressAlt = 0x76
)

// Register sub-addresses.
const (
	regChipID       = bmp388.RegChipId // R
	regRevID        = 0x01             // R
	regErr          = bmp388.RegErr    // R
	regStatus       = bmp388.RegStat   // R
	regData         = bmp388.RegPress  // R, 6 bytes: pressure[3] then temperature[3]
	regPwrCtrl      = bmp388.RegPwrCtrl
	regOSR          = bmp388.RegOSR
	regODR          = bmp388.RegODR
	regConfig       = bmp388.RegIIR
	regCmd          = bmp388.RegCmd // W
	dataBlockLength = 6
)

// Identification.
const (
	ChipID     = 0x60
	RevisionID = 0x01
)

// STATUS bits.
const (
	statusCmdReady  = 0x10
	statusPressDRDY = bmp388.DRDYPress // 0x20
	statusTempDRDY  = bmp388.DRDYTemp  // 0x40

	statusDataReady = statusPressDRDY | statusTempDRDY
)

// ERR_REG conf_err bit.
const errConf = 0x04

// PWR_CTRL: press_en (bit 0), temp_en (bit 1), mode (bits 5:4).
const (
	pwrPressEn = bmp388.PwrPress
	pwrTempEn  = bmp388.PwrTemp

	modeSleep  = 0x00
	modeForced = 0x10
	modeNormal = 0x30

	pwrSleep  = modeSleep
	pwrForced = pwrPressEn | pwrTempEn | modeForced
	pwrNormal = pwrPressEn | pwrTempEn | modeNormal
	// pwrIdle keeps both sensors enabled while the device sleeps between
	// forced conversions.
	pwrIdle = pwrPressEn | pwrTempEn | modeSleep
)

// CMD register values.
const (
	cmdFIFOFlush = 0xB0
	cmdSoftReset = bmp388.SoftReset // 0xB6
)

// IIR filter coefficient field position in CONFIG.
const configFilterShift = 1
