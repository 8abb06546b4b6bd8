// Package mcp2221 drives the Microchip MCP2221/MCP2221A USB to I2C/UART
// protocol converters over their HID command channel. It covers the I2C
// engine, GPIO, the ADC/DAC, interrupt detection, SRAM settings and flash
// memory; the UART side of the chip is a CDC device and is not handled
// here.
//
// A Device is created on top of an open transport session and exposes the
// chip modules as fields:
//
//	sess, err := transport.Open(transport.VID, transport.PID, "")
//	...
//	dev, err := mcp2221.New(sess, mcp2221.Config{
//		ExchangeTimeout: 250 * time.Millisecond,
//		PollInterval:    time.Millisecond,
//		PollTimeout:     100 * time.Millisecond,
//	})
//	...
//	data, err := dev.I2C.ReadReg(0x50, 0x00, 16)
package mcp2221

import (
	"errors"
	"fmt"
	"time"

	"github.com/BertoldVdb/go-mcp2221a/protocol"
)

// LogFunc receives diagnostic messages. A nil LogFunc disables logging.
type LogFunc func(format string, params ...interface{})

// Exchanger is the transport surface the device needs: one serialized
// request/response exchange plus a fire-and-forget send for the reset
// command. *transport.Session implements it; tests script it.
type Exchanger interface {
	Exchange(req protocol.Report, timeout time.Duration) (protocol.Report, error)
	Send(req protocol.Report) error
}

// Config carries the timing parameters of a device. All three durations are
// mandatory: a missing timeout is a configuration error, not an infinite
// wait.
type Config struct {
	// ExchangeTimeout bounds every single report exchange.
	ExchangeTimeout time.Duration

	// PollInterval is the delay between I2C engine status polls.
	PollInterval time.Duration

	// PollTimeout bounds the polling phase of one I2C transaction. When it
	// lapses the transaction is cancelled and ErrPollTimeout returned.
	PollTimeout time.Duration

	// Log receives diagnostic messages (optional).
	Log LogFunc
}

func (c Config) validate() error {
	if c.ExchangeTimeout <= 0 {
		return errors.New("mcp2221: ExchangeTimeout not configured")
	}
	if c.PollInterval <= 0 {
		return errors.New("mcp2221: PollInterval not configured")
	}
	if c.PollTimeout <= 0 {
		return errors.New("mcp2221: PollTimeout not configured")
	}
	return nil
}

// Device is the handle to one chip. The exported fields are the on-chip
// modules; all of them share the device's session and configuration. No
// value returned by any module retains a reference to the device.
type Device struct {
	session Exchanger
	cfg     Config

	// sleep is swapped out by tests to run the poll loop without real
	// delays.
	sleep func(time.Duration)

	Status *Status
	I2C    *I2C
	Flash  *Flash
	GPIO   *GPIO
	SRAM   *SRAM
	ADC    *ADC
	DAC    *DAC
	IOC    *IOC
}

// New wraps an open session. The session stays owned by the caller and must
// outlive the device.
func New(session Exchanger, cfg Config) (*Device, error) {
	if session == nil {
		return nil, errors.New("mcp2221: nil session")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	d := &Device{
		session: session,
		cfg:     cfg,
		sleep:   time.Sleep,
	}
	d.Status = &Status{d}
	d.I2C = &I2C{d}
	d.Flash = &Flash{d}
	d.GPIO = &GPIO{d}
	d.SRAM = &SRAM{d}
	d.ADC = &ADC{d}
	d.DAC = &DAC{d}
	d.IOC = &IOC{d}
	return d, nil
}

func (d *Device) log(format string, params ...interface{}) {
	if d.cfg.Log != nil {
		d.cfg.Log(format, params...)
	}
}

// exchange performs one serialized exchange with the configured timeout.
func (d *Device) exchange(req protocol.Report) (protocol.Report, error) {
	return d.session.Exchange(req, d.cfg.ExchangeTimeout)
}

// Revisions returns the hardware and firmware revision strings of the chip.
func (d *Device) Revisions() (hw string, fw string, err error) {
	stat, err := d.Status.Get()
	if err != nil {
		return "", "", err
	}
	return stat.HardwareRevision(), stat.FirmwareRevision(), nil
}

// Reset sends the chip reset frame. The chip does not respond; it drops off
// the bus and re-enumerates with its power-up configuration, which also
// clears any flash password acceptance. The call returns as soon as the
// frame was transmitted. The underlying session is dead afterwards and must
// be closed and reopened by the caller.
func (d *Device) Reset() error {
	d.log("resetting chip, session handle becomes invalid")
	if err := d.session.Send(protocol.EncodeReset()); err != nil {
		return fmt.Errorf("send(): %w", err)
	}
	return nil
}
