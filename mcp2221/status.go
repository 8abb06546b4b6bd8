package mcp2221

import (
	"fmt"

	"github.com/BertoldVdb/go-mcp2221a/protocol"
)

// Status exposes the chip status register and the set-parameters command.
// Its Get method is the single decode path the I2C manager polls, so it
// stays allocation-free.
type Status struct {
	*Device
}

// Get reads and decodes the device status snapshot.
func (mod *Status) Get() (protocol.DeviceStatus, error) {
	rsp, err := mod.exchange(protocol.EncodeStatus())
	if err != nil {
		return protocol.DeviceStatus{}, err
	}
	return protocol.DecodeStatus(&rsp)
}

// SetParameters applies the requested parameter changes and returns the
// status snapshot carried by the same response.
func (mod *Status) SetParameters(req protocol.SetParametersRequest) (protocol.DeviceStatus, error) {
	cmd, err := protocol.EncodeSetParameters(req)
	if err != nil {
		return protocol.DeviceStatus{}, err
	}
	rsp, err := mod.exchange(cmd)
	if err != nil {
		return protocol.DeviceStatus{}, err
	}
	return protocol.DecodeStatus(&rsp)
}

// SetI2CSpeed reconfigures the I2C bus clock. The chip rejects the change
// while a transfer is running.
func (mod *Status) SetI2CSpeed(hz uint32) error {
	stat, err := mod.SetParameters(protocol.SetParametersRequest{I2CSpeedHz: hz})
	if err != nil {
		return err
	}
	if stat.SpeedResult == protocol.SpeedRejected {
		return fmt.Errorf("mcp2221: speed change rejected, transfer in progress")
	}
	return nil
}

// I2CSpeed reads back the currently active I2C bus clock in Hz.
func (mod *Status) I2CSpeed() (uint32, error) {
	stat, err := mod.Get()
	if err != nil {
		return 0, err
	}
	return stat.I2CSpeedHz(), nil
}
