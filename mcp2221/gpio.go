package mcp2221

import (
	"errors"
	"fmt"

	"github.com/BertoldVdb/go-mcp2221a/protocol"
)

// GPIO drives the four general purpose pins while they are designated as
// plain GPIO. Level and direction changes act on the live pins; use
// Configure to switch a pin between GPIO and its alternate functions, and
// Flash.SetGPSettings to change what the pins do after power-up.
type GPIO struct {
	*Device
}

// ErrPinNotGPIO means the pin currently runs an alternate function and has
// no GPIO state to report or change.
var ErrPinNotGPIO = errors.New("mcp2221: pin not in GPIO operation")

func checkPin(pin int) error {
	if pin < 0 || pin >= protocol.PinCount {
		return fmt.Errorf("%w: pin %d", protocol.ErrInvalidArgument, pin)
	}
	return nil
}

// Set applies a batch of level and direction changes in one command. Pins
// whose update has no flag set are left untouched.
func (mod *GPIO) Set(updates [protocol.PinCount]protocol.PinUpdate) error {
	req, err := protocol.EncodeGPIOSet(updates)
	if err != nil {
		return err
	}
	rsp, err := mod.exchange(req)
	if err != nil {
		return fmt.Errorf("exchange(): %w", err)
	}
	return protocol.DecodeGPIOSet(&rsp)
}

// SetOutput drives one pin to the given logic level.
func (mod *GPIO) SetOutput(pin int, high bool) error {
	if err := checkPin(pin); err != nil {
		return err
	}
	var updates [protocol.PinCount]protocol.PinUpdate
	updates[pin].SetLevel = true
	if high {
		updates[pin].Level = 1
	}
	return mod.Set(updates)
}

// SetDirection switches one pin between input and output.
func (mod *GPIO) SetDirection(pin int, dir protocol.Direction) error {
	if err := checkPin(pin); err != nil {
		return err
	}
	var updates [protocol.PinCount]protocol.PinUpdate
	updates[pin].SetDir = true
	updates[pin].Dir = dir
	return mod.Set(updates)
}

// Values returns the immediate state of all four pins. Pins running an
// alternate function report their "not available" sentinels.
func (mod *GPIO) Values() ([protocol.PinCount]protocol.PinState, error) {
	rsp, err := mod.exchange(protocol.EncodeGPIOGet())
	if err != nil {
		return [protocol.PinCount]protocol.PinState{}, fmt.Errorf("exchange(): %w", err)
	}
	return protocol.DecodeGPIOGet(&rsp)
}

// Value returns the immediate state of one pin. It fails with ErrPinNotGPIO
// when the pin runs an alternate function.
func (mod *GPIO) Value(pin int) (protocol.PinState, error) {
	if err := checkPin(pin); err != nil {
		return protocol.PinState{}, err
	}
	states, err := mod.Values()
	if err != nil {
		return protocol.PinState{}, err
	}
	if !states[pin].Available() {
		return states[pin], fmt.Errorf("%w: pin %d", ErrPinNotGPIO, pin)
	}
	return states[pin], nil
}

// Configure designates one pin, switching it between plain GPIO and its
// alternate functions. This is a volatile change routed through the SRAM
// settings.
func (mod *GPIO) Configure(pin int, cfg protocol.PinConfig) error {
	return mod.SRAM.ConfigurePin(pin, cfg)
}
