package mcp2221

import "github.com/BertoldVdb/go-mcp2221a/protocol"

// IOC is the interrupt-on-change detector attached to GP1. It latches a
// flag when the configured signal edge occurs; the flag stays set until
// cleared by the host.
type IOC struct {
	*Device
}

// Configure designates GP1 for edge detection and selects the triggering
// edges. EdgeNone disables the detector without releasing the pin.
func (mod *IOC) Configure(edge protocol.IOCEdge) error {
	if err := mod.SRAM.ConfigurePin(1, protocol.PinConfig{
		Function: protocol.FuncInterrupt,
		Dir:      protocol.DirInput,
	}); err != nil {
		return err
	}
	return mod.SRAM.Apply(protocol.SRAMSetRequest{SetInterrupt: true, InterruptEdge: edge})
}

// Triggered reports whether an edge has been detected since the flag was
// last cleared.
func (mod *IOC) Triggered() (bool, error) {
	stat, err := mod.Status.Get()
	if err != nil {
		return false, err
	}
	return stat.Interrupt, nil
}

// Clear resets the latched detection flag.
func (mod *IOC) Clear() error {
	return mod.SRAM.Apply(protocol.SRAMSetRequest{ClearInterrupt: true})
}
