package transport

import (
	"fmt"

	usb "github.com/karalabe/hid"
)

// VID and PID are the identifiers the chip enumerates with out of the box.
// Both can be reprogrammed in flash, so the open helpers accept overrides.
const (
	VID = 0x04D8 // Microchip Technology Inc.
	PID = 0x00DD // MCP2221/MCP2221A
)

// Devices returns the HID descriptors of all attached chips matching the
// given identifiers. Pass VID and PID for factory-programmed parts.
func Devices(vid, pid uint16) []usb.DeviceInfo {
	return usb.Enumerate(vid, pid)
}

// Open opens the first attached chip whose serial number matches, or the
// first chip found when serial is empty, and wraps it in a session.
func Open(vid, pid uint16, serial string) (*Session, error) {
	for _, info := range usb.Enumerate(vid, pid) {
		if serial != "" && info.Serial != serial {
			continue
		}
		dev, err := info.Open()
		if err != nil {
			return nil, fmt.Errorf("transport: open %04x:%04x: %w", vid, pid, err)
		}
		return NewSession(dev), nil
	}
	if serial != "" {
		return nil, fmt.Errorf("transport: no device %04x:%04x with serial %q", vid, pid, serial)
	}
	return nil, fmt.Errorf("transport: no device %04x:%04x attached", vid, pid)
}
