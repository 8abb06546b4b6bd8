package protocol

import (
	"fmt"
	"unicode/utf16"
)

// FlashSector identifies one persistent configuration block in chip flash.
type FlashSector byte

const (
	SectorChipSettings  FlashSector = 0x00
	SectorGPSettings    FlashSector = 0x01
	SectorUSBMfg        FlashSector = 0x02
	SectorUSBProduct    FlashSector = 0x03
	SectorUSBSerial     FlashSector = 0x04
	SectorFactorySerial FlashSector = 0x05
)

func (s FlashSector) String() string {
	switch s {
	case SectorChipSettings:
		return "ChipSettings"
	case SectorGPSettings:
		return "GPSettings"
	case SectorUSBMfg:
		return "USBManufacturer"
	case SectorUSBProduct:
		return "USBProduct"
	case SectorUSBSerial:
		return "USBSerial"
	case SectorFactorySerial:
		return "FactorySerial"
	}
	return fmt.Sprintf("Sector(0x%02X)", byte(s))
}

// Fixed payload sizes of the structured sectors. The descriptor string
// sectors are length-prefixed instead and bounded by the report size.
const (
	ChipSettingsSize = 10
	GPSettingsSize   = 4

	// FlashStringMax is the longest descriptor payload a report can carry:
	// a length byte, a type byte and up to 29 UTF-16 code units.
	FlashStringMax = 29

	// FlashPasswordSize is the fixed length of the flash access password.
	FlashPasswordSize = 8
)

// writeSize returns the expected write payload length of a sector, or -1
// for the length-prefixed string sectors.
func writeSize(sector FlashSector) (int, error) {
	switch sector {
	case SectorChipSettings:
		return ChipSettingsSize, nil
	case SectorGPSettings:
		return GPSettingsSize, nil
	case SectorUSBMfg, SectorUSBProduct, SectorUSBSerial:
		return -1, nil
	case SectorFactorySerial:
		return 0, fmt.Errorf("%w: sector %v is read-only", ErrInvalidArgument, sector)
	}
	return 0, fmt.Errorf("%w: unknown flash sector 0x%02X", ErrInvalidArgument, byte(sector))
}

// EncodeFlashRead builds a read request for one sector.
func EncodeFlashRead(sector FlashSector) (Report, error) {
	if sector > SectorFactorySerial {
		return Report{}, fmt.Errorf("%w: unknown flash sector 0x%02X", ErrInvalidArgument, byte(sector))
	}
	r := newReport(CmdReadFlash)
	r[1] = byte(sector)
	return r, nil
}

// EncodeFlashWrite builds a write request for one sector. The payload length
// must match the sector's fixed size; for the descriptor string sectors the
// payload is the prefixed buffer produced by EncodeFlashString.
func EncodeFlashWrite(sector FlashSector, data []byte) (Report, error) {
	want, err := writeSize(sector)
	if err != nil {
		return Report{}, err
	}
	if want >= 0 && len(data) != want {
		return Report{}, fmt.Errorf("%w: sector %v takes %d bytes, got %d",
			ErrInvalidArgument, sector, want, len(data))
	}
	if len(data) > ReportSize-2 {
		return Report{}, fmt.Errorf("%w: sector payload %d exceeds report capacity", ErrInvalidArgument, len(data))
	}
	r := newReport(CmdWriteFlash)
	r[1] = byte(sector)
	copy(r[2:], data)
	return r, nil
}

// EncodeFlashPassword builds the password submission request that unlocks
// writes to protected sectors for the rest of the session. Shorter
// passwords are zero padded as the chip does.
func EncodeFlashPassword(password []byte) (Report, error) {
	if len(password) > FlashPasswordSize {
		return Report{}, fmt.Errorf("%w: password exceeds %d bytes", ErrInvalidArgument, FlashPasswordSize)
	}
	r := newReport(CmdSendFlashPassword)
	copy(r[2:], password)
	return r, nil
}

// DecodeFlashRead extracts a sector payload from a read response. Byte 2
// holds the payload length and the data starts at byte 4.
func DecodeFlashRead(rsp *Report) ([]byte, error) {
	if err := checkResponse(CmdReadFlash, rsp); err != nil {
		return nil, err
	}
	n := int(rsp[2])
	if n > ReportSize-4 {
		n = ReportSize - 4
	}
	data := make([]byte, n)
	copy(data, rsp[4:4+n])
	return data, nil
}

// DecodeFlashWrite validates the response of a write or password request.
func DecodeFlashWrite(cmd CommandCode, rsp *Report) error {
	return checkResponse(cmd, rsp)
}

// EncodeFlashString converts a descriptor string into the length-prefixed
// UTF-16 sector payload the chip stores.
func EncodeFlashString(s string) ([]byte, error) {
	units := utf16.Encode([]rune(s))
	if len(units) > FlashStringMax {
		return nil, fmt.Errorf("%w: descriptor exceeds %d UTF-16 units", ErrInvalidArgument, FlashStringMax)
	}
	buf := make([]byte, 2+2*len(units))
	buf[0] = byte(2 + 2*len(units))
	buf[1] = 0x03 // USB string descriptor type
	for i, u := range units {
		buf[2+2*i] = byte(u)
		buf[2+2*i+1] = byte(u >> 8)
	}
	return buf, nil
}

// DecodeFlashString parses a descriptor string sector as returned by
// DecodeFlashRead back into a Go string.
func DecodeFlashString(data []byte) string {
	if len(data) < 2 || data[0] < 2 {
		return ""
	}
	n := int(data[0]) - 2
	if n > len(data)-2 {
		n = len(data) - 2
	}
	units := make([]uint16, 0, n/2)
	for i := 2; i+1 < 2+n; i += 2 {
		units = append(units, uint16(data[i])|uint16(data[i+1])<<8)
	}
	return string(utf16.Decode(units))
}
