package mcp2221

import (
	"errors"
	"fmt"

	"github.com/BertoldVdb/go-mcp2221a/protocol"
)

// Flash manages the chip's persistent configuration sectors: power-up chip
// and GP settings, the USB descriptor strings and the factory serial.
// Writes to protected sectors fail with ErrAccessDenied until the correct
// password has been sent with Unlock. Whether access is granted is decided
// by the chip on every write; nothing is cached on the host side.
type Flash struct {
	*Device
}

// ErrAccessDenied means the chip rejected a flash operation because the
// sector is password protected or permanently locked. Send the password
// with Unlock and retry, unless the chip is locked for good.
var ErrAccessDenied = errors.New("mcp2221: flash access denied")

func flashErr(err error) error {
	var chip *protocol.ChipError
	if errors.As(err, &chip) && chip.Denied() {
		return fmt.Errorf("%w (%v, code 0x%02X)", ErrAccessDenied, chip.Cmd, chip.Code)
	}
	return err
}

// ReadSector returns the raw payload of one flash sector.
func (mod *Flash) ReadSector(sector protocol.FlashSector) ([]byte, error) {
	req, err := protocol.EncodeFlashRead(sector)
	if err != nil {
		return nil, err
	}
	rsp, err := mod.exchange(req)
	if err != nil {
		return nil, fmt.Errorf("exchange(): %w", err)
	}
	data, err := protocol.DecodeFlashRead(&rsp)
	if err != nil {
		return nil, fmt.Errorf("read flash %v: %w", sector, flashErr(err))
	}
	return data, nil
}

// WriteSector stores a raw payload into one flash sector. The payload must
// match the sector's layout; use the typed helpers below for the common
// sectors.
func (mod *Flash) WriteSector(sector protocol.FlashSector, data []byte) error {
	req, err := protocol.EncodeFlashWrite(sector, data)
	if err != nil {
		return err
	}
	rsp, err := mod.exchange(req)
	if err != nil {
		return fmt.Errorf("exchange(): %w", err)
	}
	if err := protocol.DecodeFlashWrite(protocol.CmdWriteFlash, &rsp); err != nil {
		return fmt.Errorf("write flash %v: %w", sector, flashErr(err))
	}
	mod.log("flash sector %v written (%d bytes)", sector, len(data))
	return nil
}

// Unlock submits the flash access password. On success subsequent writes to
// protected sectors are allowed until the chip resets. The chip permits only
// a limited number of wrong attempts before locking out further tries.
func (mod *Flash) Unlock(password []byte) error {
	req, err := protocol.EncodeFlashPassword(password)
	if err != nil {
		return err
	}
	rsp, err := mod.exchange(req)
	if err != nil {
		return fmt.Errorf("exchange(): %w", err)
	}
	if err := protocol.DecodeFlashWrite(protocol.CmdSendFlashPassword, &rsp); err != nil {
		return fmt.Errorf("flash unlock: %w", flashErr(err))
	}
	return nil
}

// ChipSettings returns the power-up chip settings stored in flash.
func (mod *Flash) ChipSettings() (protocol.ChipSettings, error) {
	data, err := mod.ReadSector(protocol.SectorChipSettings)
	if err != nil {
		return protocol.ChipSettings{}, err
	}
	return protocol.DecodeChipSettingsSector(data)
}

// GPSettings returns the power-up pin configuration stored in flash.
func (mod *Flash) GPSettings() ([protocol.PinCount]protocol.PinConfig, error) {
	data, err := mod.ReadSector(protocol.SectorGPSettings)
	if err != nil {
		return [protocol.PinCount]protocol.PinConfig{}, err
	}
	return protocol.DecodePinConfigs(data)
}

// SetGPSettings stores a new power-up pin configuration. It takes effect
// after the next reset.
func (mod *Flash) SetGPSettings(pins [protocol.PinCount]protocol.PinConfig) error {
	data, err := protocol.EncodePinConfigs(pins)
	if err != nil {
		return err
	}
	return mod.WriteSector(protocol.SectorGPSettings, data)
}

func (mod *Flash) readString(sector protocol.FlashSector) (string, error) {
	data, err := mod.ReadSector(sector)
	if err != nil {
		return "", err
	}
	return protocol.DecodeFlashString(data), nil
}

func (mod *Flash) writeString(sector protocol.FlashSector, s string) error {
	data, err := protocol.EncodeFlashString(s)
	if err != nil {
		return err
	}
	return mod.WriteSector(sector, data)
}

// USBManufacturer returns the USB manufacturer descriptor string.
func (mod *Flash) USBManufacturer() (string, error) {
	return mod.readString(protocol.SectorUSBMfg)
}

// SetUSBManufacturer stores a new USB manufacturer descriptor string.
func (mod *Flash) SetUSBManufacturer(s string) error {
	return mod.writeString(protocol.SectorUSBMfg, s)
}

// USBProduct returns the USB product descriptor string.
func (mod *Flash) USBProduct() (string, error) {
	return mod.readString(protocol.SectorUSBProduct)
}

// SetUSBProduct stores a new USB product descriptor string.
func (mod *Flash) SetUSBProduct(s string) error {
	return mod.writeString(protocol.SectorUSBProduct, s)
}

// USBSerial returns the USB serial number descriptor string.
func (mod *Flash) USBSerial() (string, error) {
	return mod.readString(protocol.SectorUSBSerial)
}

// SetUSBSerial stores a new USB serial number descriptor string. The chip
// only reports it during enumeration when the serial enumeration bit of the
// chip settings is set.
func (mod *Flash) SetUSBSerial(s string) error {
	return mod.writeString(protocol.SectorUSBSerial, s)
}

// FactorySerial returns the read-only factory serial number.
func (mod *Flash) FactorySerial() (string, error) {
	data, err := mod.ReadSector(protocol.SectorFactorySerial)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
