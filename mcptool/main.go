// mcptool is a command line utility for MCP2221 devices: listing attached
// chips, probing the I2C bus, driving GPIO pins and inspecting or updating
// the flash configuration.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/BertoldVdb/go-mcp2221a/mcp2221"
	"github.com/BertoldVdb/go-mcp2221a/protocol"
	"github.com/BertoldVdb/go-mcp2221a/transport"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: %s [flags] <command> [args]

Commands:
  list                     List attached devices
  info                     Show revisions and USB descriptor strings
  status                   Show engine status and bus state
  scan                     Scan the I2C bus for slaves
  read <addr> <reg> <n>    Read n bytes from a register
  write <addr> <hex>       Write bytes to a slave
  gpio                     Show the state of all pins
  gpio <pin> <0|1>         Drive a pin as output
  unlock <hex>             Send the flash access password
  reset                    Reset the device

Flags:
`, os.Args[0])
	flag.PrintDefaults()
}

func main() {
	serial := flag.String("serial", "", "USB serial number of the device to open")
	speed := flag.Uint("speed", 0, "I2C bus clock in Hz (0 keeps the current setting)")
	verbose := flag.Bool("verbose", false, "Enable verbose logging")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}
	cmd, args := flag.Arg(0), flag.Args()[1:]

	if cmd == "list" {
		for _, info := range transport.Devices(transport.VID, transport.PID) {
			fmt.Printf("%04x:%04x serial=%q product=%q\n", info.VendorID, info.ProductID, info.Serial, info.Product)
		}
		return
	}

	sess, err := transport.Open(transport.VID, transport.PID, *serial)
	if err != nil {
		log.Fatalln("Failed to open device:", err)
	}
	defer sess.Close()

	var logOut mcp2221.LogFunc
	if *verbose {
		logOut = log.Printf
	}

	dev, err := mcp2221.New(sess, mcp2221.Config{
		ExchangeTimeout: 250 * time.Millisecond,
		PollInterval:    time.Millisecond,
		PollTimeout:     500 * time.Millisecond,
		Log:             logOut,
	})
	if err != nil {
		log.Fatalln("Failed to create device:", err)
	}

	if *speed != 0 {
		if err := dev.Status.SetI2CSpeed(uint32(*speed)); err != nil {
			log.Fatalln("Failed to set bus speed:", err)
		}
	}

	if err := run(dev, cmd, args); err != nil {
		log.Fatalln(err)
	}
}

func run(dev *mcp2221.Device, cmd string, args []string) error {
	switch cmd {
	case "info":
		hw, fw, err := dev.Revisions()
		if err != nil {
			return err
		}
		fmt.Printf("Hardware revision: %s\nFirmware revision: %s\n", hw, fw)

		mfg, _ := dev.Flash.USBManufacturer()
		product, _ := dev.Flash.USBProduct()
		usbSerial, _ := dev.Flash.USBSerial()
		factory, _ := dev.Flash.FactorySerial()
		fmt.Printf("USB manufacturer:  %s\nUSB product:       %s\nUSB serial:        %s\nFactory serial:    %s\n",
			mfg, product, usbSerial, factory)
		return nil

	case "status":
		stat, err := dev.Status.Get()
		if err != nil {
			return err
		}
		fmt.Printf("Engine state: 0x%02X (idle=%v fault=%v)\n", stat.Engine.State, stat.Engine.Idle(), stat.Engine.Fault())
		fmt.Printf("Bus clock:    %d Hz\n", stat.I2CSpeedHz())
		fmt.Printf("SCL=%v SDA=%v interrupt=%v\n", stat.Engine.SCL, stat.Engine.SDA, stat.Interrupt)
		fmt.Printf("ADC: %v\n", stat.ADC)
		return nil

	case "scan":
		found, err := dev.I2C.Scan(0x08, 0x77)
		if err != nil {
			return err
		}
		if len(found) == 0 {
			fmt.Println("No slaves found")
			return nil
		}
		for _, addr := range found {
			fmt.Printf("Found slave at 0x%02X\n", addr)
		}
		return nil

	case "read":
		if len(args) != 3 {
			return fmt.Errorf("usage: read <addr> <reg> <n>")
		}
		addr, err := parseByte(args[0])
		if err != nil {
			return err
		}
		reg, err := parseByte(args[1])
		if err != nil {
			return err
		}
		n, err := strconv.Atoi(args[2])
		if err != nil {
			return err
		}
		data, err := dev.I2C.ReadReg(addr, reg, n)
		if err != nil {
			return err
		}
		fmt.Println(hex.EncodeToString(data))
		return nil

	case "write":
		if len(args) != 2 {
			return fmt.Errorf("usage: write <addr> <hex>")
		}
		addr, err := parseByte(args[0])
		if err != nil {
			return err
		}
		data, err := hex.DecodeString(args[1])
		if err != nil {
			return err
		}
		return dev.I2C.Write(addr, data)

	case "gpio":
		if len(args) == 0 {
			states, err := dev.GPIO.Values()
			if err != nil {
				return err
			}
			for i, st := range states {
				if !st.Available() {
					fmt.Printf("GP%d: alternate function\n", i)
					continue
				}
				fmt.Printf("GP%d: %v level=%d\n", i, st.Dir, st.Level)
			}
			return nil
		}
		if len(args) != 2 {
			return fmt.Errorf("usage: gpio [<pin> <0|1>]")
		}
		pin, err := strconv.Atoi(args[0])
		if err != nil {
			return err
		}
		level, err := strconv.ParseBool(args[1])
		if err != nil {
			return err
		}
		if err := dev.GPIO.SetDirection(pin, protocol.DirOutput); err != nil {
			return err
		}
		return dev.GPIO.SetOutput(pin, level)

	case "unlock":
		if len(args) != 1 {
			return fmt.Errorf("usage: unlock <hex>")
		}
		password, err := hex.DecodeString(args[0])
		if err != nil {
			return err
		}
		return dev.Flash.Unlock(password)

	case "reset":
		return dev.Reset()
	}

	return fmt.Errorf("unknown command %q", cmd)
}

func parseByte(s string) (byte, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid byte value %q", s)
	}
	return byte(v), nil
}
