// periphdemo registers an attached MCP2221 in the periph.io registries and
// drives it through the generic periph APIs, the same way a platform bus
// would be used. It probes one device on the bus and toggles GP0.
package main

import (
	"flag"
	"io"
	"log"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/BertoldVdb/go-mcp2221a/mcp2221"
	"github.com/BertoldVdb/go-mcp2221a/mcp2221/periphbus"
	"github.com/BertoldVdb/go-mcp2221a/transport"
)

func main() {
	serial := flag.String("serial", "", "USB serial number of the device to open")
	addr := flag.Uint("addr", 0x50, "I2C address to probe")
	flag.Parse()

	if _, err := host.Init(); err != nil {
		log.Fatalln("Failed to init host:", err)
	}

	err := periphbus.RegisterBus("mcp2221", -1, func() (*mcp2221.Device, io.Closer, error) {
		sess, err := transport.Open(transport.VID, transport.PID, *serial)
		if err != nil {
			return nil, nil, err
		}
		dev, err := mcp2221.New(sess, mcp2221.Config{
			ExchangeTimeout: 250 * time.Millisecond,
			PollInterval:    time.Millisecond,
			PollTimeout:     500 * time.Millisecond,
		})
		if err != nil {
			sess.Close()
			return nil, nil, err
		}
		return dev, sess, nil
	})
	if err != nil {
		log.Fatalln("Failed to register bus:", err)
	}

	bus, err := i2creg.Open("mcp2221")
	if err != nil {
		log.Fatalln("Failed to open bus:", err)
	}
	defer bus.Close()

	if err := bus.SetSpeed(100 * physic.KiloHertz); err != nil {
		log.Fatalln("Failed to set bus speed:", err)
	}

	slave := i2c.Dev{Bus: bus, Addr: uint16(*addr)}
	buf := make([]byte, 4)
	if err := slave.Tx([]byte{0x00}, buf); err != nil {
		log.Printf("Probe of 0x%02X failed: %v", *addr, err)
	} else {
		log.Printf("Read from 0x%02X: %x", *addr, buf)
	}

	mbus, ok := bus.(*periphbus.Bus)
	if !ok {
		return
	}

	pin, err := periphbus.NewPin(mbus.Device(), 0, "")
	if err != nil {
		log.Fatalln("Failed to wrap pin:", err)
	}
	for i := 0; i < 6; i++ {
		if err := pin.Out(gpio.Level(i%2 == 0)); err != nil {
			log.Fatalln("Failed to drive pin:", err)
		}
		time.Sleep(250 * time.Millisecond)
	}
}
