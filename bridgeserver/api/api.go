// Package api exposes one MCP2221 device over HTTP, turning the chip into
// a small network attached I2C and GPIO bridge. All endpoints operate on
// the live device; concurrent requests are serialized by the transport
// session.
package api

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"net/http"
	"strconv"

	"github.com/BertoldVdb/go-mcp2221a/mcp2221"
	"github.com/BertoldVdb/go-mcp2221a/protocol"
)

type API struct {
	mux *http.ServeMux
	dev *mcp2221.Device
}

const (
	ctBinary string = "application/octet-stream"
	ctJSON   string = "application/json"
)

func New(dev *mcp2221.Device) (*API, error) {
	mux := &http.ServeMux{}

	s := &API{
		mux: mux,
		dev: dev,
	}

	hw, fw, err := dev.Revisions()
	if err != nil {
		return nil, err
	}

	var infoResponse struct {
		HardwareRevision string
		FirmwareRevision string
		USBManufacturer  string
		USBProduct       string
		USBSerial        string
	}
	infoResponse.HardwareRevision = hw
	infoResponse.FirmwareRevision = fw
	infoResponse.USBManufacturer, _ = dev.Flash.USBManufacturer()
	infoResponse.USBProduct, _ = dev.Flash.USBProduct()
	infoResponse.USBSerial, _ = dev.Flash.USBSerial()

	infoJson, err := json.MarshalIndent(&infoResponse, "", "  ")
	if err != nil {
		return nil, err
	}

	mux.HandleFunc("/info", sendStatic(ctJSON, infoJson))
	mux.HandleFunc("/status", s.statusHandler)
	mux.HandleFunc("/i2c/scan", s.scanHandler)
	mux.HandleFunc("/i2c/transfer", s.transferHandler)
	mux.HandleFunc("/gpio", s.gpioHandler)
	mux.HandleFunc("/adc", s.adcHandler)

	return s, nil
}

func sendStatic(contentType string, data []byte) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "GET" {
			http.Error(w, "Invalid method", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", contentType)
		w.Write(data)
	}
}

func sendJSON(w http.ResponseWriter, value interface{}) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", ctJSON)
	w.Write(data)
}

func (s *API) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		http.Error(w, "Invalid method", http.StatusMethodNotAllowed)
		return
	}

	stat, err := s.dev.Status.Get()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	var rsp struct {
		EngineState byte
		BusIdle     bool
		I2CSpeedHz  uint32
		SCL, SDA    bool
		Interrupt   bool
	}
	rsp.EngineState = stat.Engine.State
	rsp.BusIdle = stat.Engine.Idle()
	rsp.I2CSpeedHz = stat.I2CSpeedHz()
	rsp.SCL = stat.Engine.SCL
	rsp.SDA = stat.Engine.SDA
	rsp.Interrupt = stat.Interrupt

	sendJSON(w, &rsp)
}

func (s *API) scanHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		http.Error(w, "Invalid method", http.StatusMethodNotAllowed)
		return
	}

	found, err := s.dev.I2C.Scan(0x08, 0x77)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	addrs := make([]string, 0, len(found))
	for _, a := range found {
		addrs = append(addrs, fmt.Sprintf("0x%02X", a))
	}
	sendJSON(w, addrs)
}

// transferHandler runs one I2C transaction: the POST body is written to the
// slave given by the addr query parameter, then read bytes are clocked in
// and returned. Either half may be empty.
func (s *API) transferHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Invalid method", http.StatusMethodNotAllowed)
		return
	}

	addr, err := strconv.ParseUint(r.URL.Query().Get("addr"), 0, 8)
	if err != nil || addr > protocol.I2CAddrMax {
		http.Error(w, "invalid addr parameter", http.StatusBadRequest)
		return
	}

	readLen := 0
	if v := r.URL.Query().Get("read"); v != "" {
		readLen, err = strconv.Atoi(v)
		if err != nil || readLen < 0 || readLen > protocol.I2CTransferMax {
			http.Error(w, "invalid read parameter", http.StatusBadRequest)
			return
		}
	}

	out, err := ioutil.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	in := make([]byte, readLen)
	if err := s.dev.I2C.WriteRead(byte(addr), out, in); err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, mcp2221.ErrAddressNack) || errors.Is(err, mcp2221.ErrDataNack) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", ctBinary)
	w.Write(in)
}

// gpioHandler reports the state of the four pins on GET. A POST with pin
// and level parameters drives one pin as an output.
func (s *API) gpioHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		states, err := s.dev.GPIO.Values()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}

		type pinJSON struct {
			Available bool
			Level     string
			Direction string
		}
		var rsp [protocol.PinCount]pinJSON
		for i, st := range states {
			rsp[i].Available = st.Available()
			rsp[i].Direction = st.Dir.String()
			if st.Available() {
				rsp[i].Level = strconv.Itoa(int(st.Level))
			} else {
				rsp[i].Level = hex.EncodeToString([]byte{st.Level})
			}
		}
		sendJSON(w, &rsp)

	case "POST":
		pin, err := strconv.Atoi(r.URL.Query().Get("pin"))
		if err != nil || pin < 0 || pin >= protocol.PinCount {
			http.Error(w, "invalid pin parameter", http.StatusBadRequest)
			return
		}
		level, err := strconv.ParseBool(r.URL.Query().Get("level"))
		if err != nil {
			http.Error(w, "invalid level parameter", http.StatusBadRequest)
			return
		}

		if err := s.dev.GPIO.SetDirection(pin, protocol.DirOutput); err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		if err := s.dev.GPIO.SetOutput(pin, level); err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "Invalid method", http.StatusMethodNotAllowed)
	}
}

func (s *API) adcHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		http.Error(w, "Invalid method", http.StatusMethodNotAllowed)
		return
	}

	values, err := s.dev.ADC.Read()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	sendJSON(w, values)
}

func (s *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
