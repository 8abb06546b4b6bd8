// bridgeserver publishes attached MCP2221 devices over HTTP so their I2C
// bus and GPIO pins can be driven from other machines. Devices are selected
// by USB serial number on the command line; with no arguments every
// attached device is served.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/BertoldVdb/go-misc/httplog"

	"github.com/BertoldVdb/go-mcp2221a/bridgeserver/api"
	"github.com/BertoldVdb/go-mcp2221a/mcp2221"
	"github.com/BertoldVdb/go-mcp2221a/transport"
)

func main() {
	address := flag.String("addr", ":8067", "Address to listen on")
	verbose := flag.Bool("verbose", false, "Enable verbose logging")
	flag.Parse()

	closeChan := make(chan os.Signal, 1)
	signal.Notify(closeChan, os.Interrupt)

	var logOut mcp2221.LogFunc
	if *verbose {
		logOut = log.Printf
	}

	serials := flag.Args()
	if len(serials) == 0 {
		for _, info := range transport.Devices(transport.VID, transport.PID) {
			serials = append(serials, info.Serial)
		}
	}

	var mux http.ServeMux
	registered := make([]string, 0, len(serials))

	for i, serial := range serials {
		log.Printf("Initializing device '%s':", serial)

		sess, err := transport.Open(transport.VID, transport.PID, serial)
		if err != nil {
			log.Printf(" -> Failed to open: %v", err)
			continue
		}
		defer sess.Close()

		dev, err := mcp2221.New(sess, mcp2221.Config{
			ExchangeTimeout: 250 * time.Millisecond,
			PollInterval:    time.Millisecond,
			PollTimeout:     500 * time.Millisecond,
			Log:             logOut,
		})
		if err != nil {
			log.Println(" -> Failed to create device:", err)
			continue
		}

		hw, fw, err := dev.Revisions()
		if err != nil {
			log.Println(" -> Failed to query revisions:", err)
			continue
		}
		log.Printf(" -> Device ready: hardware %s, firmware %s", hw, fw)

		api, err := api.New(dev)
		if err != nil {
			log.Println(" -> Failed to create API:", err)
			continue
		}

		log.Printf(" -> Registering as '%s' and '%d'", serial, i)
		mux.Handle("/"+serial+"/", http.StripPrefix("/"+serial, api))
		mux.Handle("/"+strconv.Itoa(i)+"/", http.StripPrefix("/"+strconv.Itoa(i), api))

		registered = append(registered, serial)
	}

	if len(registered) == 0 {
		log.Println("No devices available")
		return
	}

	serialJson, err := json.MarshalIndent(&registered, "", "  ")
	if err != nil {
		log.Println(err)
		return
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(serialJson)
	})

	logger := httplog.HTTPLog{
		LogOut:     log.Printf,
		ServerName: "MCP2221Bridge",
	}

	server := &http.Server{
		Addr:    *address,
		Handler: logger.GetHandler(http.HandlerFunc(mux.ServeHTTP)),

		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       30 * time.Second,
		ReadHeaderTimeout: 30 * time.Second,
	}

	go func() {
		log.Printf("Starting server on: http://%s", *address)
		log.Println("Server stopped:", server.ListenAndServe())

		select {
		case closeChan <- nil:
		default:
		}
	}()

	<-closeChan
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	server.Shutdown(ctx)
	cancel()
}
