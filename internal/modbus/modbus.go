// Package modbus wraps goburrow/modbus with a reconnecting poll loop shared
// by the power relay controller.
package modbus

import (
	"context"
	"log"
	"time"

	"github.com/goburrow/modbus"

	"github.com/scopeworks/nexstar_interface/internal/modbushttp"
)

const pollInterval = time.Second

type modbusHandler interface {
	modbus.ClientHandler
	Connect() error
	Close() error
}

// Client polls a Modbus device in the background, reconnecting with a one
// second backoff when the transport drops.
type Client struct {
	// Port and BaudRate create a local serial connection.
	Port string
	// BaudRate defaults to 19200.
	BaudRate int
	SlaveId  byte
	// URL creates a remote connection through a scope_power_bridge.
	URL string

	// Poll is called once per interval while the connection is up. A
	// returned error closes the transport and triggers a reconnect.
	Poll func() error

	handler modbusHandler
	modbus.Client
}

func (c *Client) Connect(ctx context.Context) error {
	if c.URL != "" {
		c.handler = modbushttp.NewClient(c.URL)
	} else {
		handler := modbus.NewRTUClientHandler(c.Port)
		handler.BaudRate = c.BaudRate
		handler.DataBits = 8
		handler.Parity = "N"
		handler.StopBits = 1
		handler.Timeout = 1 * time.Second
		handler.SlaveId = c.SlaveId
		c.handler = handler
	}
	c.Client = modbus.NewClient(c.handler)
	go c.reconnectLoop(ctx)
	return nil
}

func (c *Client) reconnectLoop(ctx context.Context) {
	port := c.URL
	if port == "" {
		port = c.Port
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(1 * time.Second):
		}

		err := c.handler.Connect()
		if err != nil {
			log.Printf("opening %q: %v", port, err)
			continue
		}
		if err := c.watch(ctx); err != nil {
			log.Printf("watching %q: %v", port, err)
		}
	}
}

func (c *Client) watch(ctx context.Context) error {
	defer c.handler.Close()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if err := c.Poll(); err != nil {
			return err
		}
	}
}

func (c *Client) WriteCoil(coil int, value bool) error {
	var v uint16
	if value {
		v = 0xFF00
	}
	_, err := c.WriteSingleCoil(uint16(coil), v)
	return err
}

func BytesToBits(bs []byte) []bool {
	var out []bool
	for _, b := range bs {
		for i := 0; i < 8; i++ {
			out = append(out, (b>>uint(i)&1) == 1)
		}
	}
	return out
}
