// Package power controls the observatory power relay box over Modbus RTU.
// Coil 0 switches the mount supply, coil 1 the dew heater. Discrete inputs
// report mains presence and the actual state of each output, and holding
// register 0 holds the dew heater duty cycle in percent.
package power

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/scopeworks/nexstar_interface/internal/modbus"
)

const (
	coilMount = iota
	coilDewHeater
)

type Status struct {
	DewHeaterDuty int `json:"dew_heater_duty"`

	MountCommanded     bool `json:"mount_commanded"`
	DewHeaterCommanded bool `json:"dew_heater_commanded"`

	MainsOK         bool `json:"mains_ok"`
	MountActive     bool `json:"mount_active"`
	DewHeaterActive bool `json:"dew_heater_active"`
}

type StatusCallback func(status Status)

// Controller mirrors the relay box state and exposes switch operations. The
// underlying client reconnects on its own; commands issued while the box is
// unreachable fail with the transport error.
type Controller struct {
	statusCallback StatusCallback
	mu             sync.Mutex
	client         *modbus.Client
	relays         int
	duty           int
	coils          []bool
	inputs         []bool
}

// Connect starts polling the relay box. Either port (local RTU) or url
// (remote bridge) selects the transport.
func Connect(ctx context.Context, port string, baud int, url string, statusCallback StatusCallback) (*Controller, error) {
	c := &Controller{
		client: &modbus.Client{
			Port:     port,
			BaudRate: baud,
			SlaveId:  1,
			URL:      url,
		},
		statusCallback: statusCallback,
	}
	c.client.Poll = c.pollOnce
	return c, c.client.Connect(ctx)
}

func (c *Controller) pollOnce() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	results, err := c.client.ReadInputRegisters(0, 1)
	if err != nil {
		return err
	}
	relays := binary.BigEndian.Uint16(results)
	if relays < 2 {
		return fmt.Errorf("relay box reports %d relays, want at least 2", relays)
	}

	results, err = c.client.ReadHoldingRegisters(0, 1)
	if err != nil {
		return err
	}
	c.duty = int(binary.BigEndian.Uint16(results))

	coils, err := c.client.ReadCoils(0, relays)
	if err != nil {
		return err
	}
	inputs, err := c.client.ReadDiscreteInputs(0, relays+1)
	if err != nil {
		return err
	}
	c.relays = int(relays)
	c.coils = modbus.BytesToBits(coils)
	c.inputs = modbus.BytesToBits(inputs)
	c.notifyStatus()
	return nil
}

func (c *Controller) notifyStatus() {
	if c.statusCallback != nil {
		c.statusCallback(c.parseRegisters())
	}
}

func (c *Controller) parseRegisters() Status {
	return Status{
		DewHeaterDuty: c.duty,

		MountCommanded:     c.coils[coilMount],
		DewHeaterCommanded: c.coils[coilDewHeater],

		MainsOK:         c.inputs[0],
		MountActive:     c.inputs[1],
		DewHeaterActive: c.inputs[2],
	}
}

// Status returns the state from the last completed poll.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.coils) < 2 || len(c.inputs) < 3 {
		return Status{}
	}
	return c.parseRegisters()
}

func (c *Controller) SetMountEnabled(enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client.WriteCoil(coilMount, enabled)
}

func (c *Controller) SetDewHeaterEnabled(enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client.WriteCoil(coilDewHeater, enabled)
}

// SetDewHeaterDuty writes the heater duty cycle in percent.
func (c *Controller) SetDewHeaterDuty(percent int) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("dew heater duty %d%% outside [0,100]", percent)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.client.WriteSingleRegister(0, uint16(percent))
	return err
}
