package telescope

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/scopeworks/nexstar_interface/nexstar"
)

// Controller is the high-level mount façade. It owns the command channel and
// translates between domain coordinates and the unsigned wire representation.
// All methods are safe for concurrent use; the channel serializes the
// underlying half-duplex commands.
type Controller struct {
	ch     *nexstar.Channel
	client *nexstar.Client

	mu    sync.Mutex
	state SlewState
	// stopTimers holds pending auto-stop timers for timed fixed-rate moves.
	stopTimers map[nexstar.Axis]*time.Timer
}

func NewController(cfg nexstar.Config) *Controller {
	ch := nexstar.NewChannel(cfg)
	return &Controller{
		ch:         ch,
		client:     nexstar.NewClient(ch),
		stopTimers: make(map[nexstar.Axis]*time.Timer),
	}
}

// NewControllerWithChannel wires an existing channel, for tests driving a
// simulator pipe.
func NewControllerWithChannel(ch *nexstar.Channel) *Controller {
	return &Controller{
		ch:         ch,
		client:     nexstar.NewClient(ch),
		stopTimers: make(map[nexstar.Axis]*time.Timer),
	}
}

// Connect opens the transport and verifies the hand controller responds.
func (c *Controller) Connect() error {
	if err := c.ch.Open(); err != nil {
		return err
	}
	if err := c.client.Echo('x'); err != nil {
		c.ch.Close()
		return fmt.Errorf("hand controller not responding: %w", err)
	}
	return nil
}

// Disconnect stops pending timed moves and releases the transport. Safe to
// call when already disconnected.
func (c *Controller) Disconnect() error {
	c.mu.Lock()
	for axis, t := range c.stopTimers {
		t.Stop()
		delete(c.stopTimers, axis)
	}
	c.state = SlewIdle
	c.mu.Unlock()
	return c.ch.Close()
}

func (c *Controller) Connected() bool { return c.ch.IsOpen() }

// Session connects, runs fn, and disconnects on every exit path, including
// context cancellation.
func (c *Controller) Session(ctx context.Context, fn func(*Controller) error) error {
	if err := c.Connect(); err != nil {
		return err
	}
	defer c.Disconnect()
	done := make(chan error, 1)
	go func() { done <- fn(c) }()
	select {
	case <-ctx.Done():
		// Closing the channel unblocks any in-flight command.
		c.Disconnect()
		<-done
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// Info queries the mount model and firmware version.
func (c *Controller) Info() (Info, error) {
	model, err := c.client.Model()
	if err != nil {
		return Info{}, err
	}
	major, minor, err := c.client.Version()
	if err != nil {
		return Info{}, err
	}
	return Info{
		Model:         model,
		ModelName:     modelName(model),
		FirmwareMajor: major,
		FirmwareMinor: minor,
	}, nil
}

// PositionRADec reads the current equatorial position, converting wire
// degrees to hours and signed degrees.
func (c *Controller) PositionRADec() (Equatorial, error) {
	raDeg, decDeg, err := c.client.RADec()
	if err != nil {
		return Equatorial{}, err
	}
	return Equatorial{
		RAHours:    raDeg / 15,
		DecDegrees: nexstar.ToSigned(decDeg),
	}, nil
}

// PositionAltAz reads the current horizontal position.
func (c *Controller) PositionAltAz() (Horizontal, error) {
	azDeg, altDeg, err := c.client.AltAz()
	if err != nil {
		return Horizontal{}, err
	}
	return Horizontal{
		Azimuth:  azDeg,
		Altitude: nexstar.ToSigned(altDeg),
	}, nil
}

// GotoRADec starts a slew to the given equatorial position.
func (c *Controller) GotoRADec(pos Equatorial) error {
	if err := c.client.GotoRADec(pos.RAHours, pos.DecDegrees); err != nil {
		return err
	}
	c.setState(Slewing)
	return nil
}

// GotoAltAz starts a slew to the given horizontal position.
func (c *Controller) GotoAltAz(pos Horizontal) error {
	if err := c.client.GotoAltAz(pos.Azimuth, pos.Altitude); err != nil {
		return err
	}
	c.setState(Slewing)
	return nil
}

// SyncRADec reassigns the mount's position estimate (alignment).
func (c *Controller) SyncRADec(pos Equatorial) error {
	return c.client.SyncRADec(pos.RAHours, pos.DecDegrees)
}

// Slewing polls the mount for goto progress and updates the slew state.
func (c *Controller) Slewing() (bool, error) {
	slewing, err := c.client.Slewing()
	if err != nil {
		return false, err
	}
	if slewing {
		c.setState(Slewing)
	} else {
		c.setState(SlewIdle)
	}
	return slewing, nil
}

// CancelGoto aborts an in-progress slew.
func (c *Controller) CancelGoto() error {
	if err := c.client.CancelGoto(); err != nil {
		return err
	}
	c.setState(SlewIdle)
	return nil
}

// State returns the last observed slew state. It issues no I/O; the state
// advances only through Slewing() polls and command issuance.
func (c *Controller) State() SlewState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(s SlewState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// MoveFixed drives one axis at a fixed rate. When duration is positive, a
// stop for that axis is scheduled without blocking the caller; a later move
// on the same axis cancels the pending stop.
func (c *Controller) MoveFixed(axis nexstar.Axis, dir nexstar.Direction, rate int, duration time.Duration) error {
	c.cancelStopTimer(axis)
	if err := c.client.Move(axis, dir, rate); err != nil {
		return err
	}
	if rate == 0 {
		c.setState(SlewIdle)
		return nil
	}
	c.setState(Slewing)
	if duration > 0 {
		c.mu.Lock()
		c.stopTimers[axis] = time.AfterFunc(duration, func() {
			c.StopMotion(axis)
		})
		c.mu.Unlock()
	}
	return nil
}

// StopMotion stops fixed-rate motion on one axis.
func (c *Controller) StopMotion(axis nexstar.Axis) error {
	c.cancelStopTimer(axis)
	if err := c.client.Move(axis, nexstar.Positive, 0); err != nil {
		return err
	}
	c.setState(SlewIdle)
	return nil
}

func (c *Controller) cancelStopTimer(axis nexstar.Axis) {
	c.mu.Lock()
	if t, ok := c.stopTimers[axis]; ok {
		t.Stop()
		delete(c.stopTimers, axis)
	}
	c.mu.Unlock()
}

// TrackingMode reads the mount's tracking mode.
func (c *Controller) TrackingMode() (nexstar.TrackingMode, error) {
	return c.client.GetTrackingMode()
}

// SetTrackingMode sets the mount's tracking mode.
func (c *Controller) SetTrackingMode(mode nexstar.TrackingMode) error {
	return c.client.SetTrackingMode(mode)
}

// Location reads the observing site.
func (c *Controller) Location() (Location, error) {
	lat, lon, err := c.client.GetLocation()
	if err != nil {
		return Location{}, err
	}
	return Location{
		Latitude:  nexstar.ToSigned(lat),
		Longitude: nexstar.ToSigned(lon),
	}, nil
}

// SetLocation sets the observing site.
func (c *Controller) SetLocation(loc Location) error {
	return c.client.SetLocation(loc.Latitude, loc.Longitude)
}

// Time reads the hand controller clock.
func (c *Controller) Time() (nexstar.Time, error) {
	return c.client.GetTime()
}

// SetTime sets the hand controller clock.
func (c *Controller) SetTime(t nexstar.Time) error {
	return c.client.SetTime(t)
}
