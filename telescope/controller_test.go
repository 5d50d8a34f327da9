package telescope

import (
	"context"
	"errors"
	"math"
	"net"
	"testing"
	"time"

	"github.com/scopeworks/nexstar_interface/nexstar"
)

// simController connects a controller to a protocol simulator over TCP.
func simController(t *testing.T) *Controller {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go nexstar.Serve(ctx, ln)
	c := NewController(nexstar.Config{Addr: ln.Addr().String(), Timeout: time.Second})
	if err := c.Connect(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Disconnect() })
	return c
}

func TestConnectDisconnect(t *testing.T) {
	c := simController(t)
	if !c.Connected() {
		t.Error("Connected = false after Connect")
	}
	if err := c.Disconnect(); err != nil {
		t.Fatal(err)
	}
	if err := c.Disconnect(); err != nil {
		t.Errorf("second Disconnect: %v", err)
	}
	if _, err := c.PositionAltAz(); !errors.Is(err, nexstar.ErrNotConnected) {
		t.Errorf("command after disconnect = %v, want ErrNotConnected", err)
	}
}

func TestInfo(t *testing.T) {
	c := simController(t)
	info, err := c.Info()
	if err != nil {
		t.Fatal(err)
	}
	if info.ModelName != "Advanced GT" {
		t.Errorf("ModelName = %q, want Advanced GT", info.ModelName)
	}
	if info.FirmwareMajor != 4 || info.FirmwareMinor != 21 {
		t.Errorf("firmware = %d.%d, want 4.21", info.FirmwareMajor, info.FirmwareMinor)
	}
}

func TestSignedConversion(t *testing.T) {
	c := simController(t)
	// Sync below the celestial equator; the wire carries dec as an unsigned
	// angle that must come back signed.
	if err := c.SyncRADec(Equatorial{RAHours: 5.5, DecDegrees: -7.4}); err != nil {
		t.Fatal(err)
	}
	pos, err := c.PositionRADec()
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(pos.RAHours-5.5) > 1e-6 {
		t.Errorf("RAHours = %v, want 5.5", pos.RAHours)
	}
	if math.Abs(pos.DecDegrees+7.4) > 1e-6 {
		t.Errorf("DecDegrees = %v, want -7.4", pos.DecDegrees)
	}
}

func TestGotoUpdatesSlewState(t *testing.T) {
	c := simController(t)
	if c.State() != SlewIdle {
		t.Fatalf("initial state = %v, want IDLE", c.State())
	}
	if err := c.GotoAltAz(Horizontal{Azimuth: 4, Altitude: 2}); err != nil {
		t.Fatal(err)
	}
	if c.State() != Slewing {
		t.Errorf("state after goto = %v, want SLEWING", c.State())
	}
	// Poll until the simulator finishes the slew.
	deadline := time.Now().Add(10 * time.Second)
	for {
		slewing, err := c.Slewing()
		if err != nil {
			t.Fatal(err)
		}
		if !slewing {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("slew never completed")
		}
		time.Sleep(50 * time.Millisecond)
	}
	if c.State() != SlewIdle {
		t.Errorf("state after slew completion = %v, want IDLE", c.State())
	}
	pos, err := c.PositionAltAz()
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(pos.Azimuth-4) > 0.5 || math.Abs(pos.Altitude-2) > 0.5 {
		t.Errorf("final position = %v, want Az 4 Alt 2", pos)
	}
}

func TestCancelGoto(t *testing.T) {
	c := simController(t)
	if err := c.GotoAltAz(Horizontal{Azimuth: 350, Altitude: 80}); err != nil {
		t.Fatal(err)
	}
	if err := c.CancelGoto(); err != nil {
		t.Fatal(err)
	}
	if c.State() != SlewIdle {
		t.Errorf("state after cancel = %v, want IDLE", c.State())
	}
}

func TestTimedMove(t *testing.T) {
	c := simController(t)
	if err := c.MoveFixed(nexstar.AxisAltitude, nexstar.Positive, 9, 150*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	// MoveFixed must not block for the duration.
	if c.State() != Slewing {
		t.Errorf("state during timed move = %v, want SLEWING", c.State())
	}
	time.Sleep(400 * time.Millisecond)
	if c.State() != SlewIdle {
		t.Errorf("state after auto-stop = %v, want IDLE", c.State())
	}
	before, err := c.PositionAltAz()
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)
	after, err := c.PositionAltAz()
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(after.Altitude-before.Altitude) > 0.05 {
		t.Errorf("altitude still moving after auto-stop: %v -> %v", before.Altitude, after.Altitude)
	}
}

func TestStopMotionCancelsTimer(t *testing.T) {
	c := simController(t)
	if err := c.MoveFixed(nexstar.AxisAzimuth, nexstar.Negative, 5, time.Hour); err != nil {
		t.Fatal(err)
	}
	if err := c.StopMotion(nexstar.AxisAzimuth); err != nil {
		t.Fatal(err)
	}
	c.mu.Lock()
	pending := len(c.stopTimers)
	c.mu.Unlock()
	if pending != 0 {
		t.Errorf("%d stop timers still pending after StopMotion", pending)
	}
}

func TestLocationAndTime(t *testing.T) {
	c := simController(t)
	loc := Location{Latitude: -33.86, Longitude: 151.2}
	if err := c.SetLocation(loc); err != nil {
		t.Fatal(err)
	}
	got, err := c.Location()
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got.Latitude-loc.Latitude) > 1e-6 || math.Abs(got.Longitude-loc.Longitude) > 1e-6 {
		t.Errorf("Location = %+v, want %+v", got, loc)
	}

	if err := c.SetTrackingMode(nexstar.TrackingAltAz); err != nil {
		t.Fatal(err)
	}
	mode, err := c.TrackingMode()
	if err != nil {
		t.Fatal(err)
	}
	if mode != nexstar.TrackingAltAz {
		t.Errorf("TrackingMode = %v, want ALT_AZ", mode)
	}
}

func TestSessionDisconnectsOnError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go nexstar.Serve(ctx, ln)
	c := NewController(nexstar.Config{Addr: ln.Addr().String(), Timeout: time.Second})

	wantErr := errors.New("boom")
	if err := c.Session(context.Background(), func(c *Controller) error {
		return wantErr
	}); !errors.Is(err, wantErr) {
		t.Fatalf("Session = %v, want %v", err, wantErr)
	}
	if c.Connected() {
		t.Error("still connected after Session returned an error")
	}
}
