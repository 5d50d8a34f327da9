package nexstar

import "fmt"

// Axis selects a mount axis for fixed-rate motion.
type Axis int

const (
	AxisAzimuth Axis = iota
	AxisAltitude
)

func (a Axis) String() string {
	switch a {
	case AxisAzimuth:
		return "AZIMUTH"
	case AxisAltitude:
		return "ALTITUDE"
	}
	return fmt.Sprintf("Axis(%d)", int(a))
}

// Direction selects the sense of fixed-rate motion.
type Direction int

const (
	Positive Direction = iota
	Negative
)

func (d Direction) String() string {
	switch d {
	case Positive:
		return "POSITIVE"
	case Negative:
		return "NEGATIVE"
	}
	return fmt.Sprintf("Direction(%d)", int(d))
}

// TrackingMode is the mount's sidereal compensation mode.
type TrackingMode byte

const (
	TrackingOff TrackingMode = iota
	TrackingAltAz
	TrackingEQNorth
	TrackingEQSouth
)

func (m TrackingMode) String() string {
	switch m {
	case TrackingOff:
		return "OFF"
	case TrackingAltAz:
		return "ALT_AZ"
	case TrackingEQNorth:
		return "EQ_NORTH"
	case TrackingEQSouth:
		return "EQ_SOUTH"
	}
	return fmt.Sprintf("TrackingMode(%d)", int(m))
}

// Time is the hand controller's clock, as carried on the wire.
type Time struct {
	Hour, Minute, Second byte
	Month, Day           byte
	// Year is years since 2000.
	Year byte
	// TZOffset is the UTC offset in hours, two's complement on the wire.
	TZOffset int8
	DST      bool
}

// Client issues one wire command per method over a Channel. All coordinate
// parameters are validated before any channel I/O; angle parameters and
// results are in the unsigned wire domain (degrees in [0,360)) except RA,
// which is taken in hours.
type Client struct {
	ch *Channel
}

func NewClient(ch *Channel) *Client {
	return &Client{ch: ch}
}

// Echo round-trips one byte through the hand controller.
func (c *Client) Echo(b byte) error {
	resp, err := c.ch.Send([]byte{'K', b})
	if err != nil {
		return err
	}
	if len(resp) != 1 || resp[0] != b {
		return &CommandError{Command: "K", Response: string(resp), Reason: "echo mismatch"}
	}
	return nil
}

// Version returns the firmware major and minor version.
func (c *Client) Version() (major, minor byte, err error) {
	resp, err := c.ch.Send([]byte{'V'})
	if err != nil {
		return 0, 0, err
	}
	if len(resp) != 2 {
		return 0, 0, &CommandError{Command: "V", Response: string(resp), Reason: "expected 2 version bytes"}
	}
	return resp[0], resp[1], nil
}

// Model returns the mount model id.
func (c *Client) Model() (byte, error) {
	resp, err := c.ch.Send([]byte{'m'})
	if err != nil {
		return 0, err
	}
	if len(resp) != 1 {
		return 0, &CommandError{Command: "m", Response: string(resp), Reason: "expected 1 model byte"}
	}
	return resp[0], nil
}

// RADec reads the current equatorial position as wire degrees.
func (c *Client) RADec() (raDeg, decDeg float64, err error) {
	return c.readPair('E')
}

// AltAz reads the current horizontal position as wire degrees.
func (c *Client) AltAz() (azDeg, altDeg float64, err error) {
	return c.readPair('Z')
}

func (c *Client) readPair(verb byte) (float64, float64, error) {
	resp, err := c.ch.Send([]byte{verb})
	if err != nil {
		return 0, 0, err
	}
	a, b, err := DecodePair(string(resp))
	if err != nil {
		if cerr, ok := err.(*CommandError); ok {
			cerr.Command = string(verb)
		}
		return 0, 0, err
	}
	return a, b, nil
}

// GotoRADec slews to the given equatorial position.
func (c *Client) GotoRADec(raHours, decDeg float64) error {
	if err := validateRADec(raHours, decDeg); err != nil {
		return err
	}
	return c.sendPair('R', raHours*15, ToUnsigned(decDeg))
}

// SyncRADec reassigns the mount's position estimate to the given coordinates.
func (c *Client) SyncRADec(raHours, decDeg float64) error {
	if err := validateRADec(raHours, decDeg); err != nil {
		return err
	}
	return c.sendPair('S', raHours*15, ToUnsigned(decDeg))
}

// GotoAltAz slews to the given horizontal position.
func (c *Client) GotoAltAz(azDeg, altDeg float64) error {
	if azDeg < 0 || azDeg >= 360 {
		return invalidCoord("azimuth", azDeg, 0, 360)
	}
	if altDeg < -90 || altDeg > 90 {
		return invalidCoord("altitude", altDeg, -90, 90)
	}
	return c.sendPair('B', azDeg, ToUnsigned(altDeg))
}

func validateRADec(raHours, decDeg float64) error {
	if raHours < 0 || raHours >= 24 {
		return invalidCoord("ra_hours", raHours, 0, 24)
	}
	if decDeg < -90 || decDeg > 90 {
		return invalidCoord("dec_degrees", decDeg, -90, 90)
	}
	return nil
}

func (c *Client) sendPair(verb byte, a, b float64) error {
	cmd := append([]byte{verb}, EncodePair(a, b)...)
	resp, err := c.ch.Send(cmd)
	if err != nil {
		return err
	}
	return expectEmpty(string(verb), resp)
}

func expectEmpty(cmd string, resp []byte) error {
	if len(resp) != 0 {
		return &CommandError{Command: cmd, Response: string(resp), Reason: "unexpected response body"}
	}
	return nil
}

// Slewing reports whether a goto is in progress.
func (c *Client) Slewing() (bool, error) {
	resp, err := c.ch.Send([]byte{'L'})
	if err != nil {
		return false, err
	}
	switch string(resp) {
	case "0":
		return false, nil
	case "1":
		return true, nil
	}
	return false, &CommandError{Command: "L", Response: string(resp), Reason: "expected 0 or 1"}
}

// CancelGoto aborts an in-progress slew.
func (c *Client) CancelGoto() error {
	resp, err := c.ch.Send([]byte{'M'})
	if err != nil {
		return err
	}
	return expectEmpty("M", resp)
}

func axisByte(axis Axis) (byte, error) {
	switch axis {
	case AxisAzimuth:
		return 16, nil
	case AxisAltitude:
		return 17, nil
	}
	return 0, &CommandError{Command: "P", Reason: fmt.Sprintf("unknown axis %d", int(axis))}
}

func directionByte(dir Direction) (byte, error) {
	switch dir {
	case Positive:
		return 6, nil
	case Negative:
		return 7, nil
	}
	return 0, &CommandError{Command: "P", Reason: fmt.Sprintf("unknown direction %d", int(dir))}
}

// Move drives one axis at a fixed rate (0 stops the axis). Rates are the
// hand controller's 0-9 scale.
func (c *Client) Move(axis Axis, dir Direction, rate int) error {
	if rate < 0 || rate > 9 {
		return invalidCoord("rate", float64(rate), 0, 9)
	}
	ab, err := axisByte(axis)
	if err != nil {
		return err
	}
	db, err := directionByte(dir)
	if err != nil {
		return err
	}
	resp, err := c.ch.Send([]byte{'P', ab, db, byte(rate), 0, 0, 0})
	if err != nil {
		return err
	}
	return expectEmpty("P", resp)
}

// GetTrackingMode reads the current tracking mode.
func (c *Client) GetTrackingMode() (TrackingMode, error) {
	resp, err := c.ch.Send([]byte{'t'})
	if err != nil {
		return 0, err
	}
	if len(resp) != 1 || resp[0] > byte(TrackingEQSouth) {
		return 0, &CommandError{Command: "t", Response: string(resp), Reason: "expected mode byte 0-3"}
	}
	return TrackingMode(resp[0]), nil
}

// SetTrackingMode sets the tracking mode.
func (c *Client) SetTrackingMode(mode TrackingMode) error {
	if mode > TrackingEQSouth {
		return &CommandError{Command: "T", Reason: fmt.Sprintf("unknown tracking mode %d", int(mode))}
	}
	resp, err := c.ch.Send([]byte{'T', byte(mode)})
	if err != nil {
		return err
	}
	return expectEmpty("T", resp)
}

// GetLocation reads the observing site as wire degrees. The response is the
// one pair in the protocol without a comma separator: 16 contiguous hex
// digits.
func (c *Client) GetLocation() (latDeg, lonDeg float64, err error) {
	resp, err := c.ch.Send([]byte{'w'})
	if err != nil {
		return 0, 0, err
	}
	if len(resp) != 16 {
		return 0, 0, &CommandError{Command: "w", Response: string(resp), Reason: "expected 16 hex digits"}
	}
	lat, err := HexToDegrees(string(resp[:8]))
	if err != nil {
		return 0, 0, err
	}
	lon, err := HexToDegrees(string(resp[8:]))
	if err != nil {
		return 0, 0, err
	}
	return lat, lon, nil
}

// SetLocation sets the observing site.
func (c *Client) SetLocation(latDeg, lonDeg float64) error {
	if latDeg < -90 || latDeg > 90 {
		return invalidCoord("latitude", latDeg, -90, 90)
	}
	if lonDeg < -180 || lonDeg > 180 {
		return invalidCoord("longitude", lonDeg, -180, 180)
	}
	return c.sendPair('W', ToUnsigned(latDeg), ToUnsigned(lonDeg))
}

// GetTime reads the hand controller clock.
func (c *Client) GetTime() (Time, error) {
	resp, err := c.ch.Send([]byte{'h'})
	if err != nil {
		return Time{}, err
	}
	if len(resp) != 8 {
		return Time{}, &CommandError{Command: "h", Response: string(resp), Reason: "expected 8 time bytes"}
	}
	return Time{
		Hour:     resp[0],
		Minute:   resp[1],
		Second:   resp[2],
		Month:    resp[3],
		Day:      resp[4],
		Year:     resp[5],
		TZOffset: int8(resp[6]),
		DST:      resp[7] == 1,
	}, nil
}

// SetTime sets the hand controller clock.
func (c *Client) SetTime(t Time) error {
	dst := byte(0)
	if t.DST {
		dst = 1
	}
	resp, err := c.ch.Send([]byte{'H', t.Hour, t.Minute, t.Second, t.Month, t.Day, t.Year, byte(t.TZOffset), dst})
	if err != nil {
		return err
	}
	return expectEmpty("H", resp)
}
