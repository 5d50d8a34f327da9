// Package telescope provides a typed controller for a NexStar-compatible
// mount on top of the wire protocol client.
package telescope

import "fmt"

// Equatorial is an RA/Dec position. RA is in hours [0,24), Dec in signed
// degrees [-90,90].
type Equatorial struct {
	RAHours    float64 `json:"ra_hours"`
	DecDegrees float64 `json:"dec_degrees"`
}

func (e Equatorial) String() string {
	return fmt.Sprintf("RA %.4fh Dec %+.4f°", e.RAHours, e.DecDegrees)
}

// Horizontal is an Az/Alt position. Azimuth is in degrees [0,360), altitude
// in signed degrees [-90,90].
type Horizontal struct {
	Azimuth  float64 `json:"azimuth"`
	Altitude float64 `json:"altitude"`
}

func (h Horizontal) String() string {
	return fmt.Sprintf("Az %.4f° Alt %+.4f°", h.Azimuth, h.Altitude)
}

// Location is an observing site in signed degrees.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Info describes the connected mount.
type Info struct {
	Model         byte   `json:"model"`
	ModelName     string `json:"model_name"`
	FirmwareMajor byte   `json:"firmware_major"`
	FirmwareMinor byte   `json:"firmware_minor"`
}

func (i Info) String() string {
	return fmt.Sprintf("%s firmware %d.%d", i.ModelName, i.FirmwareMajor, i.FirmwareMinor)
}

var modelNames = map[byte]string{
	1:  "GPS Series",
	3:  "i-Series",
	4:  "i-Series SE",
	5:  "CGE",
	6:  "Advanced GT",
	7:  "SLT",
	9:  "CPC",
	10: "GT",
	11: "4/5 SE",
	12: "6/8 SE",
}

func modelName(id byte) string {
	if name, ok := modelNames[id]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", id)
}

// Positioner is the read-only position surface consumed by the tracker.
type Positioner interface {
	PositionRADec() (Equatorial, error)
	PositionAltAz() (Horizontal, error)
}

// SlewState is the controller's view of mount motion, observable only by
// polling; the protocol has no push notification.
type SlewState int

const (
	SlewIdle SlewState = iota
	Slewing
)

func (s SlewState) String() string {
	if s == Slewing {
		return "SLEWING"
	}
	return "IDLE"
}
