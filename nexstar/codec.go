package nexstar

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// The wire protocol carries all angles as 32-bit fractions of a full
// revolution, printed as 8 uppercase hex digits. 0x00000000 is 0 degrees,
// 0x80000000 is 180 degrees. Quantization error is at most 360/2^32.

// DegreesToHex encodes an angle in degrees as an 8-digit hex revolution
// fraction. The angle is taken modulo a full revolution.
func DegreesToHex(deg float64) string {
	rev := math.Round(deg / 360 * (1 << 32))
	word := uint32(int64(rev) & 0xFFFFFFFF)
	return fmt.Sprintf("%08X", word)
}

// HexToDegrees decodes an 8-digit hex revolution fraction to degrees in
// [0,360).
func HexToDegrees(s string) (float64, error) {
	if len(s) != 8 {
		return 0, &CommandError{Response: s, Reason: "angle is not 8 hex digits"}
	}
	word, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, &CommandError{Response: s, Reason: "angle is not valid hex"}
	}
	return float64(word) / (1 << 32) * 360, nil
}

// EncodePair joins two angles as "XXXXXXXX,YYYYYYYY".
func EncodePair(a, b float64) string {
	return DegreesToHex(a) + "," + DegreesToHex(b)
}

// DecodePair splits an "XXXXXXXX,YYYYYYYY" response into two angles.
func DecodePair(s string) (float64, float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, &CommandError{Response: s, Reason: "expected two comma-separated angles"}
	}
	a, err := HexToDegrees(parts[0])
	if err != nil {
		return 0, 0, err
	}
	b, err := HexToDegrees(parts[1])
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

// ToUnsigned folds a signed angle into the wire's [0,360) domain.
func ToUnsigned(angle float64) float64 {
	if angle < 0 {
		return 360 + angle
	}
	return angle
}

// ToSigned folds a wire angle back into the signed (-180,180] domain.
func ToSigned(angle float64) float64 {
	if angle > 180 {
		return angle - 360
	}
	return angle
}
