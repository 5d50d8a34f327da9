package main

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

var sampleStatus = []byte(`{
	"connected": true,
	"slew_state": "SLEWING",
	"tracker": {
		"motion": "slewing",
		"freshness": "live",
		"error_count": 0,
		"velocity": {"total_deg_per_sec": 1.5},
		"last_sample": {"altitude": 45.0, "azimuth": 120.25}
	}
}`)

func TestPointTags(t *testing.T) {
	want := map[string]string{
		"connected":  "true",
		"slew_state": "SLEWING",
		"motion":     "slewing",
		"freshness":  "live",
	}
	if diff := cmp.Diff(want, pointTags(sampleStatus)); diff != "" {
		t.Errorf("tags mismatch (-want +got):\n%s", diff)
	}
}

func TestPointTagsSparse(t *testing.T) {
	tags := pointTags([]byte(`{"connected": false}`))
	want := map[string]string{"connected": "false"}
	if diff := cmp.Diff(want, tags); diff != "" {
		t.Errorf("tags mismatch (-want +got):\n%s", diff)
	}
}

func TestPointFields(t *testing.T) {
	fields, err := pointFields(sampleStatus)
	if err != nil {
		t.Fatal(err)
	}
	for key, want := range map[string]interface{}{
		"connected":                          true,
		"tracker.velocity.total_deg_per_sec": 1.5,
		"tracker.last_sample.altitude":       45.0,
		"tracker.last_sample.azimuth":        120.25,
		"tracker.error_count":                0.0,
	} {
		if got, ok := fields[key]; !ok || got != want {
			t.Errorf("fields[%q] = %v (present %v), want %v", key, got, ok, want)
		}
	}
}

func TestPointFieldsBadJSON(t *testing.T) {
	if _, err := pointFields([]byte("not json")); err == nil {
		t.Error("pointFields accepted invalid JSON")
	}
}
