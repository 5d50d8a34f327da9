package tracker

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Export serializes the current snapshot without pausing the worker.
// Supported formats are "json" and "csv".
func (t *Tracker) Export(format string) ([]byte, error) {
	status := t.Status()
	samples := t.History(0, time.Time{})
	switch format {
	case "json":
		return json.MarshalIndent(struct {
			Status  Status   `json:"status"`
			Samples []Sample `json:"samples"`
		}{status, samples}, "", "  ")
	case "csv":
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		w.Write([]string{"timestamp", "ra_hours", "dec_degrees", "altitude", "azimuth"})
		for _, s := range samples {
			w.Write([]string{
				s.Timestamp.Format(time.RFC3339Nano),
				strconv.FormatFloat(s.RAHours, 'f', -1, 64),
				strconv.FormatFloat(s.DecDegrees, 'f', -1, 64),
				strconv.FormatFloat(s.Altitude, 'f', -1, 64),
				strconv.FormatFloat(s.Azimuth, 'f', -1, 64),
			})
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("tracker: unknown export format %q", format)
}
