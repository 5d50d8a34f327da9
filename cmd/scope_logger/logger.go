// Command scope_logger follows the daemon's status websocket and ships every
// update to InfluxDB. Low-cardinality state (connection, slew, motion class)
// becomes point tags so dashboards can filter on it; everything else is
// flattened into fields.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
)

func main() {
	server := os.Getenv("INFLUX_SERVER")
	if server == "" {
		server = "http://localhost:9999"
	}
	client := influxdb2.NewClient(server, os.Getenv("INFLUX_TOKEN"))
	defer client.Close()
	// Non-blocking write client
	writeApi := client.WriteApi("scopeworks", "telescope.raw")
	defer writeApi.Close()
	errorsCh := writeApi.Errors()
	go func() {
		for err := range errorsCh {
			log.Printf("write error: %v", err)
		}
	}()
	for {
		if err := logData(writeApi); err != nil {
			log.Print(err)
		}
		time.Sleep(1 * time.Second)
	}
}

// statusTags mirrors the slice of the daemon's status worth indexing.
type statusTags struct {
	Connected bool   `json:"connected"`
	SlewState string `json:"slew_state"`
	Tracker   struct {
		Motion    string `json:"motion"`
		Freshness string `json:"freshness"`
	} `json:"tracker"`
}

func pointTags(raw []byte) map[string]string {
	var st statusTags
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil
	}
	tags := map[string]string{
		"connected": strconv.FormatBool(st.Connected),
	}
	if st.SlewState != "" {
		tags["slew_state"] = st.SlewState
	}
	if st.Tracker.Motion != "" {
		tags["motion"] = st.Tracker.Motion
	}
	if st.Tracker.Freshness != "" {
		tags["freshness"] = st.Tracker.Freshness
	}
	return tags
}

func pointFields(raw []byte) (map[string]interface{}, error) {
	var status interface{}
	if err := json.Unmarshal(raw, &status); err != nil {
		return nil, err
	}
	fields := make(map[string]interface{})
	flattenStatus(fields, status, "")
	return fields, nil
}

func flattenStatus(fields map[string]interface{}, status interface{}, prefix string) {
	switch status := status.(type) {
	case map[string]interface{}:
		for k, v := range status {
			flattenStatus(fields, v, prefix+"."+k)
		}
	case []interface{}:
		for k, v := range status {
			flattenStatus(fields, v, fmt.Sprintf("%s.%d", prefix, k))
		}
	default:
		fields[prefix[1:]] = status
	}
}

func logData(writeApi api.WriteApi) error {
	url := os.Getenv("SCOPE_ADDRESS")
	if url == "" {
		url = "ws://localhost:8502/api/ws"
	}
	defer writeApi.Flush()
	var dialer websocket.Dialer
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		fields, err := pointFields(raw)
		if err != nil {
			return err
		}
		p := influxdb2.NewPoint("telescope.status",
			pointTags(raw),
			fields,
			time.Now(),
		)
		writeApi.WritePoint(p)
	}
}
