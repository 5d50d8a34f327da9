package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/scopeworks/nexstar_interface/internal/auth"
	"github.com/scopeworks/nexstar_interface/internal/config"
	"github.com/scopeworks/nexstar_interface/internal/metrics"
	"github.com/scopeworks/nexstar_interface/nexstar"
	"github.com/scopeworks/nexstar_interface/power"
	"github.com/scopeworks/nexstar_interface/telescope"
	"github.com/scopeworks/nexstar_interface/tracker"
)

// Status is the aggregate state pushed to websocket clients and served on
// /api/status.
type Status struct {
	Connected bool            `json:"connected"`
	Mount     *telescope.Info `json:"mount,omitempty"`
	SlewState string          `json:"slew_state"`
	Tracker   tracker.Status  `json:"tracker"`
	Power     *power.Status   `json:"power,omitempty"`
}

type Server struct {
	cfg *config.Config
	// mu serializes mount commands from all surfaces (websocket, rotctld).
	mu   sync.Mutex
	ctl  *telescope.Controller
	trk  *tracker.Tracker
	pwr  *power.Controller
	auth *auth.Middleware

	// info is cached at connect time; the mount's identity doesn't change.
	info *telescope.Info

	statusMu   sync.RWMutex
	statusCond *sync.Cond
	status     Status

	powerMu     sync.Mutex
	powerStatus *power.Status
}

func NewServer(cfg *config.Config, ctl *telescope.Controller, trk *tracker.Tracker) *Server {
	s := &Server{
		cfg:  cfg,
		ctl:  ctl,
		trk:  trk,
		auth: auth.NewMiddleware(cfg.Auth.Secret),
	}
	s.statusCond = sync.NewCond(s.statusMu.RLocker())
	return s
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Run publishes a fresh aggregate status once per second until ctx is done.
// The tracker is pull-based, so the server polls it instead of receiving a
// callback.
func (s *Server) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.statusCond.Broadcast()
			return
		case <-ticker.C:
		}
		s.publish()
	}
}

func (s *Server) publish() {
	status := Status{
		Connected: s.ctl.Connected(),
		SlewState: s.ctl.State().String(),
		Tracker:   s.trk.Status(),
	}
	s.powerMu.Lock()
	status.Power = s.powerStatus
	s.powerMu.Unlock()

	// info is guarded by statusMu; connectLoop writes it after the handshake.
	s.statusMu.Lock()
	status.Mount = s.info
	s.status = status
	s.statusMu.Unlock()
	s.statusCond.Broadcast()
}

func (s *Server) powerCallback(status power.Status) {
	s.powerMu.Lock()
	s.powerStatus = &status
	s.powerMu.Unlock()
}

func (s *Server) setInfo(info telescope.Info) {
	s.statusMu.Lock()
	s.info = &info
	s.statusMu.Unlock()
}

func (s *Server) router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/status", s.StatusHandler).Methods("GET")
	r.HandleFunc("/api/history", s.HistoryHandler).Methods("GET")
	r.HandleFunc("/api/statistics", s.StatisticsHandler).Methods("GET")
	r.HandleFunc("/api/export", s.ExportHandler).Methods("GET")
	r.HandleFunc("/api/power", s.PowerHandler).Methods("GET")
	r.HandleFunc("/api/ws", s.auth.Require(s.StatusSocketHandler))
	r.Handle("/metrics", metrics.Handler())
	r.Use(mux.MiddlewareFunc(metrics.Middleware))
	return r
}

func (s *Server) StatusHandler(w http.ResponseWriter, r *http.Request) {
	s.statusMu.RLock()
	status := s.status
	s.statusMu.RUnlock()
	writeJSON(w, status)
}

func (s *Server) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "bad limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	var since time.Time
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "bad since timestamp", http.StatusBadRequest)
			return
		}
		since = t
	}
	writeJSON(w, s.trk.History(limit, since))
}

func (s *Server) StatisticsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.trk.Statistics())
}

func (s *Server) ExportHandler(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	data, err := s.trk.Export(format)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	switch format {
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
	default:
		w.Header().Set("Content-Type", "application/json")
	}
	w.Header().Set("Content-Disposition", "attachment; filename=history."+format)
	w.Write(data)
}

func (s *Server) PowerHandler(w http.ResponseWriter, r *http.Request) {
	if s.pwr == nil {
		http.Error(w, "no power controller configured", http.StatusNotFound)
		return
	}
	writeJSON(w, s.pwr.Status())
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	data, err := json.Marshal(v)
	if err != nil {
		log.Print(err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Write(data)
}

// Command is the JSON message clients send over the websocket.
type Command struct {
	Command    string  `json:"command"`
	RAHours    float64 `json:"ra_hours"`
	DecDegrees float64 `json:"dec_degrees"`
	Azimuth    float64 `json:"azimuth"`
	Altitude   float64 `json:"altitude"`
	Axis       string  `json:"axis"`
	Direction  string  `json:"direction"`
	Rate       int     `json:"rate"`
	DurationMS int     `json:"duration_ms"`
	Mode       int     `json:"mode"`
	Seconds    float64 `json:"seconds"`
	Threshold  float64 `json:"threshold"`
	Enabled    bool    `json:"enabled"`
	Duty       int     `json:"duty"`
}

func (s *Server) StatusSocketHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx, cancel := context.WithCancel(ctx)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		cancel()
		return
	}

	// Read and process incoming messages
	go func() {
		for {
			var msg Command
			if err := conn.ReadJSON(&msg); err != nil {
				cancel()
				conn.Close()
				break
			}
			if err := s.dispatch(msg); err != nil {
				log.Printf("command %q: %v", msg.Command, err)
			}
		}
	}()

	send := func(status Status) bool {
		data, err := json.Marshal(status)
		if err != nil {
			log.Print(err)
			return false
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return false
		}
		return true
	}

	s.statusMu.RLock()
	status := s.status
	s.statusMu.RUnlock()
	if !send(status) {
		return
	}

	for ctx.Err() == nil {
		s.statusMu.RLock()
		s.statusCond.Wait()
		status := s.status
		s.statusMu.RUnlock()
		if !send(status) {
			return
		}
	}
}

func (s *Server) dispatch(msg Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch msg.Command {
	case "goto_radec":
		return s.ctl.GotoRADec(telescope.Equatorial{RAHours: msg.RAHours, DecDegrees: msg.DecDegrees})
	case "goto_altaz":
		return s.ctl.GotoAltAz(telescope.Horizontal{Azimuth: msg.Azimuth, Altitude: msg.Altitude})
	case "sync_radec":
		return s.ctl.SyncRADec(telescope.Equatorial{RAHours: msg.RAHours, DecDegrees: msg.DecDegrees})
	case "cancel":
		return s.ctl.CancelGoto()
	case "move":
		axis, dir, err := parseAxisDirection(msg.Axis, msg.Direction)
		if err != nil {
			return err
		}
		return s.ctl.MoveFixed(axis, dir, msg.Rate, time.Duration(msg.DurationMS)*time.Millisecond)
	case "stop":
		axis, _, err := parseAxisDirection(msg.Axis, "positive")
		if err != nil {
			return err
		}
		return s.ctl.StopMotion(axis)
	case "tracking_mode":
		return s.ctl.SetTrackingMode(nexstar.TrackingMode(msg.Mode))
	case "tracker_start":
		return s.trk.Start()
	case "tracker_stop":
		s.trk.Stop()
		return nil
	case "tracker_interval":
		return s.trk.SetInterval(time.Duration(msg.Seconds * float64(time.Second)))
	case "tracker_threshold":
		return s.trk.SetAlertThreshold(msg.Threshold)
	case "power_mount":
		if s.pwr == nil {
			return fmt.Errorf("no power controller configured")
		}
		return s.pwr.SetMountEnabled(msg.Enabled)
	case "power_dew_heater":
		if s.pwr == nil {
			return fmt.Errorf("no power controller configured")
		}
		return s.pwr.SetDewHeaterEnabled(msg.Enabled)
	case "power_dew_duty":
		if s.pwr == nil {
			return fmt.Errorf("no power controller configured")
		}
		return s.pwr.SetDewHeaterDuty(msg.Duty)
	}
	return fmt.Errorf("unknown command")
}

func parseAxisDirection(axis, dir string) (nexstar.Axis, nexstar.Direction, error) {
	var a nexstar.Axis
	switch axis {
	case "az", "azimuth":
		a = nexstar.AxisAzimuth
	case "alt", "altitude":
		a = nexstar.AxisAltitude
	default:
		return 0, 0, fmt.Errorf("unknown axis %q", axis)
	}
	var d nexstar.Direction
	switch dir {
	case "pos", "positive":
		d = nexstar.Positive
	case "neg", "negative":
		d = nexstar.Negative
	default:
		return 0, 0, fmt.Errorf("unknown direction %q", dir)
	}
	return a, d, nil
}
