// Package tracker samples mount position in the background so presentation
// layers can read live telemetry without ever blocking on device I/O.
package tracker

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/scopeworks/nexstar_interface/internal/metrics"
	"github.com/scopeworks/nexstar_interface/nexstar"
	"github.com/scopeworks/nexstar_interface/telescope"
)

const (
	MinInterval = 500 * time.Millisecond
	MaxInterval = 30 * time.Second

	MinAlertThreshold = 0.1
	MaxAlertThreshold = 20.0

	// Motion faster than this is classified as a slew.
	slewRateThreshold = 0.1
	// Samples older than this are no longer "live".
	liveAge = 5 * time.Second
)

// Config tunes a Tracker. The zero value gets the defaults below.
type Config struct {
	Interval        time.Duration // default 2s, clamped to [500ms,30s]
	HistoryCapacity int           // default 1000
	AlertThreshold  float64       // deg/s, default 5.0, clamped to [0.1,20]
	ErrorLimit      int           // consecutive failures before self-stop, default 3
	AlertCooldown   time.Duration // default 5s
}

func (c *Config) applyDefaults() {
	if c.Interval == 0 {
		c.Interval = 2 * time.Second
	}
	if c.HistoryCapacity == 0 {
		c.HistoryCapacity = 1000
	}
	if c.AlertThreshold == 0 {
		c.AlertThreshold = 5.0
	}
	if c.ErrorLimit == 0 {
		c.ErrorLimit = 3
	}
	if c.AlertCooldown == 0 {
		c.AlertCooldown = 5 * time.Second
	}
}

// Velocity is the mount's rate of motion derived from the last two samples.
// RA is in hours/second, the remaining components in degrees/second. Total
// is the on-sky angular speed from the horizontal components.
type Velocity struct {
	RAPerSec       float64 `json:"ra_per_sec"`
	DecPerSec      float64 `json:"dec_per_sec"`
	AltPerSec      float64 `json:"alt_per_sec"`
	AzPerSec       float64 `json:"az_per_sec"`
	TotalDegPerSec float64 `json:"total_deg_per_sec"`
}

// Motion classification published with each status.
const (
	MotionIdle    = "idle"
	MotionSlewing = "slewing"
	MotionAnomaly = "anomaly"
)

// Status is the tracker's published state. All fields are copies; reading
// them never touches the device channel.
type Status struct {
	Enabled    bool      `json:"enabled"`
	Running    bool      `json:"running"`
	Waiting    bool      `json:"waiting"`
	LastSample *Sample   `json:"last_sample,omitempty"`
	LastUpdate time.Time `json:"last_update,omitempty"`
	AgeSeconds float64   `json:"age_seconds"`
	Freshness  string    `json:"freshness"`
	ErrorCount int       `json:"error_count"`
	Velocity   Velocity  `json:"velocity"`
	Motion     string    `json:"motion"`
	Alert      bool      `json:"alert"`
	AlertLast  time.Time `json:"alert_last,omitempty"`
}

// Statistics summarizes the current history window.
type Statistics struct {
	SampleCount  int           `json:"sample_count"`
	Duration     time.Duration `json:"duration"`
	DriftDegrees float64       `json:"drift_degrees"`
}

// Tracker polls a Positioner on a fixed cadence from a single worker
// goroutine, the sole writer of its state. Every public read returns a
// snapshot copy. A tracker is explicitly owned: its lifetime is tied to the
// controller connection that created it, and there is no process-wide
// instance.
type Tracker struct {
	src telescope.Positioner

	mu             sync.RWMutex
	cfg            Config
	enabled        bool
	running        bool
	waiting        bool
	errorCount     int
	lastSample     *Sample
	lastUpdate     time.Time
	velocity       Velocity
	motion         string
	alert          bool
	alertLast      time.Time
	alertLimiter   *rate.Limiter
	hist           *history
	stop           chan struct{}
	stopOnce       *sync.Once
	done           chan struct{}
}

func New(src telescope.Positioner, cfg Config) *Tracker {
	cfg.applyDefaults()
	return &Tracker{
		src:          src,
		cfg:          cfg,
		motion:       MotionIdle,
		hist:         newHistory(cfg.HistoryCapacity),
		alertLimiter: rate.NewLimiter(rate.Every(cfg.AlertCooldown), 1),
	}
}

// Start launches the polling worker. Idempotent while running. Configuration
// arriving from external input is validated by the setters and by the config
// loader; values supplied in code are taken as-is.
func (t *Tracker) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		t.enabled = true
		return nil
	}
	t.enabled = true
	t.running = true
	t.waiting = false
	t.errorCount = 0
	t.stop = make(chan struct{})
	t.stopOnce = &sync.Once{}
	t.done = make(chan struct{})
	metrics.SetTrackerRunning(true)
	go t.run(t.stop, t.done)
	return nil
}

// Stop requests worker exit and blocks until it leaves, bounded by about one
// poll interval. Safe to call from any goroutine, repeatedly, and
// concurrently with an in-flight poll.
func (t *Tracker) Stop() {
	t.mu.Lock()
	t.enabled = false
	if !t.running {
		t.mu.Unlock()
		return
	}
	stopOnce, stop, done := t.stopOnce, t.stop, t.done
	t.mu.Unlock()
	stopOnce.Do(func() { close(stop) })
	<-done
}

func (t *Tracker) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer func() {
		t.mu.Lock()
		t.running = false
		t.mu.Unlock()
		metrics.SetTrackerRunning(false)
	}()
	timer := time.NewTimer(t.interval())
	defer timer.Stop()
	for {
		select {
		case <-stop:
			return
		case <-timer.C:
		}
		if !t.poll() {
			return
		}
		timer.Reset(t.interval())
	}
}

func (t *Tracker) interval() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cfg.Interval
}

// poll performs one cycle; it returns false when the error limit has been
// reached and the worker must exit. Failures never propagate to readers,
// only to Status.
func (t *Tracker) poll() bool {
	eq, err := t.src.PositionRADec()
	var hor telescope.Horizontal
	if err == nil {
		hor, err = t.src.PositionAltAz()
	}
	now := time.Now()
	if err != nil {
		metrics.RecordPoll(false, 0, 0, 0)
		return t.recordFailure(err)
	}

	sample := Sample{
		Timestamp:  now,
		RAHours:    eq.RAHours,
		DecDegrees: eq.DecDegrees,
		Altitude:   hor.Altitude,
		Azimuth:    hor.Azimuth,
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.waiting = false
	t.errorCount = 0

	vel := Velocity{}
	if prev := t.lastSample; prev != nil {
		if dt := sample.Timestamp.Sub(prev.Timestamp).Seconds(); dt > 0 {
			vel.RAPerSec = telescope.WrapDelta(prev.RAHours, sample.RAHours, 24) / dt
			vel.DecPerSec = (sample.DecDegrees - prev.DecDegrees) / dt
			vel.AltPerSec = (sample.Altitude - prev.Altitude) / dt
			vel.AzPerSec = telescope.WrapDelta(prev.Azimuth, sample.Azimuth, 360) / dt
			vel.TotalDegPerSec = telescope.SkyRate(vel.AzPerSec, vel.AltPerSec, sample.Altitude)
		}
	}

	motion := MotionIdle
	alert := false
	switch {
	case vel.TotalDegPerSec > t.cfg.AlertThreshold:
		motion = MotionAnomaly
		alert = true
		if t.alertLimiter.Allow() {
			t.alertLast = now
			log.Printf("tracker: motion %.2f deg/s exceeds alert threshold %.2f deg/s", vel.TotalDegPerSec, t.cfg.AlertThreshold)
		}
	case vel.TotalDegPerSec > slewRateThreshold:
		motion = MotionSlewing
	}

	metrics.RecordPoll(true, sample.Azimuth, sample.Altitude, vel.TotalDegPerSec)
	t.hist.append(sample)
	t.lastSample = &sample
	t.lastUpdate = now
	t.velocity = vel
	t.motion = motion
	t.alert = alert
	return true
}

func (t *Tracker) recordFailure(err error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if errors.Is(err, nexstar.ErrNotConnected) {
		// Not an error: the channel just isn't open yet. Keep polling and
		// pick up samples once the connection succeeds.
		t.waiting = true
		return true
	}
	t.errorCount++
	log.Printf("tracker: poll failed (%d/%d): %v", t.errorCount, t.cfg.ErrorLimit, err)
	if t.errorCount >= t.cfg.ErrorLimit {
		log.Printf("tracker: stopping after %d consecutive failures", t.errorCount)
		t.enabled = false
		return false
	}
	return true
}

// Status returns a copy of the published state. Non-blocking; never touches
// the channel.
func (t *Tracker) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st := Status{
		Enabled:    t.enabled,
		Running:    t.running,
		Waiting:    t.waiting,
		LastUpdate: t.lastUpdate,
		ErrorCount: t.errorCount,
		Velocity:   t.velocity,
		Motion:     t.motion,
		Alert:      t.alert,
		AlertLast:  t.alertLast,
	}
	if t.lastSample != nil {
		s := *t.lastSample
		st.LastSample = &s
		age := time.Since(t.lastUpdate)
		st.AgeSeconds = age.Seconds()
		if age < liveAge {
			st.Freshness = "live"
		} else {
			st.Freshness = fmt.Sprintf("%ds ago", int(age.Seconds()))
		}
	}
	return st
}

// History returns a snapshot copy, oldest to newest. A positive limit keeps
// the most recent limit samples; a non-zero since drops older samples.
func (t *Tracker) History(limit int, since time.Time) []Sample {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.hist.snapshot(limit, since)
}

// Statistics summarizes the history window: span duration, sample count,
// and total drift as the angular separation between first and last samples.
func (t *Tracker) Statistics() Statistics {
	t.mu.RLock()
	defer t.mu.RUnlock()
	stats := Statistics{SampleCount: t.hist.len()}
	first, ok := t.hist.oldest()
	if !ok {
		return stats
	}
	last, _ := t.hist.newest()
	stats.Duration = last.Timestamp.Sub(first.Timestamp)
	stats.DriftDegrees = telescope.AngularSeparation(
		telescope.Equatorial{RAHours: first.RAHours, DecDegrees: first.DecDegrees},
		telescope.Equatorial{RAHours: last.RAHours, DecDegrees: last.DecDegrees},
	)
	return stats
}

// SetInterval changes the poll cadence, effective at the next cycle.
func (t *Tracker) SetInterval(d time.Duration) error {
	if err := validateInterval(d); err != nil {
		return err
	}
	t.mu.Lock()
	t.cfg.Interval = d
	t.mu.Unlock()
	return nil
}

// SetAlertThreshold changes the collision alert threshold, effective at the
// next cycle.
func (t *Tracker) SetAlertThreshold(degPerSec float64) error {
	if err := validateThreshold(degPerSec); err != nil {
		return err
	}
	t.mu.Lock()
	t.cfg.AlertThreshold = degPerSec
	t.mu.Unlock()
	return nil
}

func validateInterval(d time.Duration) error {
	if d < MinInterval || d > MaxInterval {
		return fmt.Errorf("tracker: interval %v outside [%v,%v]", d, MinInterval, MaxInterval)
	}
	return nil
}

func validateThreshold(v float64) error {
	if v < MinAlertThreshold || v > MaxAlertThreshold {
		return fmt.Errorf("tracker: alert threshold %v outside [%v,%v]", v, MinAlertThreshold, MaxAlertThreshold)
	}
	return nil
}
