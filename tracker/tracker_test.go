package tracker

import (
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/scopeworks/nexstar_interface/nexstar"
	"github.com/scopeworks/nexstar_interface/telescope"
)

// fakeScope is a scripted Positioner. With a non-zero altRate it advances
// altitude by wall clock, like a mount in motion.
type fakeScope struct {
	mu      sync.Mutex
	az, alt float64
	altRate float64 // deg/s, applied against wall clock
	started time.Time
	err     error
	block   chan struct{} // non-nil: position calls block until closed
	calls   int
}

func newFakeScope() *fakeScope {
	return &fakeScope{started: time.Now()}
}

func (f *fakeScope) position() (az, alt float64, err error) {
	f.mu.Lock()
	block := f.block
	f.calls++
	az, alt = f.az, f.alt
	if f.altRate != 0 {
		alt += f.altRate * time.Since(f.started).Seconds()
	}
	err = f.err
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	return az, alt, err
}

func (f *fakeScope) PositionRADec() (telescope.Equatorial, error) {
	az, alt, err := f.position()
	return telescope.Equatorial{RAHours: az / 15, DecDegrees: alt}, err
}

func (f *fakeScope) PositionAltAz() (telescope.Horizontal, error) {
	az, alt, err := f.position()
	return telescope.Horizontal{Azimuth: az, Altitude: alt}, err
}

func (f *fakeScope) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeScope) setError(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeScope) setAlt(alt float64) {
	f.mu.Lock()
	f.alt = alt
	f.mu.Unlock()
}

func TestStartStopIdempotent(t *testing.T) {
	tr := New(newFakeScope(), Config{Interval: 20 * time.Millisecond})
	if err := tr.Start(); err != nil {
		t.Fatal(err)
	}
	if err := tr.Start(); err != nil {
		t.Errorf("second Start: %v", err)
	}
	if !tr.Status().Running {
		t.Error("Running = false after Start")
	}
	tr.Stop()
	tr.Stop()
	if tr.Status().Running {
		t.Error("Running = true after Stop")
	}
	if tr.Status().Enabled {
		t.Error("Enabled = true after Stop")
	}
}

func TestStopReturnsWithinInterval(t *testing.T) {
	tr := New(newFakeScope(), Config{Interval: 300 * time.Millisecond})
	if err := tr.Start(); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	start := time.Now()
	tr.Stop()
	if elapsed := time.Since(start); elapsed > 400*time.Millisecond {
		t.Errorf("Stop blocked %v, want under one interval", elapsed)
	}
}

func TestHistoryEviction(t *testing.T) {
	f := newFakeScope()
	tr := New(f, Config{HistoryCapacity: 5})
	for i := 0; i < 8; i++ {
		f.setAlt(float64(i))
		if !tr.poll() {
			t.Fatal("poll reported stop")
		}
	}
	got := tr.History(0, time.Time{})
	if len(got) != 5 {
		t.Fatalf("history length = %d, want 5", len(got))
	}
	for i, s := range got {
		if want := float64(i + 3); s.Altitude != want {
			t.Errorf("history[%d].Altitude = %v, want %v (oldest evicted first)", i, s.Altitude, want)
		}
		if i > 0 && got[i].Timestamp.Before(got[i-1].Timestamp) {
			t.Errorf("history[%d] out of chronological order", i)
		}
	}
}

func TestHistoryLimitAndSince(t *testing.T) {
	f := newFakeScope()
	tr := New(f, Config{HistoryCapacity: 10})
	for i := 0; i < 6; i++ {
		f.setAlt(float64(i))
		tr.poll()
	}
	if got := tr.History(2, time.Time{}); len(got) != 2 || got[1].Altitude != 5 {
		t.Errorf("History(2) = %+v, want most recent two", got)
	}
	all := tr.History(0, time.Time{})
	since := all[3].Timestamp
	got := tr.History(0, since)
	if len(got) != 2 {
		t.Errorf("History(since=%v) returned %d samples, want 2", since, len(got))
	}
}

func TestErrorLimitStopsWorker(t *testing.T) {
	f := newFakeScope()
	f.setError(errors.New("device unplugged"))
	tr := New(f, Config{ErrorLimit: 3})
	tr.cfg.Interval = 20 * time.Millisecond
	if err := tr.Start(); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for tr.Status().Running {
		if time.Now().After(deadline) {
			t.Fatal("worker did not stop after repeated failures")
		}
		time.Sleep(10 * time.Millisecond)
	}
	st := tr.Status()
	if st.ErrorCount != 3 {
		t.Errorf("ErrorCount = %d, want 3", st.ErrorCount)
	}
	calls := f.callCount()
	time.Sleep(100 * time.Millisecond)
	if got := f.callCount(); got != calls {
		t.Errorf("channel calls continued after self-stop: %d -> %d", calls, got)
	}
}

func TestNotConnectedIsWaitingNotError(t *testing.T) {
	f := newFakeScope()
	f.setError(nexstar.ErrNotConnected)
	tr := New(f, Config{ErrorLimit: 3})
	for i := 0; i < 10; i++ {
		if !tr.poll() {
			t.Fatal("poll stopped while waiting for connection")
		}
	}
	st := tr.Status()
	if !st.Waiting {
		t.Error("Waiting = false while disconnected")
	}
	if st.ErrorCount != 0 {
		t.Errorf("ErrorCount = %d while disconnected, want 0", st.ErrorCount)
	}

	// Connection comes up; polling resumes automatically.
	f.setError(nil)
	f.setAlt(12)
	tr.poll()
	st = tr.Status()
	if st.Waiting {
		t.Error("Waiting = true after reconnect")
	}
	if st.LastSample == nil || st.LastSample.Altitude != 12 {
		t.Errorf("LastSample = %+v after reconnect", st.LastSample)
	}
}

func TestVelocityFromMovingMount(t *testing.T) {
	f := newFakeScope()
	f.mu.Lock()
	f.altRate = 1.0 // 1 deg/s
	f.mu.Unlock()
	tr := New(f, Config{})
	tr.cfg.Interval = 100 * time.Millisecond
	if err := tr.Start(); err != nil {
		t.Fatal(err)
	}
	defer tr.Stop()
	time.Sleep(1100 * time.Millisecond)
	st := tr.Status()
	if st.LastSample == nil {
		t.Fatal("no sample after 1s")
	}
	if st.LastSample.Altitude < 0.8 || st.LastSample.Altitude > 1.3 {
		t.Errorf("altitude = %v after ~1s at 1 deg/s", st.LastSample.Altitude)
	}
	if math.Abs(st.Velocity.TotalDegPerSec-1.0) > 0.1 {
		t.Errorf("TotalDegPerSec = %v, want 1.0 +-10%%", st.Velocity.TotalDegPerSec)
	}
	if st.Motion != MotionSlewing {
		t.Errorf("Motion = %q, want %q", st.Motion, MotionSlewing)
	}
}

func TestAlertCooldown(t *testing.T) {
	f := newFakeScope()
	tr := New(f, Config{AlertThreshold: 5, AlertCooldown: 300 * time.Millisecond})

	tr.poll() // baseline, no velocity yet
	if tr.Status().Alert {
		t.Fatal("alert on first sample")
	}

	// Successive polls are microseconds apart, so any altitude step is an
	// enormous rate: guaranteed above threshold.
	f.setAlt(10)
	tr.poll()
	st := tr.Status()
	if !st.Alert || st.Motion != MotionAnomaly {
		t.Fatalf("no alert on spike: %+v", st)
	}
	first := st.AlertLast
	if first.IsZero() {
		t.Fatal("AlertLast not set on first alert")
	}

	// Second spike inside the cooldown window: condition reported, but the
	// alert does not re-fire.
	f.setAlt(20)
	tr.poll()
	st = tr.Status()
	if !st.Alert {
		t.Error("Alert flag dropped while condition persists")
	}
	if !st.AlertLast.Equal(first) {
		t.Error("alert re-fired within cooldown")
	}

	time.Sleep(350 * time.Millisecond)
	f.setAlt(30)
	tr.poll()
	if st = tr.Status(); !st.AlertLast.After(first) {
		t.Error("alert did not re-fire after cooldown expired")
	}
}

func TestReadsDoNotBlockOnHungChannel(t *testing.T) {
	f := newFakeScope()
	f.setAlt(3)
	tr := New(f, Config{})
	tr.poll() // one good sample

	// Hang every subsequent device call.
	block := make(chan struct{})
	f.mu.Lock()
	f.block = block
	f.mu.Unlock()
	tr.cfg.Interval = 20 * time.Millisecond
	if err := tr.Start(); err != nil {
		t.Fatal(err)
	}
	defer func() {
		close(block)
		tr.Stop()
	}()
	time.Sleep(100 * time.Millisecond) // worker is now stuck in a poll

	done := make(chan struct{})
	go func() {
		_ = tr.Status()
		_ = tr.History(0, time.Time{})
		_ = tr.Statistics()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("reads blocked while device call hung")
	}
	if st := tr.Status(); st.LastSample == nil || st.LastSample.Altitude != 3 {
		t.Errorf("published snapshot lost: %+v", st.LastSample)
	}
}

func TestStatistics(t *testing.T) {
	f := newFakeScope()
	tr := New(f, Config{})
	f.setAlt(10)
	tr.poll()
	f.setAlt(30)
	tr.poll()
	stats := tr.Statistics()
	if stats.SampleCount != 2 {
		t.Errorf("SampleCount = %d, want 2", stats.SampleCount)
	}
	// fakeScope reports dec = alt, so the drift is the dec change.
	if math.Abs(stats.DriftDegrees-20) > 1e-6 {
		t.Errorf("DriftDegrees = %v, want 20", stats.DriftDegrees)
	}
}

func TestSetters(t *testing.T) {
	tr := New(newFakeScope(), Config{})
	if err := tr.SetInterval(100 * time.Millisecond); err == nil {
		t.Error("SetInterval(100ms) accepted, want range error")
	}
	if err := tr.SetInterval(time.Minute); err == nil {
		t.Error("SetInterval(1m) accepted, want range error")
	}
	if err := tr.SetInterval(time.Second); err != nil {
		t.Errorf("SetInterval(1s): %v", err)
	}
	if err := tr.SetAlertThreshold(0.05); err == nil {
		t.Error("SetAlertThreshold(0.05) accepted, want range error")
	}
	if err := tr.SetAlertThreshold(2.5); err != nil {
		t.Errorf("SetAlertThreshold(2.5): %v", err)
	}
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	if tr.cfg.Interval != time.Second || tr.cfg.AlertThreshold != 2.5 {
		t.Errorf("config not applied: %+v", tr.cfg)
	}
}

func TestFreshnessLabel(t *testing.T) {
	f := newFakeScope()
	tr := New(f, Config{})
	tr.poll()
	if st := tr.Status(); st.Freshness != "live" {
		t.Errorf("Freshness = %q just after poll, want live", st.Freshness)
	}
	tr.mu.Lock()
	tr.lastUpdate = time.Now().Add(-12 * time.Second)
	tr.mu.Unlock()
	st := tr.Status()
	if !strings.HasSuffix(st.Freshness, "s ago") || st.Freshness == "live" {
		t.Errorf("Freshness = %q for stale sample", st.Freshness)
	}
}
