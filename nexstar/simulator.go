package nexstar

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Simulator speaks the device side of the protocol over an in-memory pipe or
// TCP connection. It maintains a kinematic mount state so goto commands take
// time to complete, which lets tests exercise slew polling and the position
// tracker against realistic motion.
type Simulator struct {
	conn io.ReadWriteCloser

	mu       sync.Mutex
	az, alt  float64 // degrees; alt signed
	ra, dec  float64 // wire degrees; dec signed
	tgtAz    float64
	tgtAlt   float64
	tgtRA    float64
	tgtDec   float64
	slewing  bool
	rateAz   float64 // deg/s from fixed-rate moves
	rateAlt  float64
	tracking TrackingMode
	lat, lon float64 // wire degrees
	clock    Time
	model    byte
	verMaj   byte
	verMin   byte
}

const (
	// Goto slew speed in degrees/second.
	simSlewRate = 8.0
	// Discrete simulation step size.
	simStepSize = 25 * time.Millisecond
)

// Fixed-rate move speeds in degrees/second, indexed by the 0-9 rate scale.
var simMoveRates = [10]float64{0, 1.0 / 240, 1.0 / 120, 1.0 / 40, 1.0 / 12, 0.25, 0.5, 1, 2, 4}

// NewSimulator returns a simulator and the host side of its pipe.
func NewSimulator() (*Simulator, net.Conn) {
	a, b := net.Pipe()
	return &Simulator{
		conn:   a,
		model:  6, // SE series
		verMaj: 4,
		verMin: 21,
	}, b
}

// NewSimulatorConn returns a simulator bound to an existing connection.
func NewSimulatorConn(conn io.ReadWriteCloser) *Simulator {
	return &Simulator{conn: conn, model: 6, verMaj: 4, verMin: 21}
}

// Run steps the mount and answers commands until ctx is canceled or the
// connection closes.
func (s *Simulator) Run(ctx context.Context) error {
	defer s.conn.Close()
	t := time.NewTicker(simStepSize)
	defer t.Stop()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
			}
			s.step(simStepSize.Seconds())
		}
	})
	g.Go(s.reader)
	g.Go(func() error {
		<-ctx.Done()
		return s.conn.Close()
	})
	return g.Wait()
}

// Serve accepts connections one at a time and runs the simulator on each.
func Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		log.Printf("simulator: accepted %v", conn.RemoteAddr())
		if err := NewSimulatorConn(conn).Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("simulator: %v", err)
		}
	}
}

func stepToward(pos, tgt, maxDelta float64) float64 {
	// Shortest way around the circle.
	delta := math.Mod(tgt-pos+540, 360) - 180
	if math.Abs(delta) <= maxDelta {
		return tgt
	}
	if delta < 0 {
		maxDelta = -maxDelta
	}
	return math.Mod(pos+maxDelta+360, 360)
}

func (s *Simulator) step(dt float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.slewing {
		max := simSlewRate * dt
		s.az = stepToward(s.az, s.tgtAz, max)
		s.alt = stepToward(ToUnsigned(s.alt), ToUnsigned(s.tgtAlt), max)
		s.alt = ToSigned(s.alt)
		s.ra = stepToward(s.ra, s.tgtRA, max)
		s.dec = stepToward(ToUnsigned(s.dec), ToUnsigned(s.tgtDec), max)
		s.dec = ToSigned(s.dec)
		if s.az == s.tgtAz && s.alt == s.tgtAlt && s.ra == s.tgtRA && s.dec == s.tgtDec {
			s.slewing = false
		}
	}
	if s.rateAz != 0 {
		s.az = math.Mod(s.az+s.rateAz*dt+360, 360)
		s.ra = math.Mod(s.ra+s.rateAz*dt+360, 360)
	}
	if s.rateAlt != 0 {
		s.alt = clampAlt(s.alt + s.rateAlt*dt)
		s.dec = clampAlt(s.dec + s.rateAlt*dt)
	}
}

func clampAlt(v float64) float64 {
	if v > 90 {
		return 90
	}
	if v < -90 {
		return -90
	}
	return v
}

// paramLen gives the parameter byte count for each command verb, so the
// reader can consume binary parameters that may themselves contain the
// terminator byte.
func paramLen(verb byte) (int, bool) {
	switch verb {
	case 'K', 'T':
		return 1, true
	case 'R', 'B', 'S', 'W':
		return 17, true
	case 'P':
		return 6, true
	case 'H':
		return 8, true
	case 'V', 'm', 'E', 'Z', 'L', 'M', 't', 'w', 'h':
		return 0, true
	}
	return 0, false
}

func (s *Simulator) reader() error {
	br := bufio.NewReader(s.conn)
	for {
		verb, err := br.ReadByte()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("reading command: %w", err)
		}
		n, ok := paramLen(verb)
		if !ok {
			log.Printf("simulator: unknown command %q", verb)
			continue
		}
		params := make([]byte, n)
		if _, err := io.ReadFull(br, params); err != nil {
			return fmt.Errorf("reading %q parameters: %w", verb, err)
		}
		if term, err := br.ReadByte(); err != nil {
			return fmt.Errorf("reading %q terminator: %w", verb, err)
		} else if term != terminator {
			log.Printf("simulator: %q not terminated (got %q)", verb, term)
			continue
		}
		if err := s.handle(verb, params); err != nil {
			return err
		}
	}
}

func (s *Simulator) handle(verb byte, params []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch verb {
	case 'K':
		return s.respond(params)
	case 'V':
		return s.respond([]byte{s.verMaj, s.verMin})
	case 'm':
		return s.respond([]byte{s.model})
	case 'E':
		return s.respond([]byte(EncodePair(s.ra, ToUnsigned(s.dec))))
	case 'Z':
		return s.respond([]byte(EncodePair(s.az, ToUnsigned(s.alt))))
	case 'R', 'B', 'S':
		a, b, err := DecodePair(string(params))
		if err != nil {
			log.Printf("simulator: %q: %v", verb, err)
			return s.respond(nil)
		}
		switch verb {
		case 'R':
			s.tgtRA, s.tgtDec = a, ToSigned(b)
			s.tgtAz, s.tgtAlt = a, ToSigned(b)
			s.slewing = true
		case 'B':
			s.tgtAz, s.tgtAlt = a, ToSigned(b)
			s.tgtRA, s.tgtDec = a, ToSigned(b)
			s.slewing = true
		case 'S':
			s.ra, s.dec = a, ToSigned(b)
		}
		return s.respond(nil)
	case 'L':
		if s.slewing {
			return s.respond([]byte{'1'})
		}
		return s.respond([]byte{'0'})
	case 'M':
		s.slewing = false
		return s.respond(nil)
	case 'P':
		rate := simMoveRates[params[2]%10]
		if params[1] == 7 {
			rate = -rate
		}
		switch params[0] {
		case 16:
			s.rateAz = rate
		case 17:
			s.rateAlt = rate
		}
		return s.respond(nil)
	case 't':
		return s.respond([]byte{byte(s.tracking)})
	case 'T':
		s.tracking = TrackingMode(params[0])
		return s.respond(nil)
	case 'w':
		return s.respond([]byte(DegreesToHex(s.lat) + DegreesToHex(s.lon)))
	case 'W':
		a, b, err := DecodePair(string(params))
		if err == nil {
			s.lat, s.lon = a, b
		}
		return s.respond(nil)
	case 'h':
		dst := byte(0)
		if s.clock.DST {
			dst = 1
		}
		return s.respond([]byte{s.clock.Hour, s.clock.Minute, s.clock.Second, s.clock.Month, s.clock.Day, s.clock.Year, byte(s.clock.TZOffset), dst})
	case 'H':
		s.clock = Time{
			Hour: params[0], Minute: params[1], Second: params[2],
			Month: params[3], Day: params[4], Year: params[5],
			TZOffset: int8(params[6]), DST: params[7] == 1,
		}
		return s.respond(nil)
	}
	return nil
}

func (s *Simulator) respond(body []byte) error {
	frame := append(append([]byte{}, body...), terminator)
	_, err := s.conn.Write(frame)
	return err
}

// SetPosition forces the mount state, for tests.
func (s *Simulator) SetPosition(azDeg, altDeg float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.az, s.alt = azDeg, altDeg
	s.ra, s.dec = azDeg, altDeg
}
