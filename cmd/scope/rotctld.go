package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"

	"github.com/scopeworks/nexstar_interface/nexstar"
	"github.com/scopeworks/nexstar_interface/telescope"
)

// ListenRotctld speaks enough of the Hamlib rotctld protocol that gpredict
// and similar programs can point the mount.
func (s *Server) ListenRotctld(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		log.Print("shutdown; closing rotctld socket")
		ln.Close()
	}()
	go func() {
		for ctx.Err() == nil {
			conn, err := ln.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("failed to accept: %v", err)
				continue
			}
			go s.handleRotctld(conn)
		}
	}()
	return nil
}

func (s *Server) handleRotctld(conn net.Conn) {
	defer conn.Close()
	log.Printf("accepted connection from %v", conn.RemoteAddr())
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		// Two forms of command: single character, or "+\" followed by command name.
		cmd := scanner.Text()
		var args []string
		var extended bool
		if len(cmd) == 0 {
			continue
		} else if len(cmd) > 2 && cmd[0:2] == `+\` {
			extended = true
			parts := strings.Split(cmd, " ")
			cmd = parts[0][2:]
			if len(parts) > 1 {
				args = parts[1:]
			}
			fmt.Fprintf(conn, "%s:\n", cmd)
		} else {
			// Space after command is optional.
			if len(cmd) > 1 {
				args = strings.Fields(strings.TrimLeft(cmd[1:], " "))
			}
			cmd = string(cmd[0])
		}
		log.Printf("%v command: %q args: %#v", conn.RemoteAddr(), cmd, args)
		rprt := -1
		switch cmd {
		case "1", "dump_caps":
			fmt.Fprintf(conn, `Model name: NexStar
Mfg name: Celestron
Rot type: Az-El
Min Azimuth: -180.00
Max Aximuth: 180.00
Min Elevation: 0.00
Max Elevation: 90.00
Can set Position: Y
Can get Position: Y
Can Stop: Y
Can Park: N
Can Reset: N
Can Move: Y
Can get Info: N
`)
			rprt = 0
		case "S", "stop":
			extended = true // always print RPRT
			s.mu.Lock()
			err := s.ctl.CancelGoto()
			if err2 := s.ctl.StopMotion(nexstar.AxisAzimuth); err == nil {
				err = err2
			}
			if err2 := s.ctl.StopMotion(nexstar.AxisAltitude); err == nil {
				err = err2
			}
			s.mu.Unlock()
			if err == nil {
				rprt = 0
			}
		case "P", "set_pos":
			extended = true // always print RPRT
			if len(args) != 2 {
				rprt = -22
				break
			}
			az, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				rprt = -22
				break
			}
			el, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				rprt = -22
				break
			}
			s.mu.Lock()
			err = s.ctl.GotoAltAz(telescope.Horizontal{
				Azimuth:  nexstar.ToUnsigned(az),
				Altitude: el,
			})
			s.mu.Unlock()
			if err == nil {
				rprt = 0
			}
		case "M", "move":
			extended = true // always print RPRT
			if len(args) != 2 {
				rprt = -22
				break
			}
			dir, err := strconv.Atoi(args[0])
			if err != nil {
				rprt = -22
				break
			}
			// Speed is 0-100; the protocol has nine fixed rates.
			speed, err := strconv.Atoi(args[1])
			if err != nil || speed < 0 || speed > 100 {
				rprt = -22
				break
			}
			axis, direction, ok := rotctldMove(dir)
			if !ok {
				rprt = -22
				break
			}
			s.mu.Lock()
			err = s.ctl.MoveFixed(axis, direction, rotctldRate(speed), 0)
			s.mu.Unlock()
			if err == nil {
				rprt = 0
			}
		case "p", "get_pos":
			pos, err := s.lastPosition()
			if err != nil {
				break
			}
			az := pos.Azimuth
			if az > 180 {
				az -= 360
			}
			if extended {
				fmt.Fprintf(conn, "Azimuth: %.6f\nElevation: %.6f\n", az, pos.Altitude)
			} else {
				fmt.Fprintf(conn, "%.6f\n%.6f\n", az, pos.Altitude)
			}
			rprt = 0
		}
		if extended || rprt != 0 {
			fmt.Fprintf(conn, "RPRT %d\n", rprt)
		}
	}
	if err := scanner.Err(); err != nil {
		log.Printf("reading from %v: %v", conn.RemoteAddr(), err)
	}
}

// lastPosition prefers the tracker's sample so get_pos polls never queue
// behind other traffic on the half-duplex link.
func (s *Server) lastPosition() (telescope.Horizontal, error) {
	if st := s.trk.Status(); st.LastSample != nil {
		return telescope.Horizontal{
			Azimuth:  st.LastSample.Azimuth,
			Altitude: st.LastSample.Altitude,
		}, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctl.PositionAltAz()
}

func rotctldMove(dir int) (nexstar.Axis, nexstar.Direction, bool) {
	switch dir {
	case 2: // Up
		return nexstar.AxisAltitude, nexstar.Positive, true
	case 4: // Down
		return nexstar.AxisAltitude, nexstar.Negative, true
	case 8: // Left
		return nexstar.AxisAzimuth, nexstar.Negative, true
	case 16: // Right
		return nexstar.AxisAzimuth, nexstar.Positive, true
	}
	return 0, 0, false
}

// rotctldRate maps a 0-100 speed onto the mount's fixed rates 0-9.
func rotctldRate(speed int) int {
	if speed == 0 {
		return 0
	}
	rate := speed / 11
	if rate < 1 {
		rate = 1
	}
	if rate > 9 {
		rate = 9
	}
	return rate
}
