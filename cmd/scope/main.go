// Command scope is the mount control daemon. It owns the serial or TCP
// channel to a NexStar mount, keeps a background position tracker running,
// and exposes the HTTP/websocket API plus an optional rotctld listener.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/scopeworks/nexstar_interface/internal/config"
	"github.com/scopeworks/nexstar_interface/nexstar"
	"github.com/scopeworks/nexstar_interface/power"
	"github.com/scopeworks/nexstar_interface/telescope"
	"github.com/scopeworks/nexstar_interface/tracker"
)

var (
	configPath  = flag.String("config", "", "path to yaml config file")
	serialPort  = flag.String("serial", "", "mount serial port, overrides config")
	mountAddr   = flag.String("mount_addr", "", "mount TCP address, overrides config")
	listenAddr  = flag.String("addr", "", "HTTP listen address, overrides config")
	rotctldAddr = flag.String("rotctld", "", "rotctld listen address, overrides config")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	if *serialPort != "" {
		cfg.Mount.Port = *serialPort
	}
	if *mountAddr != "" {
		cfg.Mount.Addr = *mountAddr
	}
	if *listenAddr != "" {
		cfg.Server.Addr = *listenAddr
	}
	if *rotctldAddr != "" {
		cfg.Server.RotctldAddr = *rotctldAddr
	}

	if cfg.Logging.File != "" {
		log.SetOutput(&lumberjack.Logger{
			Filename:   cfg.Logging.File,
			MaxSize:    cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAge:     cfg.Logging.MaxAgeDays,
		})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctl := telescope.NewController(nexstar.Config{
		Port:    cfg.Mount.Port,
		Baud:    cfg.Mount.Baud,
		Addr:    cfg.Mount.Addr,
		Timeout: cfg.Mount.Timeout,
		Verbose: cfg.Mount.Verbose,
	})
	trk := tracker.New(ctl, tracker.Config{
		Interval:       cfg.Tracker.Interval,
		AlertThreshold: cfg.Tracker.AlertThreshold,
		ErrorLimit:     cfg.Tracker.ErrorLimit,
		AlertCooldown:  cfg.Tracker.AlertCooldown,
	})

	server := NewServer(cfg, ctl, trk)

	if cfg.Power.Port != "" || cfg.Power.URL != "" {
		pwr, err := power.Connect(ctx, cfg.Power.Port, cfg.Power.Baud, cfg.Power.URL, server.powerCallback)
		if err != nil {
			log.Fatalf("connecting power controller: %v", err)
		}
		server.pwr = pwr
	}

	// The tracker reports WAITING until the channel opens, so it can start
	// before the mount is reachable.
	if err := trk.Start(); err != nil {
		log.Fatal(err)
	}
	defer trk.Stop()
	go connectLoop(ctx, ctl, server)
	go server.Run(ctx)

	if cfg.Server.RotctldAddr != "" {
		if err := server.ListenRotctld(ctx, cfg.Server.RotctldAddr); err != nil {
			log.Fatalf("rotctld listener: %v", err)
		}
	}

	srv := &http.Server{
		Handler:      server.router(),
		Addr:         cfg.Server.Addr,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	log.Printf("Listening on %v", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
	ctl.Disconnect()
}

// connectLoop opens the mount channel with a one second retry backoff, then
// caches the mount identity for status reports.
func connectLoop(ctx context.Context, ctl *telescope.Controller, server *Server) {
	for ctx.Err() == nil {
		if err := ctl.Connect(); err != nil {
			log.Printf("connecting mount: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(1 * time.Second):
			}
			continue
		}
		info, err := ctl.Info()
		if err != nil {
			log.Printf("reading mount info: %v", err)
		} else {
			server.setInfo(info)
			log.Printf("connected to %s firmware %d.%d", info.ModelName, info.FirmwareMajor, info.FirmwareMinor)
		}
		return
	}
}
