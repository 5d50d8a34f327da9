// Command scope_sim serves a simulated NexStar mount over TCP so the daemon
// can be exercised without hardware.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os/signal"
	"syscall"

	"github.com/scopeworks/nexstar_interface/nexstar"
)

var addr = flag.String("addr", "127.0.0.1:4030", "address to listen on")

func main() {
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		log.Fatal(err)
	}

	log.Printf("simulated mount listening on %v", ln.Addr())
	if err := nexstar.Serve(ctx, ln); err != nil && ctx.Err() == nil {
		log.Fatal(err)
	}
}
