package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"lightshow/lib/artnet"
	"lightshow/lib/enttec"
)

// artnetpoll lists the DMX outputs this machine can reach: Art-Net nodes
// answering a poll, and serial ports that may hold an Enttec widget.
func main() {
	target := pflag.String("target", "", "address to poll (default: broadcast)")
	listen := pflag.String("listen", "", "local address to poll from")
	wait := pflag.Duration("wait", 3*time.Second, "how long to collect replies")
	pflag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *wait+time.Second)
	defer cancel()

	nodes, err := artnet.Poll(ctx, artnet.PollOptions{Listen: *listen, Target: *target, Wait: *wait})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Art-Net nodes: %d\n", len(nodes))
	for _, n := range nodes {
		fmt.Printf("  %s\n", n)
	}

	ports, err := enttec.Ports()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing serial ports: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Serial ports: %d\n", len(ports))
	for _, p := range ports {
		fmt.Printf("  %s\n", p)
	}
}
