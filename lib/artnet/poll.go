package artnet

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"time"
)

type Node struct {
	Addr      string
	IP        net.IP
	Port      int
	ShortName string
	LongName  string
}

func (n Node) String() string {
	return fmt.Sprintf("%s (%s) %s", n.ShortName, n.IP, n.LongName)
}

func cstring(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func parsePollReply(pkt []byte) (Node, bool) {
	op, ok := opcode(pkt)
	if !ok || op != opPollReply || len(pkt) < 44 {
		return Node{}, false
	}
	n := Node{
		IP:        net.IPv4(pkt[10], pkt[11], pkt[12], pkt[13]),
		Port:      int(binary.LittleEndian.Uint16(pkt[14:16])),
		ShortName: cstring(pkt[26:44]),
	}
	if len(pkt) >= 108 {
		n.LongName = cstring(pkt[44:108])
	}
	return n, true
}

type PollOptions struct {
	// Listen is the local address replies arrive on. Nodes answer on 6454.
	Listen string
	// Target receives the ArtPoll; broadcast by default.
	Target string
	Wait   time.Duration
}

// Poll broadcasts an ArtPoll and collects replies until Wait elapses or ctx
// is done. Duplicate replies from one address are reported once.
func Poll(ctx context.Context, opts PollOptions) ([]Node, error) {
	if opts.Listen == "" {
		opts.Listen = fmt.Sprintf(":%d", Port)
	}
	if opts.Wait <= 0 {
		opts.Wait = 3 * time.Second
	}
	target, err := resolve(opts.Target)
	if err != nil {
		return nil, err
	}
	laddr, err := net.ResolveUDPAddr("udp4", opts.Listen)
	if err != nil {
		return nil, fmt.Errorf("artnet: %w", err)
	}
	conn, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		return nil, fmt.Errorf("artnet: %w", err)
	}
	defer conn.Close()
	if err := enableBroadcast(conn); err != nil {
		return nil, fmt.Errorf("artnet: enable broadcast: %w", err)
	}

	if _, err := conn.WriteToUDP(buildPoll(), target); err != nil {
		return nil, fmt.Errorf("artnet: poll %s: %w", target, err)
	}

	deadline := time.Now().Add(opts.Wait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetReadDeadline(deadline)
	stop := context.AfterFunc(ctx, func() { conn.SetReadDeadline(time.Now()) })
	defer stop()

	var nodes []Node
	seen := map[string]bool{}
	buf := make([]byte, 1024)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return nodes, nil
			}
			return nodes, fmt.Errorf("artnet: %w", err)
		}
		node, ok := parsePollReply(buf[:n])
		if !ok || seen[from.String()] {
			continue
		}
		seen[from.String()] = true
		node.Addr = from.String()
		nodes = append(nodes, node)
	}
}
