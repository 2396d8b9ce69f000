// Package artnet sends DMX universes as Art-Net ArtDMX packets over UDP and
// discovers nodes with ArtPoll.
package artnet

import (
	"bytes"
	"fmt"
	"net"
	"strconv"
	"sync"
	"syscall"
)

const (
	Port = 6454

	opPoll      = 0x2000
	opPollReply = 0x2100
	opDMX       = 0x5000
	opSync      = 0x5200

	protocolVersion = 14
)

var header = []byte("Art-Net\x00")

func appendHeader(buf []byte, op uint16) []byte {
	buf = append(buf, header...)
	// Opcodes are little-endian, the protocol version big-endian.
	return append(buf, byte(op), byte(op>>8), 0, protocolVersion)
}

// buildDMX builds an ArtDMX packet. Universe is the 15-bit port address.
func buildDMX(seq uint8, universe uint16, data []byte) []byte {
	pkt := make([]byte, 0, 18+len(data))
	pkt = appendHeader(pkt, opDMX)
	pkt = append(pkt, seq, 0, byte(universe&0xFF), byte((universe>>8)&0x7F))
	pkt = append(pkt, byte(len(data)>>8), byte(len(data)))
	return append(pkt, data...)
}

func buildSync() []byte {
	return append(appendHeader(nil, opSync), 0, 0)
}

func buildPoll() []byte {
	// TalkToMe: send replies on change, unicast.
	return append(appendHeader(nil, opPoll), 0x06, 0)
}

func opcode(pkt []byte) (uint16, bool) {
	if len(pkt) < 10 || !bytes.Equal(pkt[:8], header) {
		return 0, false
	}
	return uint16(pkt[8]) | uint16(pkt[9])<<8, true
}

// enableBroadcast sets SO_BROADCAST so sends to broadcast addresses work.
func enableBroadcast(conn *net.UDPConn) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var serr error
	err = raw.Control(func(fd uintptr) {
		serr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_BROADCAST, 1)
	})
	if err != nil {
		return err
	}
	return serr
}

// resolve accepts "host" or "host:port"; the port defaults to 6454.
func resolve(target string) (*net.UDPAddr, error) {
	if target == "" {
		target = net.IPv4bcast.String()
	}
	if _, _, err := net.SplitHostPort(target); err != nil {
		target = net.JoinHostPort(target, strconv.Itoa(Port))
	}
	addr, err := net.ResolveUDPAddr("udp4", target)
	if err != nil {
		return nil, fmt.Errorf("artnet: %w", err)
	}
	return addr, nil
}

// Sender transmits one universe to one target address.
type Sender struct {
	conn     *net.UDPConn
	target   *net.UDPAddr
	universe uint16
	// Sync sends an ArtSync after every frame.
	Sync bool

	mu  sync.Mutex
	seq uint8
}

// NewSender opens a UDP socket for target, which may be a unicast or
// broadcast address. An empty target broadcasts on 255.255.255.255.
func NewSender(target string, universe uint16) (*Sender, error) {
	addr, err := resolve(target)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return nil, fmt.Errorf("artnet: %w", err)
	}
	if err := enableBroadcast(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("artnet: enable broadcast: %w", err)
	}
	return &Sender{conn: conn, target: addr, universe: universe, seq: 1}, nil
}

func (s *Sender) Target() string {
	return s.target.String()
}

// Send transmits universe as the next ArtDMX frame. Sequence numbers run
// 1..255 and skip 0, which means "sequencing disabled".
func (s *Sender) Send(universe []byte) error {
	if len(universe) > 512 {
		return fmt.Errorf("artnet: universe is %d bytes", len(universe))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	pkt := buildDMX(s.seq, s.universe, universe)
	s.seq++
	if s.seq == 0 {
		s.seq = 1
	}
	if _, err := s.conn.WriteToUDP(pkt, s.target); err != nil {
		return fmt.Errorf("artnet: send to %s: %w", s.target, err)
	}
	if s.Sync {
		if _, err := s.conn.WriteToUDP(buildSync(), s.target); err != nil {
			return fmt.Errorf("artnet: sync to %s: %w", s.target, err)
		}
	}
	return nil
}

func (s *Sender) Close() error {
	return s.conn.Close()
}
