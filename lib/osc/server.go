package osc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"lightshow/lib/playback"
)

const DefaultPort = 53100

type Reply struct {
	Address string          `json:"address"`
	Status  string          `json:"status"`
	Reason  string          `json:"reason,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Reply statuses.
const (
	StatusOK       = "ok"
	StatusRejected = "rejected"
	StatusError    = "error"
)

type Server struct {
	mgr      *playback.Manager
	log      *slog.Logger
	listener net.Listener
	ctx      context.Context
	cancel   context.CancelFunc

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// Listen starts serving control connections on addr.
func Listen(addr string, mgr *playback.Manager, log *slog.Logger) (*Server, error) {
	if log == nil {
		log = slog.Default()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("osc: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		mgr:      mgr,
		log:      log,
		listener: ln,
		ctx:      ctx,
		cancel:   cancel,
		conns:    map[net.Conn]struct{}{},
	}
	go s.serve()
	return s, nil
}

func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

func (s *Server) Close() error {
	s.cancel()
	err := s.listener.Close()
	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()
	return err
}

// SendUpdate pushes "/update/<kind>" to every connected client.
func (s *Server) SendUpdate(kind string) {
	encoded := slipEncode(encodeMessage("/update/" + kind))
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		conn.Write(encoded)
	}
}

func (s *Server) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	s.log.Debug("osc client connected", "remote", conn.RemoteAddr())
	readFrames(conn, func(frame []byte) {
		addr, args, err := decodeMessage(frame)
		if err != nil {
			s.log.Warn("bad osc message", "remote", conn.RemoteAddr(), "error", err)
			return
		}
		if reply := s.handle(addr, args); reply != nil {
			s.write(conn, addr, reply)
		}
	})

	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	conn.Close()
	s.log.Debug("osc client disconnected", "remote", conn.RemoteAddr())
}

func (s *Server) write(conn net.Conn, addr string, reply *Reply) {
	reply.Address = addr
	buf, err := json.Marshal(reply)
	if err != nil {
		s.log.Error("encode osc reply", "address", addr, "error", err)
		return
	}
	encoded := slipEncode(encodeMessage("/reply"+addr, string(buf)))
	s.mu.Lock()
	defer s.mu.Unlock()
	conn.Write(encoded)
}

func ok(data any) *Reply {
	if data == nil {
		return &Reply{Status: StatusOK}
	}
	buf, err := json.Marshal(data)
	if err != nil {
		return fail(err)
	}
	return &Reply{Status: StatusOK, Data: buf}
}

func rejected(reason string, data any) *Reply {
	r := ok(data)
	r.Status = StatusRejected
	r.Reason = reason
	return r
}

func fail(err error) *Reply {
	return &Reply{Status: StatusError, Reason: playback.Reason(err), Data: errorData(err)}
}

func errorData(err error) json.RawMessage {
	buf, _ := json.Marshal(err.Error())
	return buf
}

var errBadArgs = errors.New("osc: bad arguments")

// handle runs one request. A nil reply means the address is fire-and-forget.
func (s *Server) handle(addr string, args []any) *Reply {
	switch addr {
	case "/play", "/pause":
		if err := s.mgr.SetPlaybackState(s.ctx, addr == "/play"); err != nil {
			return fail(err)
		}
		return ok(s.mgr.Status())

	case "/stop":
		if err := s.mgr.Stop(s.ctx); err != nil {
			return fail(err)
		}
		return ok(s.mgr.Status())

	case "/seek":
		var err error
		if name, isName := str(args, 0); isName {
			err = s.mgr.SeekSection(name)
		} else if t, valid := number(args, 0); valid {
			err = s.mgr.SeekTimecode(t)
		} else {
			err = fmt.Errorf("%w: /seek <seconds|section>", errBadArgs)
		}
		if err != nil {
			return fail(err)
		}
		return ok(s.mgr.Status())

	case "/timecode":
		if t, valid := number(args, 0); valid {
			s.mgr.UpdateTimecode(t)
		}
		return nil

	case "/dmx":
		ch, ok1 := number(args, 0)
		v, ok2 := number(args, 1)
		if !ok1 || !ok2 {
			return fail(fmt.Errorf("%w: /dmx <channel> <value>", errBadArgs))
		}
		res, err := s.mgr.UpdateDMXChannel(int(ch), int(v))
		if err != nil {
			return fail(err)
		}
		if !res.Applied {
			return rejected(res.Reason, res)
		}
		return ok(res)

	case "/preview":
		req, err := previewRequest(args)
		if err != nil {
			return fail(err)
		}
		res, err := s.mgr.StartPreview(s.ctx, req)
		if err != nil {
			return fail(err)
		}
		if !res.OK {
			return rejected(res.Reason, res)
		}
		return ok(res)

	case "/preview/stop":
		if err := s.mgr.CancelPreview(s.ctx); err != nil {
			return fail(err)
		}
		return ok(nil)

	case "/cue/add":
		t, valid := number(args, 0)
		if !valid {
			return fail(fmt.Errorf("%w: /cue/add <seconds> [name]", errBadArgs))
		}
		name, _ := str(args, 1)
		entries, err := s.mgr.AddCueEntry(t, name)
		if err != nil {
			return fail(err)
		}
		return ok(entries)

	case "/status":
		return ok(s.mgr.Status())

	case "/universe":
		u := s.mgr.OutputUniverse()
		return ok(u[:])
	}

	return &Reply{Status: StatusError, Reason: "unknown_address"}
}

// previewRequest reads "<fixture> <effect> <duration> [json data]".
func previewRequest(args []any) (playback.PreviewRequest, error) {
	fixtureID, ok1 := str(args, 0)
	effect, ok2 := str(args, 1)
	duration, ok3 := number(args, 2)
	if !ok1 || !ok2 || !ok3 {
		return playback.PreviewRequest{}, fmt.Errorf("%w: /preview <fixture> <effect> <duration> [data]", errBadArgs)
	}
	req := playback.PreviewRequest{FixtureID: fixtureID, Effect: effect, Duration: duration}
	if raw, ok := str(args, 3); ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Data); err != nil {
			return req, fmt.Errorf("%w: preview data: %v", errBadArgs, err)
		}
	}
	return req, nil
}
