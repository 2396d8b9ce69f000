package osc

import (
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"lightshow/lib/cuesheet"
	"lightshow/lib/playback"
)

type Update struct {
	Kind string
}

// Client talks to a Server. Requests to the same address must not overlap.
type Client struct {
	conn    net.Conn
	mu      sync.Mutex
	pending map[string]chan *Reply
	updates chan Update
	timeout time.Duration
}

func Dial(addr string) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("osc: %w", err)
	}
	c := &Client{
		conn:    conn,
		pending: make(map[string]chan *Reply),
		updates: make(chan Update, 64),
		timeout: 5 * time.Second,
	}
	go readFrames(conn, c.handleFrame)
	return c, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) Updates() <-chan Update {
	return c.updates
}

func (c *Client) handleFrame(frame []byte) {
	addr, args, err := decodeMessage(frame)
	if err != nil {
		return
	}

	if kind, ok := strings.CutPrefix(addr, "/update/"); ok {
		select {
		case c.updates <- Update{Kind: kind}:
		default:
		}
		return
	}

	replyAddr, ok := strings.CutPrefix(addr, "/reply")
	if !ok {
		return
	}
	s, ok := str(args, 0)
	if !ok {
		return
	}
	var reply Reply
	if err := json.Unmarshal([]byte(s), &reply); err != nil {
		return
	}
	c.mu.Lock()
	ch, exists := c.pending[replyAddr]
	if exists {
		delete(c.pending, replyAddr)
	}
	c.mu.Unlock()
	if exists {
		ch <- &reply
	}
}

func (c *Client) send(addr string, args ...any) error {
	encoded := slipEncode(encodeMessage(addr, args...))
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.conn.Write(encoded)
	return err
}

// request sends addr and waits for its reply. Rejections come back as a
// reply with a nil error; server-side failures as an error.
func (c *Client) request(addr string, args ...any) (*Reply, error) {
	ch := make(chan *Reply, 1)
	c.mu.Lock()
	c.pending[addr] = ch
	c.mu.Unlock()

	if err := c.send(addr, args...); err != nil {
		c.mu.Lock()
		delete(c.pending, addr)
		c.mu.Unlock()
		return nil, err
	}

	select {
	case reply := <-ch:
		if reply.Status == StatusError {
			var msg string
			json.Unmarshal(reply.Data, &msg)
			return reply, fmt.Errorf("osc: %s: %s", addr, msg)
		}
		return reply, nil
	case <-time.After(c.timeout):
		c.mu.Lock()
		delete(c.pending, addr)
		c.mu.Unlock()
		return nil, fmt.Errorf("osc: %s: timeout", addr)
	}
}

func requestInto[T any](c *Client, v *T, addr string, args ...any) (*Reply, error) {
	reply, err := c.request(addr, args...)
	if err != nil {
		return reply, err
	}
	if len(reply.Data) > 0 {
		if err := json.Unmarshal(reply.Data, v); err != nil {
			return reply, fmt.Errorf("osc: %s: %w", addr, err)
		}
	}
	return reply, nil
}

func (c *Client) Play() (playback.Status, error) {
	var st playback.Status
	_, err := requestInto(c, &st, "/play")
	return st, err
}

func (c *Client) Pause() (playback.Status, error) {
	var st playback.Status
	_, err := requestInto(c, &st, "/pause")
	return st, err
}

func (c *Client) Stop() (playback.Status, error) {
	var st playback.Status
	_, err := requestInto(c, &st, "/stop")
	return st, err
}

func (c *Client) Seek(seconds float64) (playback.Status, error) {
	var st playback.Status
	_, err := requestInto(c, &st, "/seek", seconds)
	return st, err
}

func (c *Client) SeekSection(name string) (playback.Status, error) {
	var st playback.Status
	_, err := requestInto(c, &st, "/seek", name)
	return st, err
}

// UpdateTimecode reports the audio clock. It does not wait for a reply.
func (c *Client) UpdateTimecode(seconds float64) error {
	return c.send("/timecode", seconds)
}

func (c *Client) SetChannel(channel, value int) (playback.EditResult, error) {
	var res playback.EditResult
	_, err := requestInto(c, &res, "/dmx", int32(channel), int32(value))
	return res, err
}

func (c *Client) StartPreview(req playback.PreviewRequest) (playback.PreviewResult, error) {
	args := []any{req.FixtureID, req.Effect, req.Duration}
	if len(req.Data) > 0 {
		buf, err := json.Marshal(req.Data)
		if err != nil {
			return playback.PreviewResult{}, fmt.Errorf("osc: preview data: %w", err)
		}
		args = append(args, string(buf))
	}
	var res playback.PreviewResult
	_, err := requestInto(c, &res, "/preview", args...)
	return res, err
}

func (c *Client) StopPreview() error {
	_, err := c.request("/preview/stop")
	return err
}

func (c *Client) AddCue(seconds float64, name string) ([]*cuesheet.Entry, error) {
	var entries []*cuesheet.Entry
	_, err := requestInto(c, &entries, "/cue/add", seconds, name)
	return entries, err
}

func (c *Client) Status() (playback.Status, error) {
	var st playback.Status
	_, err := requestInto(c, &st, "/status")
	return st, err
}

func (c *Client) Universe() ([]byte, error) {
	var u []byte
	_, err := requestInto(c, &u, "/universe")
	return u, err
}
