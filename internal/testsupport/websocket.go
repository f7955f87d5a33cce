package testsupport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"

	"aiwatch/internal/channel"
)

// FakeConn is an in-memory channel.Conn. Frames pushed with Push are
// returned by ReadMessage; frames written by the session are recorded.
type FakeConn struct {
	inbound   chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	written []map[string]any
	writes  chan map[string]any
}

func NewFakeConn() *FakeConn {
	return &FakeConn{
		inbound: make(chan []byte, 64),
		closed:  make(chan struct{}),
		writes:  make(chan map[string]any, 64),
	}
}

// Push queues an inbound frame.
func (c *FakeConn) Push(frame string) {
	select {
	case c.inbound <- []byte(frame):
	case <-c.closed:
	}
}

func (c *FakeConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-c.inbound:
		return data, nil
	case <-c.closed:
		return nil, io.EOF
	}
}

func (c *FakeConn) WriteJSON(v any) error {
	select {
	case <-c.closed:
		return errors.New("write on closed fake conn")
	default:
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}
	c.mu.Lock()
	c.written = append(c.written, msg)
	c.mu.Unlock()
	select {
	case c.writes <- msg:
	default:
	}
	return nil
}

func (c *FakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// Closed is closed once the connection is closed.
func (c *FakeConn) Closed() <-chan struct{} {
	return c.closed
}

// Writes streams every frame the session writes.
func (c *FakeConn) Writes() <-chan map[string]any {
	return c.writes
}

// Written returns the frames written so far.
func (c *FakeConn) Written() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]map[string]any(nil), c.written...)
}

// DialResult scripts one Dial outcome.
type DialResult struct {
	Conn *FakeConn
	Err  error
}

// FakeDialer returns scripted results in order. Once the script is
// exhausted Dial blocks until ctx is done.
type FakeDialer struct {
	mu      sync.Mutex
	script  []DialResult
	urls    []string
	headers []http.Header
}

func NewFakeDialer(script ...DialResult) *FakeDialer {
	return &FakeDialer{script: script}
}

func (d *FakeDialer) Dial(ctx context.Context, url string, header http.Header) (channel.Conn, error) {
	d.mu.Lock()
	d.urls = append(d.urls, url)
	d.headers = append(d.headers, header.Clone())
	if len(d.script) == 0 {
		d.mu.Unlock()
		<-ctx.Done()
		return nil, ctx.Err()
	}
	next := d.script[0]
	d.script = d.script[1:]
	d.mu.Unlock()
	if next.Err != nil {
		return nil, next.Err
	}
	return next.Conn, nil
}

// Dials returns the number of Dial calls.
func (d *FakeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

// URLs returns every dialed URL.
func (d *FakeDialer) URLs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.urls...)
}

// Headers returns the headers of every Dial call.
func (d *FakeDialer) Headers() []http.Header {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]http.Header(nil), d.headers...)
}
