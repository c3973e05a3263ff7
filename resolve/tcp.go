// Copyright 2024 the arrowhead-f Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package resolve

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/u-root/u-root/pkg/ulog"

	"github.com/arrowhead-f/ahclient/dnswire"
)

// tcpTransport keeps one connection to the server. Messages travel
// with the RFC 1035 §4.2.2 two-byte length prefix in both directions;
// every read waits at most the configured timeout, and an idle read
// deadline surfaces as a timeout event rather than an error.
type tcpTransport struct {
	addr    string
	timeout time.Duration
	log     ulog.Logger
	ev      chan event

	mu   sync.Mutex
	conn net.Conn

	// scratch holds the length prefix at offset 0 and the encoded
	// message at offset 2. Single-owner, reused across sends.
	scratch []byte
}

func newTCPTransport(addr string, timeout time.Duration, log ulog.Logger) *tcpTransport {
	return &tcpTransport{
		addr:    addr,
		timeout: timeout,
		log:     log,
		ev:      make(chan event, 16),
		scratch: make([]byte, 2+dnswire.MaxTCPSize),
	}
}

func (t *tcpTransport) events() <-chan event { return t.ev }

func (t *tcpTransport) open() {
	go func() {
		conn, err := net.DialTimeout("tcp", t.addr, t.timeout)
		if err != nil {
			t.ev <- event{kind: evError, err: fmt.Errorf("connecting to %s: %w", t.addr, err)}
			t.ev <- event{kind: evClosed}
			return
		}
		t.mu.Lock()
		t.conn = conn
		t.mu.Unlock()
		t.log.Printf("resolve: tcp connection to %s open", t.addr)
		t.ev <- event{kind: evOpened}
		go t.read(conn)
	}()
}

func (t *tcpTransport) close() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (t *tcpTransport) send(m *dnswire.Message) error {
	wire, err := m.Pack(t.scratch[2:])
	if err != nil {
		return err
	}
	t.scratch[0] = byte(len(wire) >> 8)
	t.scratch[1] = byte(len(wire))

	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return net.ErrClosed
	}
	conn.SetWriteDeadline(time.Now().Add(t.timeout))
	if _, err := conn.Write(t.scratch[:2+len(wire)]); err != nil {
		return fmt.Errorf("writing framed message: %w", err)
	}
	return nil
}

// read runs the two-state framing parser: two length bytes, then that
// many body bytes, decode, repeat.
func (t *tcpTransport) read(conn net.Conn) {
	var lenbuf [2]byte
	body := make([]byte, dnswire.MaxTCPSize)
	for {
		conn.SetReadDeadline(time.Now().Add(t.timeout))
		if _, err := io.ReadFull(conn, lenbuf[:]); err != nil {
			t.readFailed(conn, err)
			return
		}
		n := int(lenbuf[0])<<8 | int(lenbuf[1])
		conn.SetReadDeadline(time.Now().Add(t.timeout))
		if _, err := io.ReadFull(conn, body[:n]); err != nil {
			t.readFailed(conn, err)
			return
		}
		m := new(dnswire.Message)
		if err := m.Unpack(body[:n]); err != nil {
			// A stream that stops framing correctly is unusable.
			t.ev <- event{kind: evError, err: fmt.Errorf("%w: %v", ErrMalformed, err)}
			t.destroy(conn)
			t.ev <- event{kind: evClosed}
			return
		}
		t.ev <- event{kind: evResponse, msg: m}
	}
}

func (t *tcpTransport) readFailed(conn net.Conn, err error) {
	var nerr net.Error
	switch {
	case errors.Is(err, net.ErrClosed):
		// Closed from our side.
		t.ev <- event{kind: evClosed, graceful: true}
	case errors.Is(err, io.EOF):
		// The server ended the keep-alive; in-flight requests get
		// reissued on the next connection.
		t.destroy(conn)
		t.ev <- event{kind: evClosed, graceful: true}
	case errors.As(err, &nerr) && nerr.Timeout():
		t.ev <- event{kind: evTimeout}
		t.destroy(conn)
		t.ev <- event{kind: evClosed}
	default:
		t.ev <- event{kind: evError, err: fmt.Errorf("reading framed message: %w", err)}
		t.destroy(conn)
		t.ev <- event{kind: evClosed}
	}
}

func (t *tcpTransport) destroy(conn net.Conn) {
	t.mu.Lock()
	if t.conn == conn {
		t.conn = nil
	}
	t.mu.Unlock()
	conn.Close()
}
