// Copyright 2024 the arrowhead-f Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package resolve

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/u-root/u-root/pkg/ulog"

	"github.com/arrowhead-f/ahclient/dnswire"
)

// udpTransport sends datagrams to the configured server from an
// unbound socket of the matching address family. One datagram is one
// message; anything over 512 bytes is the worker's cue to fall back
// to TCP.
type udpTransport struct {
	raddr *net.UDPAddr
	log   ulog.Logger
	ev    chan event

	mu   sync.Mutex
	conn *net.UDPConn

	// scratch is single-owner: only the worker goroutine encodes
	// into it, one send at a time.
	scratch []byte
}

func newUDPTransport(raddr *net.UDPAddr, log ulog.Logger) *udpTransport {
	return &udpTransport{
		raddr:   raddr,
		log:     log,
		ev:      make(chan event, 16),
		scratch: make([]byte, dnswire.MaxUDPSize),
	}
}

func (u *udpTransport) events() <-chan event { return u.ev }

func (u *udpTransport) open() {
	go func() {
		network := "udp6"
		if u.raddr.IP.To4() != nil {
			network = "udp4"
		}
		conn, err := net.ListenUDP(network, nil)
		if err != nil {
			u.ev <- event{kind: evError, err: fmt.Errorf("opening datagram socket: %w", err)}
			u.ev <- event{kind: evClosed}
			return
		}
		u.mu.Lock()
		u.conn = conn
		u.mu.Unlock()
		u.log.Printf("resolve: udp socket %v open", conn.LocalAddr())
		u.ev <- event{kind: evOpened}
		go u.read(conn)
	}()
}

func (u *udpTransport) close() error {
	u.mu.Lock()
	conn := u.conn
	u.conn = nil
	u.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (u *udpTransport) send(m *dnswire.Message) error {
	wire, err := m.Pack(u.scratch)
	if err != nil {
		// Includes dnswire.ErrOverflow, which the worker recovers
		// from by handing the task to TCP.
		return err
	}
	u.mu.Lock()
	conn := u.conn
	u.mu.Unlock()
	if conn == nil {
		return net.ErrClosed
	}
	if _, err := conn.WriteToUDP(wire, u.raddr); err != nil {
		return fmt.Errorf("sending datagram: %w", err)
	}
	return nil
}

func (u *udpTransport) read(conn *net.UDPConn) {
	buf := make([]byte, dnswire.MaxTCPSize+1)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				u.ev <- event{kind: evClosed, graceful: true}
				return
			}
			u.ev <- event{kind: evError, err: fmt.Errorf("reading datagram: %w", err)}
			u.ev <- event{kind: evClosed}
			conn.Close()
			return
		}
		m := new(dnswire.Message)
		if err := m.Unpack(buf[:n]); err != nil {
			// A garbage datagram fails every request bound to this
			// socket; see the design notes.
			u.ev <- event{kind: evError, err: fmt.Errorf("%w: %v", ErrMalformed, err)}
			continue
		}
		u.ev <- event{kind: evResponse, msg: m}
	}
}
