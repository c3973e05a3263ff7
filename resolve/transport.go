// Copyright 2024 the arrowhead-f Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package resolve

import "github.com/arrowhead-f/ahclient/dnswire"

// eventKind discriminates transport events.
type eventKind int

const (
	evOpened eventKind = iota
	evClosed
	evResponse
	evTimeout
	evError
)

// An event is one message from a transport to its worker: the socket
// opened, a response arrived, the idle deadline fired, an error
// occurred, or the socket closed (gracefully or not).
type event struct {
	kind     eventKind
	msg      *dnswire.Message
	err      error
	graceful bool
}

// A transport is one endpoint to the configured server. close is
// idempotent; open starts a new connection attempt on every call, so
// the worker calls it only while the transport is neither open nor
// opening. send is called only from the owning worker's
// goroutine, so a transport may keep a single scratch encode buffer.
// Everything asynchronous arrives on the events channel, which the
// worker consumes in its loop.
type transport interface {
	open()
	close() error
	send(m *dnswire.Message) error
	events() <-chan event
}
