// Copyright 2024 the arrowhead-f Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package resolve

import (
	"errors"
	"time"

	"github.com/u-root/u-root/pkg/ulog"

	"github.com/arrowhead-f/ahclient/dnswire"
)

// taskResult settles a task exactly once: a decoded response or an
// error.
type taskResult struct {
	msg *dnswire.Message
	err error
}

// A task is one Send invocation in flight. It lives in exactly one
// place at a time: the worker's outbound queue, its inbound map, or
// the caller's settled future.
type task struct {
	msg     *dnswire.Message
	retries int
	sentAt  time.Time
	done    chan taskResult
}

func newTask(m *dnswire.Message, retries int) *task {
	return &task{msg: m, retries: retries, done: make(chan taskResult, 1)}
}

func (t *task) resolve(m *dnswire.Message) {
	select {
	case t.done <- taskResult{msg: m}:
	default:
	}
}

func (t *task) reject(err error) {
	select {
	case t.done <- taskResult{err: err}:
	default:
	}
}

// A worker owns one transport and multiplexes tasks over it. All of
// its state is confined to the run goroutine; the rest of the
// resolver talks to it through the submit/cancel/quit channels and
// the transport talks to it through its event channel.
type worker struct {
	tr       transport
	timeout  time.Duration
	keepOpen time.Duration
	ignored  func(error)
	log      ulog.Logger

	// fallback hands a task to the TCP worker when a datagram send
	// overflows or a response comes back truncated. Nil on the TCP
	// worker itself.
	fallback func(*task)

	// requeueOnClose re-queues in-flight tasks when the server ends a
	// keep-alive connection without error. TCP only.
	requeueOnClose bool

	submit chan *task
	cancel chan uint16
	quit   chan chan error

	// Loop-owned state.
	outbound  []*task
	inbound   map[uint16]*task
	open      bool
	opening   bool
	idleSince time.Time
	cancelled map[uint16]time.Time
}

func newWorker(tr transport, timeout, keepOpen time.Duration, ignored func(error), log ulog.Logger) *worker {
	w := &worker{
		tr:        tr,
		timeout:   timeout,
		keepOpen:  keepOpen,
		ignored:   ignored,
		log:       log,
		submit:    make(chan *task, 16),
		cancel:    make(chan uint16, 16),
		quit:      make(chan chan error),
		inbound:   make(map[uint16]*task),
		cancelled: make(map[uint16]time.Time),
	}
	return w
}

// start spins up the loop. Separate from construction so the owner
// can set fallback and requeueOnClose first.
func (w *worker) start() {
	go w.run()
}

// tickInterval is the timeout-sweep period.
func (w *worker) tickInterval() time.Duration {
	iv := w.timeout / 20
	if iv < 50*time.Millisecond {
		iv = 50 * time.Millisecond
	}
	return iv
}

func (w *worker) run() {
	tick := time.NewTicker(w.tickInterval())
	defer tick.Stop()
	for {
		select {
		case t := <-w.submit:
			w.enqueue(t)
		case id := <-w.cancel:
			w.drop(id)
		case ev := <-w.tr.events():
			w.handle(ev)
		case now := <-tick.C:
			w.sweep(now)
		case reply := <-w.quit:
			w.fail(ErrClosed)
			reply <- w.tr.close()
			return
		}
		w.updateIdle()
	}
}

// enqueue admits a task, rejecting duplicate ids anywhere on this
// worker.
func (w *worker) enqueue(t *task) {
	id := t.msg.ID
	if _, ok := w.inbound[id]; ok {
		t.reject(ErrIDInUse)
		return
	}
	for _, q := range w.outbound {
		if q.msg.ID == id {
			t.reject(ErrIDInUse)
			return
		}
	}
	w.outbound = append(w.outbound, t)
	w.poll()
}

// poll drains the outbound queue onto an open transport, opening it
// first if need be; the opened event re-enters poll.
func (w *worker) poll() {
	if len(w.outbound) == 0 {
		return
	}
	if !w.open {
		if !w.opening {
			w.opening = true
			w.tr.open()
		}
		return
	}
	pending := w.outbound
	w.outbound = nil
	for i, t := range pending {
		t.sentAt = time.Now()
		w.inbound[t.msg.ID] = t
		err := w.tr.send(t.msg)
		if err == nil {
			continue
		}
		delete(w.inbound, t.msg.ID)
		if errors.Is(err, dnswire.ErrOverflow) && w.fallback != nil {
			w.log.Printf("resolve: request %#x exceeds datagram size, retrying over tcp", t.msg.ID)
			t.retries = 0
			w.fallback(t)
			continue
		}
		t.reject(err)
		w.outbound = pending[i+1:]
		w.fail(err)
		return
	}
}

func (w *worker) handle(ev event) {
	switch ev.kind {
	case evOpened:
		w.open = true
		w.opening = false
		w.poll()
	case evResponse:
		w.response(ev.msg)
	case evTimeout:
		// The socket's own idle deadline fired with requests pending.
		w.fail(ErrUnanswered)
	case evError:
		w.fail(ev.err)
	case evClosed:
		w.open = false
		w.opening = false
		if ev.graceful && w.requeueOnClose && len(w.inbound) > 0 {
			// The server ended the keep-alive with requests in
			// flight; reissue them on the next connection.
			requeued := make([]*task, 0, len(w.inbound)+len(w.outbound))
			for id, t := range w.inbound {
				requeued = append(requeued, t)
				delete(w.inbound, id)
			}
			w.outbound = append(requeued, w.outbound...)
			w.poll()
		}
	}
}

func (w *worker) response(m *dnswire.Message) {
	t, ok := w.inbound[m.ID]
	if !ok {
		if _, gone := w.cancelled[m.ID]; gone {
			delete(w.cancelled, m.ID)
			return
		}
		w.ignored(ErrUnexpectedID)
		return
	}
	delete(w.inbound, m.ID)
	if m.Flags.Truncated && w.fallback != nil {
		w.log.Printf("resolve: response %#x truncated, retrying over tcp", m.ID)
		t.retries = 0
		w.fallback(t)
		return
	}
	t.resolve(m)
}

// fail rejects every task bound to this worker and clears both
// containers.
func (w *worker) fail(err error) {
	for id, t := range w.inbound {
		t.reject(err)
		delete(w.inbound, id)
	}
	for _, t := range w.outbound {
		t.reject(err)
	}
	w.outbound = nil
}

// sweep times out overdue tasks, spending one retry each, expires
// cancellation tombstones, and closes the transport once it has been
// idle for the keep-open window.
func (w *worker) sweep(now time.Time) {
	deadline := now.Add(-w.timeout)
	for id, t := range w.inbound {
		if t.sentAt.After(deadline) {
			continue
		}
		delete(w.inbound, id)
		t.retries--
		if t.retries >= 0 {
			w.outbound = append(w.outbound, t)
			continue
		}
		t.reject(ErrUnanswered)
	}
	for id, when := range w.cancelled {
		if when.Before(deadline) {
			delete(w.cancelled, id)
		}
	}
	if w.open && !w.idleSince.IsZero() && now.Sub(w.idleSince) >= w.keepOpen {
		w.log.Printf("resolve: transport idle for %v, closing", w.keepOpen)
		w.open = false
		if err := w.tr.close(); err != nil {
			w.ignored(err)
		}
	}
	w.poll()
}

// drop removes a cancelled task. A response that still arrives for it
// is discarded without being reported as unexpected.
func (w *worker) drop(id uint16) {
	if _, ok := w.inbound[id]; ok {
		delete(w.inbound, id)
		w.cancelled[id] = time.Now()
		return
	}
	for i, t := range w.outbound {
		if t.msg.ID == id {
			w.outbound = append(w.outbound[:i], w.outbound[i+1:]...)
			return
		}
	}
}

func (w *worker) updateIdle() {
	if w.open && len(w.inbound) == 0 && len(w.outbound) == 0 {
		if w.idleSince.IsZero() {
			w.idleSince = time.Now()
		}
		return
	}
	w.idleSince = time.Time{}
}
