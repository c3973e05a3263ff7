// Copyright 2024 the arrowhead-f Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package resolve

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/u-root/u-root/pkg/ulog"

	"github.com/arrowhead-f/ahclient/dnswire"
)

// fakeTransport records sends and lets a test inject events.
type fakeTransport struct {
	ev chan event

	mu      sync.Mutex
	sent    []*dnswire.Message
	opens   int
	closes  int
	sendErr error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{ev: make(chan event, 16)}
}

func (f *fakeTransport) events() <-chan event { return f.ev }

func (f *fakeTransport) open() {
	f.mu.Lock()
	f.opens++
	f.mu.Unlock()
	f.ev <- event{kind: evOpened}
}

func (f *fakeTransport) close() error {
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) send(m *dnswire.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, m)
	return nil
}

func (f *fakeTransport) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeTransport) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens
}

func (f *fakeTransport) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

func query(id uint16) *dnswire.Message {
	return &dnswire.Message{
		ID:    id,
		Flags: dnswire.Flags{RecursionDesired: true},
		Question: []dnswire.Record{{
			Name:  "alpha.arrowhead.org.",
			Type:  dnswire.TypePTR,
			Class: dnswire.ClassINET,
		}},
	}
}

func reply(id uint16) *dnswire.Message {
	return &dnswire.Message{ID: id, Flags: dnswire.Flags{Response: true}}
}

// eventually polls cond for up to three seconds.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("%s: condition not reached in 3s", what)
}

func await(t *testing.T, tk *task) taskResult {
	t.Helper()
	select {
	case res := <-tk.done:
		return res
	case <-time.After(3 * time.Second):
		t.Fatalf("task %d not settled in 3s", tk.msg.ID)
		return taskResult{}
	}
}

func testWorker(tr transport, timeout, keepOpen time.Duration) *worker {
	w := newWorker(tr, timeout, keepOpen, func(error) {}, ulog.Null)
	w.start()
	return w
}

func TestWorkerRoundTrip(t *testing.T) {
	ft := newFakeTransport()
	w := testWorker(ft, time.Second, time.Minute)

	tk := newTask(query(7), 0)
	w.submit <- tk
	eventually(t, "send", func() bool { return ft.sentCount() == 1 })

	ft.ev <- event{kind: evResponse, msg: reply(7)}
	res := await(t, tk)
	if res.err != nil {
		t.Fatalf("task: got %v, want nil", res.err)
	}
	if res.msg.ID != 7 {
		t.Errorf("response id: got %d, want 7", res.msg.ID)
	}
}

func TestWorkerDuplicateID(t *testing.T) {
	ft := newFakeTransport()
	w := testWorker(ft, time.Minute, time.Minute)

	first := newTask(query(9), 0)
	w.submit <- first
	eventually(t, "first send", func() bool { return ft.sentCount() == 1 })

	second := newTask(query(9), 0)
	w.submit <- second
	if res := await(t, second); !errors.Is(res.err, ErrIDInUse) {
		t.Errorf("duplicate submit: got %v, want ErrIDInUse", res.err)
	}

	// The first task is still live and resolvable.
	ft.ev <- event{kind: evResponse, msg: reply(9)}
	if res := await(t, first); res.err != nil {
		t.Errorf("first task: got %v, want nil", res.err)
	}
}

func TestWorkerRetryThenUnanswered(t *testing.T) {
	ft := newFakeTransport()
	w := testWorker(ft, 200*time.Millisecond, time.Minute)

	start := time.Now()
	tk := newTask(query(11), 2)
	w.submit <- tk
	res := await(t, tk)
	if !errors.Is(res.err, ErrUnanswered) {
		t.Fatalf("task: got %v, want ErrUnanswered", res.err)
	}
	// One initial attempt plus one per retry.
	if got := ft.sentCount(); got != 3 {
		t.Errorf("send attempts: got %d, want 3", got)
	}
	if elapsed := time.Since(start); elapsed < 600*time.Millisecond {
		t.Errorf("settled after %v, want at least 600ms", elapsed)
	}
}

func TestWorkerTruncationFallsBack(t *testing.T) {
	ft := newFakeTransport()
	w := newWorker(ft, time.Second, time.Minute, func(error) {}, ulog.Null)
	handed := make(chan *task, 1)
	w.fallback = func(tk *task) { handed <- tk }
	w.start()

	tk := newTask(query(13), 2)
	w.submit <- tk
	eventually(t, "send", func() bool { return ft.sentCount() == 1 })

	truncated := reply(13)
	truncated.Flags.Truncated = true
	ft.ev <- event{kind: evResponse, msg: truncated}

	select {
	case got := <-handed:
		if got != tk {
			t.Errorf("fallback task: got %p, want %p", got, tk)
		}
		if got.retries != 0 {
			t.Errorf("fallback retries: got %d, want 0", got.retries)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("truncated response did not reach the fallback")
	}
	select {
	case res := <-tk.done:
		t.Fatalf("task settled early with %v", res)
	default:
	}
}

func TestWorkerOverflowFallsBack(t *testing.T) {
	ft := newFakeTransport()
	ft.sendErr = dnswire.ErrOverflow
	w := newWorker(ft, time.Second, time.Minute, func(error) {}, ulog.Null)
	handed := make(chan *task, 1)
	w.fallback = func(tk *task) { handed <- tk }
	w.start()

	tk := newTask(query(17), 2)
	w.submit <- tk
	select {
	case got := <-handed:
		if got.retries != 0 {
			t.Errorf("fallback retries: got %d, want 0", got.retries)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("overflowing send did not reach the fallback")
	}
}

func TestWorkerTransportErrorRejectsAll(t *testing.T) {
	ft := newFakeTransport()
	w := testWorker(ft, time.Minute, time.Minute)

	first := newTask(query(19), 0)
	second := newTask(query(23), 0)
	w.submit <- first
	w.submit <- second
	eventually(t, "sends", func() bool { return ft.sentCount() == 2 })

	boom := errors.New("wire fell out")
	ft.ev <- event{kind: evError, err: boom}
	if res := await(t, first); !errors.Is(res.err, boom) {
		t.Errorf("first task: got %v, want the transport error", res.err)
	}
	if res := await(t, second); !errors.Is(res.err, boom) {
		t.Errorf("second task: got %v, want the transport error", res.err)
	}
}

func TestWorkerIdleTimeoutRejects(t *testing.T) {
	ft := newFakeTransport()
	w := testWorker(ft, time.Minute, time.Minute)

	tk := newTask(query(29), 0)
	w.submit <- tk
	eventually(t, "send", func() bool { return ft.sentCount() == 1 })

	ft.ev <- event{kind: evTimeout}
	if res := await(t, tk); !errors.Is(res.err, ErrUnanswered) {
		t.Errorf("task after socket timeout: got %v, want ErrUnanswered", res.err)
	}
}

func TestWorkerGracefulCloseRequeues(t *testing.T) {
	ft := newFakeTransport()
	w := newWorker(ft, time.Minute, time.Minute, func(error) {}, ulog.Null)
	w.requeueOnClose = true
	w.start()

	tk := newTask(query(31), 0)
	w.submit <- tk
	eventually(t, "first send", func() bool { return ft.sentCount() == 1 })

	// Server ends the keep-alive: the in-flight request is reissued
	// on a fresh connection.
	ft.ev <- event{kind: evClosed, graceful: true}
	eventually(t, "reopen", func() bool { return ft.openCount() == 2 })
	eventually(t, "second send", func() bool { return ft.sentCount() == 2 })

	ft.ev <- event{kind: evResponse, msg: reply(31)}
	if res := await(t, tk); res.err != nil {
		t.Errorf("task: got %v, want nil", res.err)
	}
}

func TestWorkerKeepOpenClose(t *testing.T) {
	ft := newFakeTransport()
	// timeout 1s gives a 50ms sweep tick; keepOpen of 200ms closes
	// within a tick or two of the queues draining.
	w := testWorker(ft, time.Second, 200*time.Millisecond)

	tk := newTask(query(37), 0)
	w.submit <- tk
	eventually(t, "send", func() bool { return ft.sentCount() == 1 })
	ft.ev <- event{kind: evResponse, msg: reply(37)}
	if res := await(t, tk); res.err != nil {
		t.Fatalf("task: got %v, want nil", res.err)
	}

	eventually(t, "idle close", func() bool { return ft.closeCount() == 1 })

	// A later request reopens the transport.
	ft.ev <- event{kind: evClosed, graceful: true}
	tk = newTask(query(41), 0)
	w.submit <- tk
	eventually(t, "reopen", func() bool { return ft.openCount() == 2 })
}

func TestWorkerUnexpectedResponseIgnored(t *testing.T) {
	ft := newFakeTransport()
	got := make(chan error, 1)
	w := newWorker(ft, time.Minute, time.Minute, func(err error) { got <- err }, ulog.Null)
	w.start()

	ft.ev <- event{kind: evResponse, msg: reply(43)}
	select {
	case err := <-got:
		if !errors.Is(err, ErrUnexpectedID) {
			t.Errorf("ignored error: got %v, want ErrUnexpectedID", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("stray response was not reported")
	}
}

func TestWorkerCancelDropsTask(t *testing.T) {
	ft := newFakeTransport()
	got := make(chan error, 1)
	w := newWorker(ft, time.Minute, time.Minute, func(err error) { got <- err }, ulog.Null)
	w.start()

	tk := newTask(query(47), 0)
	w.submit <- tk
	eventually(t, "send", func() bool { return ft.sentCount() == 1 })
	w.cancel <- 47
	// Let the cancel land before the late response arrives.
	time.Sleep(100 * time.Millisecond)

	// A late response for the cancelled id is dropped silently.
	ft.ev <- event{kind: evResponse, msg: reply(47)}
	ft.ev <- event{kind: evResponse, msg: reply(48)}
	select {
	case err := <-got:
		if !errors.Is(err, ErrUnexpectedID) {
			t.Errorf("ignored error: got %v, want ErrUnexpectedID", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("stray response was not reported")
	}
	select {
	case res := <-tk.done:
		t.Fatalf("cancelled task settled with %v", res)
	default:
	}
}
