// Copyright 2024 the arrowhead-f Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package resolve is a DNS resolver socket: it multiplexes
// request/response pairs to one configured server across a UDP and a
// TCP transport, with transport selection by size and opcode, retry,
// truncation fallback, timeout and idle close.
//
// It performs no recursion and no caching; it is the wire between
// this client and the service-discovery DNS server.
package resolve

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/u-root/u-root/pkg/ulog"

	"github.com/arrowhead-f/ahclient/dnswire"
)

const (
	defaultPort     = 53
	defaultKeepOpen = 3 * time.Second
	defaultTimeout  = 10 * time.Second
	udpRetries      = 2
)

// Conf configures a Resolver. The zero value of every field but Addr
// is usable.
type Conf struct {
	// Addr is the server address, an IPv4 or IPv6 literal. Hostnames
	// are rejected: this resolver is what would resolve them.
	Addr string
	// Port defaults to 53.
	Port uint16
	// KeepOpen is how long an idle transport stays open. Defaults to
	// 3s.
	KeepOpen time.Duration
	// Timeout bounds one request/response exchange. Defaults to 10s.
	Timeout time.Duration
	// OnIgnoredError receives errors that cannot be attributed to any
	// request, such as a stray response. Optional.
	OnIgnoredError func(error)
	// Log receives protocol traces. Defaults to ulog.Null.
	Log ulog.Logger
}

func (c *Conf) fix() (net.IP, error) {
	ip := net.ParseIP(c.Addr)
	if ip == nil {
		return nil, fmt.Errorf("server address %q is not an IP literal", c.Addr)
	}
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.KeepOpen == 0 {
		c.KeepOpen = defaultKeepOpen
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
	if c.OnIgnoredError == nil {
		c.OnIgnoredError = func(error) {}
	}
	if c.Log == nil {
		c.Log = ulog.Null
	}
	return ip, nil
}

// A Resolver owns the two transport workers. Safe for concurrent use.
type Resolver struct {
	conf Conf
	udp  *worker
	tcp  *worker

	idc       uint32
	closeOnce sync.Once
	closed    chan struct{}
}

// New returns a Resolver for the given server.
func New(conf Conf) (*Resolver, error) {
	ip, err := conf.fix()
	if err != nil {
		return nil, err
	}
	r := &Resolver{
		conf:   conf,
		idc:    rand.Uint32(),
		closed: make(chan struct{}),
	}
	addr := net.JoinHostPort(ip.String(), fmt.Sprint(conf.Port))
	tcp := newTCPTransport(addr, conf.Timeout, conf.Log)
	r.tcp = newWorker(tcp, conf.Timeout, conf.KeepOpen, conf.OnIgnoredError, conf.Log)
	r.tcp.requeueOnClose = true

	udp := newUDPTransport(&net.UDPAddr{IP: ip, Port: int(conf.Port)}, conf.Log)
	r.udp = newWorker(udp, conf.Timeout, conf.KeepOpen, conf.OnIgnoredError, conf.Log)
	r.udp.fallback = func(t *task) {
		go func() {
			select {
			case r.tcp.submit <- t:
			case <-r.closed:
				t.reject(ErrClosed)
			}
		}()
	}
	r.tcp.start()
	r.udp.start()
	return r, nil
}

// NextID allocates a message id. Ids from one Resolver do not collide
// until the 16-bit counter wraps.
func (r *Resolver) NextID() uint16 {
	return uint16(atomic.AddUint32(&r.idc, 1))
}

// Send transmits a message and waits for the matching response.
// Update messages go over TCP without retry; anything that fits a
// datagram goes over UDP with two retries and falls back to TCP on
// truncation or overflow; anything larger goes over TCP; anything
// over 65535 bytes fails with ErrTooLong.
//
// Cancelling ctx drops the request; a late response is discarded
// silently.
func (r *Resolver) Send(ctx context.Context, m *dnswire.Message) (*dnswire.Message, error) {
	wire, err := m.Pack(make([]byte, dnswire.MaxTCPSize+1))
	if err == dnswire.ErrOverflow {
		return nil, ErrTooLong
	}
	if err != nil {
		return nil, err
	}

	w, retries, err := r.pickTransport(m.Flags.Opcode, len(wire))
	if err != nil {
		return nil, err
	}

	t := newTask(m, retries)
	select {
	case w.submit <- t:
	case <-r.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-t.done:
		return res.msg, res.err
	case <-ctx.Done():
		r.cancelTask(m.ID)
		return nil, ctx.Err()
	}
}

// pickTransport chooses the worker and retry budget for an encoded
// request: updates always ride TCP, datagram-sized queries ride UDP
// with retries, and everything else rides TCP if it fits at all.
func (r *Resolver) pickTransport(opcode uint8, size int) (*worker, int, error) {
	switch {
	case opcode == dnswire.OpcodeUpdate:
		return r.tcp, 0, nil
	case size <= dnswire.MaxUDPSize:
		return r.udp, udpRetries, nil
	case size <= dnswire.MaxTCPSize:
		return r.tcp, 0, nil
	default:
		return nil, 0, ErrTooLong
	}
}

// cancelTask tells both workers to forget an id; a fallback may have
// moved the task from UDP to TCP.
func (r *Resolver) cancelTask(id uint16) {
	for _, w := range []*worker{r.udp, r.tcp} {
		w := w
		go func() {
			select {
			case w.cancel <- id:
			case <-r.closed:
			}
		}()
	}
}

// A SendResult is one message's settlement from SendAll.
type SendResult struct {
	Msg *dnswire.Message
	Err error
}

// SendAll fans out messages concurrently and collects per-message
// settlements in order.
func (r *Resolver) SendAll(ctx context.Context, msgs []*dnswire.Message) []SendResult {
	results := make([]SendResult, len(msgs))
	var wg sync.WaitGroup
	for i, m := range msgs {
		wg.Add(1)
		go func(i int, m *dnswire.Message) {
			defer wg.Done()
			msg, err := r.Send(ctx, m)
			results[i] = SendResult{Msg: msg, Err: err}
		}(i, m)
	}
	wg.Wait()
	return results
}

// Query builds and sends a single-question recursive query.
func (r *Resolver) Query(ctx context.Context, name string, qtype uint16) (*dnswire.Message, error) {
	m := &dnswire.Message{
		ID:    r.NextID(),
		Flags: dnswire.Flags{RecursionDesired: true},
		Question: []dnswire.Record{{
			Name:  name,
			Type:  qtype,
			Class: dnswire.ClassINET,
		}},
	}
	return r.Send(ctx, m)
}

// ResolvePTR returns the pointer targets at name.
func (r *Resolver) ResolvePTR(ctx context.Context, name string) ([]string, error) {
	m, err := r.Query(ctx, name, dnswire.TypePTR)
	if err != nil {
		return nil, err
	}
	var hosts []string
	for _, rr := range m.Answer {
		if d, ok := rr.Data.(*dnswire.PTR); ok {
			hosts = append(hosts, d.Host)
		}
	}
	return hosts, nil
}

// ResolveSRV returns the server-selection records at name.
func (r *Resolver) ResolveSRV(ctx context.Context, name string) ([]*dnswire.SRV, error) {
	m, err := r.Query(ctx, name, dnswire.TypeSRV)
	if err != nil {
		return nil, err
	}
	var srvs []*dnswire.SRV
	for _, rr := range m.Answer {
		if d, ok := rr.Data.(*dnswire.SRV); ok {
			srvs = append(srvs, d)
		}
	}
	return srvs, nil
}

// ResolveTXT returns the text strings at name, all records flattened.
func (r *Resolver) ResolveTXT(ctx context.Context, name string) ([]string, error) {
	m, err := r.Query(ctx, name, dnswire.TypeTXT)
	if err != nil {
		return nil, err
	}
	var text []string
	for _, rr := range m.Answer {
		if d, ok := rr.Data.(*dnswire.TXT); ok {
			text = append(text, d.Text...)
		}
	}
	return text, nil
}

// Reverse looks up the names for an address via the in-addr.arpa or
// ip6.arpa tree.
func (r *Resolver) Reverse(ctx context.Context, ip net.IP) ([]string, error) {
	name, err := ReverseName(ip)
	if err != nil {
		return nil, err
	}
	return r.ResolvePTR(ctx, name)
}

// ReverseName returns the PTR owner name for an address.
func ReverseName(ip net.IP) (string, error) {
	if v4 := ip.To4(); v4 != nil {
		return fmt.Sprintf("%d.%d.%d.%d.in-addr.arpa.", v4[3], v4[2], v4[1], v4[0]), nil
	}
	v6 := ip.To16()
	if v6 == nil {
		return "", fmt.Errorf("%v is not an IP address", ip)
	}
	const hexdigits = "0123456789abcdef"
	b := make([]byte, 0, 72)
	for i := len(v6) - 1; i >= 0; i-- {
		b = append(b, hexdigits[v6[i]&0xf], '.', hexdigits[v6[i]>>4], '.')
	}
	return string(b) + "ip6.arpa.", nil
}

// Close terminates both transports and rejects every outstanding
// request with ErrClosed.
func (r *Resolver) Close() error {
	var err *multierror.Error
	r.closeOnce.Do(func() {
		close(r.closed)
		for _, w := range []*worker{r.udp, r.tcp} {
			reply := make(chan error, 1)
			w.quit <- reply
			if e := <-reply; e != nil {
				err = multierror.Append(err, e)
			}
		}
	})
	return err.ErrorOrNil()
}
