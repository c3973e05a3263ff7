// Copyright 2024 the arrowhead-f Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dnssd publishes and finds services with DNS-SD (RFC 6763)
// conventions: a PTR set under _service._proto.domain naming
// instances, and SRV/TXT records per instance. It is a thin client of
// the resolve package.
package dnssd

import (
	"context"
	"fmt"
	"net/url"
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/arrowhead-f/ahclient/dnswire"
	"github.com/arrowhead-f/ahclient/resolve"
)

// v allows debug printing.
var v = func(string, ...interface{}) {}

// Verbose sets the debug print function.
func Verbose(f func(string, ...interface{})) {
	v = f
}

// DefaultURI is the underspecified query: any instance of the default
// service type in the default domain.
const DefaultURI = "dnssd:"

const (
	defaultType   = "_arrowhead._tcp"
	defaultDomain = "arrowhead.org"
)

// A Query selects service instances: a service type, a domain, and
// required TXT attributes.
type Query struct {
	Type   string
	Domain string
	Text   map[string][]string
}

// Parse turns a dns-sd URI into a Query, following the CUPS
// conventions: dnssd://domain/_service._proto?key=value. Omitted
// parts fall back to the defaults, and arch/os requirements default
// to the local machine.
func Parse(uri string) (Query, error) {
	result := Query{
		Type:   defaultType,
		Domain: defaultDomain,
	}

	u, err := url.Parse(uri)
	if err != nil {
		return result, fmt.Errorf("trouble parsing url %s: %w", uri, err)
	}
	if u.Scheme != "dnssd" {
		return result, fmt.Errorf("%q is not a dns-sd URI", uri)
	}

	if u.Host != "" {
		result.Domain = u.Host
	}
	if p := strings.Trim(u.Path, "/"); p != "" {
		result.Type = p
	}

	result.Text = u.Query()

	if len(result.Text["arch"]) == 0 {
		result.Text["arch"] = []string{runtime.GOARCH}
	}
	if len(result.Text["os"]) == 0 {
		result.Text["os"] = []string{runtime.GOOS}
	}

	return result, nil
}

// ParseKv parses a "k=v,k2=v2,flag" string into a TXT attribute map;
// a bare key means "true".
func ParseKv(arg string) map[string]string {
	txt := make(map[string]string)
	if len(arg) == 0 {
		return txt
	}
	for _, pair := range strings.Split(arg, ",") {
		z := strings.SplitN(pair, "=", 2)
		if len(z) > 1 {
			txt[z[0]] = z[1]
		} else {
			txt[z[0]] = "true"
		}
	}
	return txt
}

// required checks that a discovered instance carries all required
// attribute values.
func required(src map[string]string, req map[string][]string) bool {
	for k := range req {
		if !slices.Contains(req[k], src[k]) {
			return false
		}
	}
	return true
}

// An Instance is one discovered service instance.
type Instance struct {
	// Name is the full instance name, e.g.
	// printer._arrowhead._tcp.arrowhead.org.
	Name string
	// Host and Port are the SRV target.
	Host string
	Port uint16
	// Text holds the instance's TXT attributes.
	Text map[string]string
}

// ServiceName returns the browse domain for a query,
// _service._proto.domain. with the trailing dot.
func (q Query) ServiceName() string {
	return fmt.Sprintf("%s.%s.", strings.Trim(q.Type, "."), strings.Trim(q.Domain, "."))
}

// Browse finds the instances of the queried service: one PTR lookup
// for the instance set, then an SRV and a TXT lookup per instance,
// fanned out together. Instances missing a required attribute are
// dropped.
func Browse(ctx context.Context, r *resolve.Resolver, q Query) ([]Instance, error) {
	service := q.ServiceName()
	v("browsing for %s", service)

	names, err := r.ResolvePTR(ctx, service)
	if err != nil {
		return nil, fmt.Errorf("browsing %s: %w", service, err)
	}
	if len(names) == 0 {
		return nil, nil
	}

	msgs := make([]*dnswire.Message, 0, 2*len(names))
	for _, name := range names {
		for _, qtype := range []uint16{dnswire.TypeSRV, dnswire.TypeTXT} {
			msgs = append(msgs, &dnswire.Message{
				ID:    r.NextID(),
				Flags: dnswire.Flags{RecursionDesired: true},
				Question: []dnswire.Record{{
					Name:  name,
					Type:  qtype,
					Class: dnswire.ClassINET,
				}},
			})
		}
	}
	results := r.SendAll(ctx, msgs)

	var found []Instance
	for i, name := range names {
		srvRes, txtRes := results[2*i], results[2*i+1]
		if srvRes.Err != nil {
			v("dropping %s: srv lookup: %v", name, srvRes.Err)
			continue
		}
		inst := Instance{Name: name, Text: make(map[string]string)}
		for _, rr := range srvRes.Msg.Answer {
			if d, ok := rr.Data.(*dnswire.SRV); ok {
				inst.Host, inst.Port = d.Target, d.Port
				break
			}
		}
		if inst.Host == "" {
			v("dropping %s: no srv record", name)
			continue
		}
		if txtRes.Err == nil {
			for _, rr := range txtRes.Msg.Answer {
				d, ok := rr.Data.(*dnswire.TXT)
				if !ok {
					continue
				}
				for k, val := range parseTxt(d.Text) {
					inst.Text[k] = val
				}
			}
		}
		if !required(inst.Text, q.Text) {
			v("dropping %s: missing required attributes", name)
			continue
		}
		found = append(found, inst)
	}
	return found, nil
}

// Lookup browses and returns the first suitable instance as host and
// port strings.
func Lookup(ctx context.Context, r *resolve.Resolver, q Query) (string, string, error) {
	found, err := Browse(ctx, r, q)
	if err != nil {
		return "", "", err
	}
	if len(found) == 0 {
		return "", "", fmt.Errorf("no suitable %s instance found", q.ServiceName())
	}
	if len(found) > 1 {
		v("WARNING: there was more than one option for %s", q.ServiceName())
	}
	return found[0].Host, strconv.Itoa(int(found[0].Port)), nil
}

// parseTxt splits DNS-SD TXT strings into attributes; a bare key
// means "true".
func parseTxt(ss []string) map[string]string {
	txt := make(map[string]string)
	for _, s := range ss {
		z := strings.SplitN(s, "=", 2)
		if len(z) > 1 {
			txt[z[0]] = z[1]
		} else if len(z[0]) > 0 {
			txt[z[0]] = "true"
		}
	}
	return txt
}
