// Copyright 2024 the arrowhead-f Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// ahdns is a small query tool for the resolver socket:
//
//	ahdns -server 192.168.1.53 -t srv _arrowhead._tcp.arrowhead.org.
//	ahdns -server 192.168.1.53 -x 192.168.1.20
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"strings"
	"time"

	"github.com/u-root/u-root/pkg/ulog"

	"github.com/arrowhead-f/ahclient/dnswire"
	"github.com/arrowhead-f/ahclient/resolve"
)

var (
	server  = flag.String("server", "", "DNS server IP literal")
	port    = flag.Uint("sp", 53, "DNS server port")
	qtype   = flag.String("t", "ptr", "query type: a, aaaa, ns, cname, soa, ptr, mx, txt, srv")
	reverse = flag.Bool("x", false, "reverse lookup; the argument is an IP address")
	timeout = flag.Duration("timeout", 10*time.Second, "per-request timeout")
	debug   = flag.Bool("d", false, "enable debug prints")

	v = func(string, ...interface{}) {}
)

var qtypes = map[string]uint16{
	"a":     dnswire.TypeA,
	"aaaa":  dnswire.TypeAAAA,
	"ns":    dnswire.TypeNS,
	"cname": dnswire.TypeCNAME,
	"soa":   dnswire.TypeSOA,
	"ptr":   dnswire.TypePTR,
	"mx":    dnswire.TypeMX,
	"txt":   dnswire.TypeTXT,
	"srv":   dnswire.TypeSRV,
}

func main() {
	flag.Parse()
	if *debug {
		v = log.Printf
	}
	if flag.NArg() != 1 {
		log.Fatalf("usage: ahdns [flags] name")
	}
	if *server == "" {
		log.Fatalf("a -server is required")
	}

	conf := resolve.Conf{
		Addr:    *server,
		Port:    uint16(*port),
		Timeout: *timeout,
		OnIgnoredError: func(err error) {
			v("ignored: %v", err)
		},
	}
	if *debug {
		conf.Log = ulog.Log
	}
	r, err := resolve.New(conf)
	if err != nil {
		log.Fatalf("resolver: %v", err)
	}
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	name := flag.Arg(0)
	if *reverse {
		ip := net.ParseIP(name)
		if ip == nil {
			log.Fatalf("-x wants an IP address, got %q", name)
		}
		names, err := r.Reverse(ctx, ip)
		if err != nil {
			log.Fatalf("reverse %v: %v", ip, err)
		}
		for _, n := range names {
			fmt.Println(n)
		}
		return
	}

	t, ok := qtypes[strings.ToLower(*qtype)]
	if !ok {
		log.Fatalf("unknown query type %q", *qtype)
	}
	m, err := r.Query(ctx, name, t)
	if err != nil {
		log.Fatalf("query %s: %v", name, err)
	}
	v("response id %#x rcode %d, %d answers", m.ID, m.Flags.Rcode, len(m.Answer))
	for _, rr := range m.Answer {
		fmt.Printf("%s\t%d\t%s\n", rr.Name, rr.TTL, format(rr.Data))
	}
}

func format(d dnswire.RData) string {
	switch d := d.(type) {
	case *dnswire.A:
		return d.Addr.String()
	case *dnswire.AAAA:
		return d.Addr.String()
	case *dnswire.NS:
		return d.Host
	case *dnswire.CNAME:
		return d.Host
	case *dnswire.PTR:
		return d.Host
	case *dnswire.SOA:
		return fmt.Sprintf("%s %s %d %d %d %d %d", d.MName, d.RName, d.Serial, d.Refresh, d.Retry, d.Expire, d.Minimum)
	case *dnswire.MX:
		return fmt.Sprintf("%d %s", d.Preference, d.Exchange)
	case *dnswire.TXT:
		return strings.Join(d.Text, " ")
	case *dnswire.SRV:
		return fmt.Sprintf("%d %d %d %s", d.Priority, d.Weight, d.Port, d.Target)
	default:
		return fmt.Sprintf("%v", d)
	}
}
