// Copyright 2024 the arrowhead-f Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// ahsd browses and publishes DNS-SD service instances.
//
//	ahsd -server 192.168.1.53 -browse 'dnssd://arrowhead.org/_arrowhead._tcp?arch=arm64'
//	ahsd -server 192.168.1.53 -register -instance temp-1 -host sensor.arrowhead.org. \
//	    -port 8443 -txt version=4.4,path=/temp -key key.arrowhead.org -secret <base64>
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/arrowhead-f/ahclient/dnssd"
	"github.com/arrowhead-f/ahclient/dnswire"
	"github.com/arrowhead-f/ahclient/resolve"
	"github.com/arrowhead-f/ahclient/tsig"
)

var (
	server     = flag.String("server", "", "DNS server IP literal")
	port       = flag.Uint("sp", 53, "DNS server port")
	browse     = flag.String("browse", "", "browse for instances matching a dnssd: URI")
	register   = flag.Bool("register", false, "publish an instance")
	unregister = flag.Bool("unregister", false, "withdraw an instance")
	instance   = flag.String("instance", "", "instance label; defaults to the hostname")
	service    = flag.String("service", "_arrowhead._tcp", "service type")
	domain     = flag.String("domain", "arrowhead.org", "registration domain and update zone")
	host       = flag.String("host", "", "SRV target host")
	srvPort    = flag.Uint("port", 0, "SRV target port")
	txtFlag    = flag.String("txt", "", "TXT attributes, k=v,k2=v2")
	keyName    = flag.String("key", "", "TSIG key name")
	secret     = flag.String("secret", "", "TSIG key secret, base64")
	algorithm  = flag.String("algorithm", tsig.DefaultAlgorithm, "TSIG algorithm name")
	timeout    = flag.Duration("timeout", 10*time.Second, "per-request timeout")
	debug      = flag.Bool("d", false, "enable debug prints")
)

func main() {
	flag.Parse()
	if *debug {
		dnssd.Verbose(log.Printf)
	}
	if *server == "" {
		log.Fatalf("a -server is required")
	}

	r, err := resolve.New(resolve.Conf{
		Addr:    *server,
		Port:    uint16(*port),
		Timeout: *timeout,
	})
	if err != nil {
		log.Fatalf("resolver: %v", err)
	}
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch {
	case *browse != "":
		q, err := dnssd.Parse(*browse)
		if err != nil {
			log.Fatalf("parsing %q: %v", *browse, err)
		}
		found, err := dnssd.Browse(ctx, r, q)
		if err != nil {
			log.Fatalf("browse: %v", err)
		}
		for _, inst := range found {
			fmt.Printf("%s\t%s:%d\t%v\n", inst.Name, inst.Host, inst.Port, inst.Text)
		}
	case *register, *unregister:
		signer, err := makeSigner()
		if err != nil {
			log.Fatalf("%v", err)
		}
		txt := dnssd.ParseKv(*txtFlag)
		dnssd.DefaultTxt(txt)
		dnssd.UpdateSysInfo(txt)
		svc := dnssd.Service{
			Instance: *instance,
			Type:     *service,
			Domain:   *domain,
			Host:     *host,
			Port:     uint16(*srvPort),
			Text:     txt,
		}
		if *register {
			err = dnssd.Register(ctx, r, signer, svc)
		} else {
			err = dnssd.Unregister(ctx, r, signer, svc)
		}
		if err != nil {
			log.Fatalf("%v", err)
		}
	default:
		log.Fatalf("one of -browse, -register, -unregister is required")
	}
}

func makeSigner() (dnswire.Signer, error) {
	if *keyName == "" {
		return nil, nil
	}
	s, err := tsig.New(*keyName, *secret)
	if err != nil {
		return nil, err
	}
	return s.WithAlgorithm(*algorithm), nil
}
