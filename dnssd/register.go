// Copyright 2024 the arrowhead-f Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dnssd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/arrowhead-f/ahclient/dnswire"
	"github.com/arrowhead-f/ahclient/resolve"
)

const defaultTTL = 120

// A Service describes one instance to publish.
type Service struct {
	// Instance is the instance label, e.g. "temperature-1". Empty
	// picks DefaultInstance.
	Instance string
	// Type is the service type, e.g. "_arrowhead._tcp".
	Type string
	// Domain is the registration domain; it is also the UPDATE zone.
	Domain string
	// Host and Port are the SRV target the instance serves on.
	Host string
	Port uint16
	// Text holds the TXT attributes.
	Text map[string]string
	// TTL in seconds; 0 picks the default of 120.
	TTL uint32
}

// DefaultInstance derives an instance label from the hostname.
func DefaultInstance() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "arrowhead"
	}
	return hostname
}

func (s *Service) names() (instance, service, zone string) {
	label := s.Instance
	if label == "" {
		label = DefaultInstance()
	}
	// A literal dot in the instance label must survive as part of the
	// label.
	label = strings.ReplaceAll(label, ".", `\.`)
	service = fmt.Sprintf("%s.%s.", strings.Trim(s.Type, "."), strings.Trim(s.Domain, "."))
	instance = fmt.Sprintf("%s.%s", label, service)
	zone = strings.Trim(s.Domain, ".") + "."
	return
}

func (s *Service) txtStrings() []string {
	ss := make([]string, 0, len(s.Text))
	for k, val := range s.Text {
		ss = append(ss, k+"="+val)
	}
	return ss
}

// Register publishes the instance with one signed dynamic update:
// a PTR from the service name, and the SRV and TXT records at the
// instance name. The resolver routes UPDATE messages over TCP.
func Register(ctx context.Context, r *resolve.Resolver, signer dnswire.Signer, s Service) error {
	instance, service, zone := s.names()
	ttl := s.TTL
	if ttl == 0 {
		ttl = defaultTTL
	}
	v("advertising %s -> %s:%d", instance, s.Host, s.Port)

	m, err := dnswire.NewUpdate(r.NextID()).
		Zone(zone).
		Update(dnswire.Record{
			Name:  service,
			Type:  dnswire.TypePTR,
			Class: dnswire.ClassINET,
			TTL:   ttl,
			Data:  &dnswire.PTR{Host: instance},
		}).
		Update(dnswire.Record{
			Name:  instance,
			Type:  dnswire.TypeSRV,
			Class: dnswire.ClassINET,
			TTL:   ttl,
			Data:  &dnswire.SRV{Port: s.Port, Target: s.Host},
		}).
		Update(dnswire.Record{
			Name:  instance,
			Type:  dnswire.TypeTXT,
			Class: dnswire.ClassINET,
			TTL:   ttl,
			Data:  &dnswire.TXT{Text: s.txtStrings()},
		}).
		Sign(signer).
		Build()
	if err != nil {
		return fmt.Errorf("composing registration for %s: %w", instance, err)
	}

	resp, err := r.Send(ctx, m)
	if err != nil {
		return fmt.Errorf("registering %s: %w", instance, err)
	}
	if rc := resp.Flags.Rcode; rc != uint8(dnswire.RcodeNoError) {
		return fmt.Errorf("registering %s: server refused update, rcode %d", instance, rc)
	}
	return nil
}

// Unregister withdraws the instance: every record at the instance
// name is deleted (class ANY) and the PTR naming it is removed from
// the service set (class NONE with the exact RDATA).
func Unregister(ctx context.Context, r *resolve.Resolver, signer dnswire.Signer, s Service) error {
	instance, service, zone := s.names()
	v("withdrawing %s", instance)

	m, err := dnswire.NewUpdate(r.NextID()).
		Zone(zone).
		Update(dnswire.Record{
			Name:  instance,
			Type:  dnswire.TypeANY,
			Class: dnswire.ClassANY,
			Data:  &dnswire.Any{},
		}).
		Update(dnswire.Record{
			Name:  service,
			Type:  dnswire.TypePTR,
			Class: dnswire.ClassNONE,
			Data:  &dnswire.PTR{Host: instance},
		}).
		Sign(signer).
		Build()
	if err != nil {
		return fmt.Errorf("composing withdrawal of %s: %w", instance, err)
	}

	resp, err := r.Send(ctx, m)
	if err != nil {
		return fmt.Errorf("unregistering %s: %w", instance, err)
	}
	if rc := resp.Flags.Rcode; rc != uint8(dnswire.RcodeNoError) {
		return fmt.Errorf("unregistering %s: server refused update, rcode %d", instance, rc)
	}
	return nil
}
