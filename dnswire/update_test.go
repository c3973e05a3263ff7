// Copyright 2023 the arrowhead-f Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dnswire

import (
	"errors"
	"testing"
)

func TestUpdateBuilder(t *testing.T) {
	srv := Record{
		Name:  "printer._arrowhead._tcp.arrowhead.org.",
		Type:  TypeSRV,
		Class: ClassINET,
		TTL:   120,
		Data:  &SRV{Port: 8443, Target: "epsilon.arrowhead.org."},
	}
	m, err := NewUpdate(37352).
		Zone("arrowhead.org.").
		Absent("printer._arrowhead._tcp.arrowhead.org.").
		Update(srv).
		Build()
	if err != nil {
		t.Fatalf("Build: got %v, want nil", err)
	}

	if m.ID != 37352 {
		t.Errorf("ID: got %d, want 37352", m.ID)
	}
	if m.Flags.Opcode != OpcodeUpdate {
		t.Errorf("Opcode: got %d, want %d", m.Flags.Opcode, OpcodeUpdate)
	}
	if len(m.Question) != 1 {
		t.Fatalf("zone section: got %d records, want 1", len(m.Question))
	}
	z := m.Question[0]
	if z.Name != "arrowhead.org." || z.Type != TypeSOA || z.Class != ClassINET {
		t.Errorf("zone: got %v, want arrowhead.org. SOA IN", z)
	}
	if len(m.Answer) != 1 {
		t.Fatalf("prerequisite section: got %d records, want 1", len(m.Answer))
	}
	p := m.Answer[0]
	if p.Class != ClassNONE || p.Type != TypeANY || p.TTL != 0 {
		t.Errorf("absent prerequisite: got class %d type %d ttl %d, want NONE ANY 0", p.Class, p.Type, p.TTL)
	}
	if len(m.Authority) != 1 || m.Authority[0].Type != TypeSRV {
		t.Errorf("update section: got %v, want the SRV record", m.Authority)
	}
}

func TestUpdateBuilderPresent(t *testing.T) {
	m, err := NewUpdate(1).
		Zone("arrowhead.org.").
		Present("alpha.arrowhead.org.").
		Build()
	if err != nil {
		t.Fatalf("Build: got %v, want nil", err)
	}
	if got := m.Answer[0].Class; got != ClassANY {
		t.Errorf("present prerequisite class: got %d, want %d", got, ClassANY)
	}
}

func TestUpdateBuilderZoneReplaced(t *testing.T) {
	m, err := NewUpdate(1).Zone("a.org.").Zone("b.org.").Build()
	if err != nil {
		t.Fatalf("Build: got %v, want nil", err)
	}
	if len(m.Question) != 1 || m.Question[0].Name != "b.org." {
		t.Errorf("zone: got %v, want a single b.org.", m.Question)
	}
}

func TestUpdateBuilderNoZone(t *testing.T) {
	_, err := NewUpdate(1).Present("alpha.arrowhead.org.").Build()
	if !errors.Is(err, ErrNoZone) {
		t.Errorf("Build: got %v, want ErrNoZone", err)
	}
}
