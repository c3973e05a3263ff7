// Copyright 2023 the arrowhead-f Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dnswire

import (
	"bytes"
	"testing"
)

func TestReaderIntegers(t *testing.T) {
	r := NewReader([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 0xa, 0xb, 0xc, 0xd})
	if got := r.Uint8(); got != 0x01 {
		t.Errorf("Uint8: got %#x, want 0x01", got)
	}
	if got := r.Uint16(); got != 0x0203 {
		t.Errorf("Uint16: got %#x, want 0x0203", got)
	}
	if got := r.Uint32(); got != 0x04050607 {
		t.Errorf("Uint32: got %#x, want 0x04050607", got)
	}
	if got := r.Uint48(); got != 0x08090a0b0c0d {
		t.Errorf("Uint48: got %#x, want 0x08090a0b0c0d", got)
	}
}

func TestReaderPastEndYieldsZero(t *testing.T) {
	r := NewReader([]byte{0xff})
	r.Uint8()
	if got := r.Uint32(); got != 0 {
		t.Errorf("Uint32 past end: got %#x, want 0", got)
	}
	if got := r.Bytes(4); !bytes.Equal(got, make([]byte, 4)) {
		t.Errorf("Bytes past end: got %x, want zeros", got)
	}
}

func TestReaderSubWindow(t *testing.T) {
	r := NewReader([]byte{1, 2, 3, 4, 5})
	sub := r.Sub(2)
	if got := sub.Uint16(); got != 0x0102 {
		t.Errorf("sub.Uint16: got %#x, want 0x0102", got)
	}
	// Advancing the sub-window did not move the parent past it.
	if got := r.Uint8(); got != 3 {
		t.Errorf("parent after Sub: got %d, want 3", got)
	}
	if got := sub.Uint8(); got != 0 {
		t.Errorf("exhausted sub: got %d, want 0", got)
	}
}

func TestReadName(t *testing.T) {
	r := NewReader([]byte("\x05alpha\x09arrowhead\x03org\x00"))
	if got, want := r.Name(), "alpha.arrowhead.org."; got != want {
		t.Errorf("Name: got %q, want %q", got, want)
	}
}

func TestReadNameRoot(t *testing.T) {
	r := NewReader([]byte{0})
	if got := r.Name(); got != "." {
		t.Errorf("Name: got %q, want %q", got, ".")
	}
}

func TestReadNameEscapesDots(t *testing.T) {
	r := NewReader([]byte("\x08mail.dns\x09arrowhead\x03org\x00"))
	if got, want := r.Name(), `mail\.dns.arrowhead.org.`; got != want {
		t.Errorf("Name: got %q, want %q", got, want)
	}
}

func TestReadNameCompressed(t *testing.T) {
	// A message-shaped buffer: the name at offset 12, then a pointer
	// to offset 12, then a pointer into the middle of that name.
	msg := append(make([]byte, 12), []byte("\x05alpha\x09arrowhead\x03org\x00")...)
	start := len(msg)
	msg = append(msg, 0xc0, 12)       // -> alpha.arrowhead.org.
	msg = append(msg, 0x04, 'b', 'e', 't', 'a', 0xc0, 18) // beta + -> arrowhead.org.

	r := &Reader{data: msg, cur: start, end: len(msg)}
	if got, want := r.Name(), "alpha.arrowhead.org."; got != want {
		t.Errorf("pointer name: got %q, want %q", got, want)
	}
	if got, want := r.Name(), "beta.arrowhead.org."; got != want {
		t.Errorf("label+pointer name: got %q, want %q", got, want)
	}
	// The cursor sits just past the second name.
	if got := r.Remaining(); got != 0 {
		t.Errorf("Remaining: got %d, want 0", got)
	}
}

func TestReadNamePointerLoop(t *testing.T) {
	// Two pointers chasing each other must terminate.
	msg := []byte{0xc0, 0x02, 0xc0, 0x00}
	r := NewReader(msg)
	_ = r.Name()
}

func TestReadStrings(t *testing.T) {
	r := NewReader([]byte("\x04ab=1\x06cdef=2"))
	got := r.Strings()
	want := []string{"ab=1", "cdef=2"}
	if len(got) != len(want) {
		t.Fatalf("Strings: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Strings[%d]: got %q, want %q", i, got[i], want[i])
		}
	}
}
