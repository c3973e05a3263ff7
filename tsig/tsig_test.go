// Copyright 2023 the arrowhead-f Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tsig

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/arrowhead-f/ahclient/dnswire"
)

const (
	testKey    = "key.arrowhead.org."
	testSecret = "VQEOSuLEGcsnJqjOJKnjbA=="
	signedAt   = 1506594227
)

func testSigner(t *testing.T) *Signer {
	t.Helper()
	s, err := New(testKey, testSecret)
	if err != nil {
		t.Fatalf("New: got %v, want nil", err)
	}
	return s.WithTimeFunc(func() time.Time {
		return time.Unix(signedAt, 0)
	})
}

// unsignedUpdate is the UPDATE for zone beta.arrowhead.org. the MAC
// vector was computed over.
func unsignedUpdate(t *testing.T) *dnswire.Message {
	t.Helper()
	m, err := dnswire.NewUpdate(37352).Zone("beta.arrowhead.org.").Build()
	if err != nil {
		t.Fatalf("Build: got %v, want nil", err)
	}
	return m
}

func TestSignVector(t *testing.T) {
	s := testSigner(t)
	m := unsignedUpdate(t)
	wire, err := m.Pack(make([]byte, 512))
	if err != nil {
		t.Fatalf("Pack: got %v, want nil", err)
	}

	rr, err := s.Sign(m.ID, wire)
	if err != nil {
		t.Fatalf("Sign: got %v, want nil", err)
	}
	if rr.Name != testKey || rr.Type != dnswire.TypeTSIG || rr.Class != dnswire.ClassANY || rr.TTL != 0 {
		t.Errorf("signature record header: got %v, want %s TSIG ANY 0", rr, testKey)
	}
	td, ok := rr.Data.(*dnswire.TSIG)
	if !ok {
		t.Fatalf("signature data: got %T, want *dnswire.TSIG", rr.Data)
	}
	want, _ := hex.DecodeString("52fb20edcfbc965d2b041c134ef32f6b")
	if !bytes.Equal(td.MAC, want) {
		t.Errorf("MAC:\ngot  %x\nwant %x", td.MAC, want)
	}
	if td.OrigID != 37352 || td.Fudge != 300 || td.TimeSigned != signedAt {
		t.Errorf("TSIG fields: got id %d fudge %d time %d", td.OrigID, td.Fudge, td.TimeSigned)
	}
}

// Packing an UPDATE with the signer attached appends the signature
// and bumps the additional count on the wire.
func TestSignedUpdateWire(t *testing.T) {
	s := testSigner(t)
	m := unsignedUpdate(t)
	unsigned, err := m.Pack(make([]byte, 512))
	if err != nil {
		t.Fatalf("Pack unsigned: got %v, want nil", err)
	}
	unsigned = append([]byte(nil), unsigned...)

	m.Signer = s
	wire, err := m.Pack(make([]byte, 512))
	if err != nil {
		t.Fatalf("Pack signed: got %v, want nil", err)
	}
	if got, want := int(wire[10])<<8|int(wire[11]), 1; got != want {
		t.Errorf("wire ARCOUNT: got %d, want %d", got, want)
	}

	var parsed dnswire.Message
	if err := parsed.Unpack(wire); err != nil {
		t.Fatalf("Unpack: got %v, want nil", err)
	}
	if len(parsed.Additional) != 1 {
		t.Fatalf("additional: got %d records, want 1", len(parsed.Additional))
	}
	rr := parsed.Additional[len(parsed.Additional)-1]
	if rr.Type != dnswire.TypeTSIG {
		t.Fatalf("trailing record: got type %d, want TSIG", rr.Type)
	}
	// The signature verifies over the message as it was signed.
	if err := s.Verify(unsigned, &rr); err != nil {
		t.Errorf("Verify: got %v, want nil", err)
	}
}

func TestVerifyBadSig(t *testing.T) {
	s := testSigner(t)
	m := unsignedUpdate(t)
	wire, _ := m.Pack(make([]byte, 512))
	rr, err := s.Sign(m.ID, wire)
	if err != nil {
		t.Fatalf("Sign: got %v, want nil", err)
	}
	rr.Data.(*dnswire.TSIG).MAC[0] ^= 0xff
	if err := s.Verify(wire, rr); !errors.Is(err, ErrBadSig) {
		t.Errorf("Verify with mangled MAC: got %v, want ErrBadSig", err)
	}
}

func TestVerifyBadKey(t *testing.T) {
	s := testSigner(t)
	m := unsignedUpdate(t)
	wire, _ := m.Pack(make([]byte, 512))
	rr, err := s.Sign(m.ID, wire)
	if err != nil {
		t.Fatalf("Sign: got %v, want nil", err)
	}
	rr.Name = "other.arrowhead.org."
	if err := s.Verify(wire, rr); !errors.Is(err, ErrBadKey) {
		t.Errorf("Verify with wrong key name: got %v, want ErrBadKey", err)
	}
}

func TestVerifyBadTime(t *testing.T) {
	s := testSigner(t)
	m := unsignedUpdate(t)
	wire, _ := m.Pack(make([]byte, 512))
	rr, err := s.Sign(m.ID, wire)
	if err != nil {
		t.Fatalf("Sign: got %v, want nil", err)
	}
	// The fudge window is 300 seconds; verify an hour later.
	late := s.WithTimeFunc(func() time.Time {
		return time.Unix(signedAt+3600, 0)
	})
	if err := late.Verify(wire, rr); !errors.Is(err, ErrBadTime) {
		t.Errorf("Verify an hour late: got %v, want ErrBadTime", err)
	}
}

func TestVerifyKeyNameCaseInsensitive(t *testing.T) {
	s := testSigner(t)
	m := unsignedUpdate(t)
	wire, _ := m.Pack(make([]byte, 512))
	rr, err := s.Sign(m.ID, wire)
	if err != nil {
		t.Fatalf("Sign: got %v, want nil", err)
	}
	rr.Name = "KEY.Arrowhead.ORG"
	if err := s.Verify(wire, rr); err != nil {
		t.Errorf("Verify with recased key name: got %v, want nil", err)
	}
}

func TestMACSizes(t *testing.T) {
	for _, test := range []struct {
		algorithm string
		size      int
	}{
		{"hmac-md5.sig-alg.reg.int.", 16},
		{"hmac-sha1.", 20},
		{"hmac-sha224.", 28},
		{"HMAC-SHA256", 32},
		{"hmac-sha384.", 48},
		{"hmac-sha512.", 64},
	} {
		s := testSigner(t).WithAlgorithm(test.algorithm)
		rr, err := s.Sign(1, []byte{0, 1, 2, 3})
		if err != nil {
			t.Errorf("Sign with %s: got %v, want nil", test.algorithm, err)
			continue
		}
		if got := len(rr.Data.(*dnswire.TSIG).MAC); got != test.size {
			t.Errorf("%s MAC size: got %d, want %d", test.algorithm, got, test.size)
		}
	}
}

func TestUnsupportedAlgorithm(t *testing.T) {
	s := testSigner(t).WithAlgorithm("hmac-rot13.")
	if _, err := s.Sign(1, []byte{0}); err == nil {
		t.Errorf("Sign with bogus algorithm: got nil, want err")
	}
}

func TestNewBadSecret(t *testing.T) {
	if _, err := New(testKey, "not base64!!"); err == nil {
		t.Errorf("New with bad secret: got nil, want err")
	}
}
