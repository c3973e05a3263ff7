// Copyright 2023 the arrowhead-f Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package tsig signs and verifies DNS messages with RFC 2845
// transaction signatures, used here to authenticate DNS UPDATE
// traffic to the service-discovery zone.
package tsig

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"hash"
	"strings"
	"time"

	"github.com/arrowhead-f/ahclient/dnswire"
)

// DefaultAlgorithm is the RFC 2845 mandatory algorithm. Legacy, but
// what the deployed registrars still expect; prefer WithAlgorithm
// ("hmac-sha256.") against anything modern.
const DefaultAlgorithm = "hmac-md5.sig-alg.reg.int."

// DefaultFudge is the permitted clock skew in seconds.
const DefaultFudge uint16 = 300

// Verification outcomes, mirroring the TSIG extended rcodes.
var (
	ErrBadSig  = fmt.Errorf("tsig: bad signature")
	ErrBadKey  = fmt.Errorf("tsig: unknown key or algorithm")
	ErrBadTime = fmt.Errorf("tsig: signed time outside fudge window")
)

// A Signer holds one shared key and produces or checks TSIG records
// for messages exchanged under that key. It implements
// dnswire.Signer.
type Signer struct {
	name      string
	secret    []byte
	algorithm string
	fudge     uint16
	now       func() time.Time
}

// New returns a Signer for the named key. The secret is base64, as
// distributed in key files. The algorithm defaults to
// DefaultAlgorithm and the fudge to DefaultFudge.
func New(keyName, secret string) (*Signer, error) {
	raw, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return nil, fmt.Errorf("decoding secret for key %s: %w", keyName, err)
	}
	return &Signer{
		name:      keyName,
		secret:    raw,
		algorithm: DefaultAlgorithm,
		fudge:     DefaultFudge,
		now:       time.Now,
	}, nil
}

// WithAlgorithm sets the HMAC algorithm by its DNS name.
func (s *Signer) WithAlgorithm(name string) *Signer {
	s.algorithm = name
	return s
}

// WithFudge sets the permitted clock skew in seconds.
func (s *Signer) WithFudge(fudge uint16) *Signer {
	s.fudge = fudge
	return s
}

// WithTimeFunc overrides the time source.
func (s *Signer) WithTimeFunc(now func() time.Time) *Signer {
	s.now = now
	return s
}

// canonical lowercases an algorithm or key name and strips the root
// dot, so names compare the way RFC 2845 asks: case-insensitively on
// the canonical form.
func canonical(name string) string {
	return strings.TrimSuffix(strings.ToLower(name), ".")
}

func hashFor(algorithm string) (func() hash.Hash, error) {
	switch canonical(algorithm) {
	case "hmac-md5.sig-alg.reg.int":
		return md5.New, nil
	case "hmac-sha1":
		return sha1.New, nil
	case "hmac-sha224":
		return sha256.New224, nil
	case "hmac-sha256":
		return sha256.New, nil
	case "hmac-sha384":
		return sha512.New384, nil
	case "hmac-sha512":
		return sha512.New, nil
	}
	return nil, fmt.Errorf("tsig: unsupported algorithm %q", algorithm)
}

// Sign computes the transaction signature over a serialized message
// and returns the ready-to-append TSIG record: name=key, class ANY,
// TTL 0.
func (s *Signer) Sign(id uint16, wire []byte) (*dnswire.Record, error) {
	t := uint64(s.now().Unix())
	mac, err := s.mac(wire, t, s.fudge, 0, nil)
	if err != nil {
		return nil, err
	}
	return &dnswire.Record{
		Name:  s.name,
		Type:  dnswire.TypeTSIG,
		Class: dnswire.ClassANY,
		TTL:   0,
		Data: &dnswire.TSIG{
			Algorithm:  s.algorithm,
			TimeSigned: t,
			Fudge:      s.fudge,
			MAC:        mac,
			OrigID:     id,
		},
	}, nil
}

// Verify checks a TSIG record against the message bytes it signed
// (the message as it was before the signature was appended). It
// returns nil or one of ErrBadKey, ErrBadSig, ErrBadTime, in the
// order RFC 2845 §4.5 checks them.
func (s *Signer) Verify(wire []byte, rr *dnswire.Record) error {
	td, ok := rr.Data.(*dnswire.TSIG)
	if !ok || rr.Type != dnswire.TypeTSIG {
		return fmt.Errorf("%w: record is not a TSIG", ErrBadKey)
	}
	if canonical(rr.Name) != canonical(s.name) {
		return fmt.Errorf("%w: key %q", ErrBadKey, rr.Name)
	}
	if canonical(td.Algorithm) != canonical(s.algorithm) {
		return fmt.Errorf("%w: algorithm %q", ErrBadKey, td.Algorithm)
	}
	mac, err := s.mac(wire, td.TimeSigned, td.Fudge, td.Error, td.Other)
	if err != nil {
		return err
	}
	if !hmac.Equal(mac, td.MAC) {
		return ErrBadSig
	}
	now := uint64(s.now().Unix())
	skew := now - td.TimeSigned
	if td.TimeSigned > now {
		skew = td.TimeSigned - now
	}
	if skew > uint64(td.Fudge) {
		return fmt.Errorf("%w: signed %ds away from now", ErrBadTime, skew)
	}
	return nil
}

// mac computes the HMAC over the RFC 2845 §3.4 digest input: the
// message bytes followed by the canonicalized TSIG variables.
func (s *Signer) mac(wire []byte, timeSigned uint64, fudge uint16, errCode uint16, other []byte) ([]byte, error) {
	newHash, err := hashFor(s.algorithm)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, len(wire)+512)
	w := dnswire.NewWriter(buf)
	w.WriteBytes(wire)
	if err := w.WriteName(s.name); err != nil {
		return nil, err
	}
	w.WriteUint16(dnswire.ClassANY)
	w.WriteUint32(0)
	if err := w.WriteName(s.algorithm); err != nil {
		return nil, err
	}
	w.WriteUint48(timeSigned)
	w.WriteUint16(fudge)
	w.WriteUint16(errCode)
	w.WriteUint16(uint16(len(other)))
	w.WriteBytes(other)
	if w.Overflowed() {
		return nil, dnswire.ErrOverflow
	}

	h := hmac.New(newHash, s.secret)
	h.Write(w.Bytes())
	return h.Sum(nil), nil
}
