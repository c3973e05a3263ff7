// Copyright 2023 the arrowhead-f Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dnswire implements the RFC 1035 binary message format:
// positioned byte windows, domain-name coding with compression-pointer
// decoding, typed resource data, resource records, whole messages, and
// an RFC 2136 UPDATE builder.
package dnswire

// Resource record types this codec knows how to decode into typed
// values. Anything else round-trips as an opaque blob.
const (
	TypeA     uint16 = 1
	TypeNS    uint16 = 2
	TypeCNAME uint16 = 5
	TypeSOA   uint16 = 6
	TypePTR   uint16 = 12
	TypeMX    uint16 = 15
	TypeTXT   uint16 = 16
	TypeAAAA  uint16 = 28
	TypeSRV   uint16 = 33
	TypeDNAME uint16 = 39
	TypeOPT   uint16 = 41
	TypeTSIG  uint16 = 250
	TypeANY   uint16 = 255
)

// Classes. NONE and ANY carry RFC 2136 prerequisite/delete semantics.
const (
	ClassINET uint16 = 1
	ClassNONE uint16 = 254
	ClassANY  uint16 = 255
)

// Opcodes.
const (
	OpcodeQuery  uint8 = 0
	OpcodeNotify uint8 = 4
	OpcodeUpdate uint8 = 5
)

// Response codes, including the TSIG extended set carried in the TSIG
// RDATA error field (RFC 2845 §1.7).
const (
	RcodeNoError  uint16 = 0
	RcodeFormErr  uint16 = 1
	RcodeServFail uint16 = 2
	RcodeNXDomain uint16 = 3
	RcodeNotImpl  uint16 = 4
	RcodeRefused  uint16 = 5
	RcodeBadSig   uint16 = 16
	RcodeBadKey   uint16 = 17
	RcodeBadTime  uint16 = 18
)

const (
	headerLen = 12
	// A label is at most 63 octets; the two top bits of the length
	// distinguish labels from compression pointers.
	maxLabelLen = 63
	pointerMask = 0xc0
	// MaxUDPSize and MaxTCPSize are the serialized-message limits of
	// the two transports.
	MaxUDPSize = 512
	MaxTCPSize = 65535
)
