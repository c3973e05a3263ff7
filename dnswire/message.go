// Copyright 2023 the arrowhead-f Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dnswire

import (
	"errors"
	"fmt"
)

// ErrOverflow reports that a message did not fit the supplied buffer.
// The UDP send path recovers from it by falling back to TCP.
var ErrOverflow = errors.New("message exceeds buffer")

// Flags is the unpacked 16-bit header flag field:
// [qr:1][opcode:4][aa:1][tc:1][rd:1][ra:1][z:3][rcode:4].
type Flags struct {
	Response           bool
	Opcode             uint8
	Authoritative      bool
	Truncated          bool
	RecursionDesired   bool
	RecursionAvailable bool
	Zero               uint8
	Rcode              uint8
}

func (f Flags) pack() uint16 {
	var v uint16
	if f.Response {
		v |= 1 << 15
	}
	v |= uint16(f.Opcode&0xf) << 11
	if f.Authoritative {
		v |= 1 << 10
	}
	if f.Truncated {
		v |= 1 << 9
	}
	if f.RecursionDesired {
		v |= 1 << 8
	}
	if f.RecursionAvailable {
		v |= 1 << 7
	}
	v |= uint16(f.Zero&0x7) << 4
	v |= uint16(f.Rcode & 0xf)
	return v
}

func unpackFlags(v uint16) Flags {
	return Flags{
		Response:           v&(1<<15) != 0,
		Opcode:             uint8(v >> 11 & 0xf),
		Authoritative:      v&(1<<10) != 0,
		Truncated:          v&(1<<9) != 0,
		RecursionDesired:   v&(1<<8) != 0,
		RecursionAvailable: v&(1<<7) != 0,
		Zero:               uint8(v >> 4 & 0x7),
		Rcode:              uint8(v & 0xf),
	}
}

// A Signer produces a TSIG record over the bytes of a serialized
// message. It is satisfied by tsig.Signer.
type Signer interface {
	Sign(id uint16, wire []byte) (*Record, error)
}

// A Message is one DNS message: header, flags and the four record
// sections. Section counts are derived from the slice lengths on the
// way out.
//
// With a Signer attached, packing an UPDATE message appends a TSIG
// record computed over the preceding bytes and bumps ARCOUNT in place,
// per RFC 2845 §3.4.1.
type Message struct {
	ID         uint16
	Flags      Flags
	Question   []Record
	Answer     []Record
	Authority  []Record
	Additional []Record

	Signer Signer
}

// Unpack parses a wire-format message. Records truncated mid-section
// are an error; fields truncated inside a record decode as zero
// values.
func (m *Message) Unpack(data []byte) error {
	if len(data) < headerLen {
		return fmt.Errorf("message of %d bytes is shorter than a header", len(data))
	}
	r := NewReader(data)
	m.ID = r.Uint16()
	m.Flags = unpackFlags(r.Uint16())
	qd := r.Uint16()
	an := r.Uint16()
	ns := r.Uint16()
	ar := r.Uint16()

	var err error
	m.Question, err = unpackSection(r, qd, true, "question")
	if err != nil {
		return err
	}
	m.Answer, err = unpackSection(r, an, false, "answer")
	if err != nil {
		return err
	}
	m.Authority, err = unpackSection(r, ns, false, "authority")
	if err != nil {
		return err
	}
	m.Additional, err = unpackSection(r, ar, false, "additional")
	return err
}

func unpackSection(r *Reader, count uint16, question bool, section string) ([]Record, error) {
	if count == 0 {
		return nil, nil
	}
	rrs := make([]Record, 0, count)
	for i := uint16(0); i < count; i++ {
		if r.Remaining() == 0 {
			return nil, fmt.Errorf("message truncated after %d of %d %s records", i, count, section)
		}
		var rr Record
		rr.unpack(r, question)
		rrs = append(rrs, rr)
	}
	return rrs, nil
}

// Pack serializes the message into buf and returns the written slice.
// A message that does not fit returns ErrOverflow.
func (m *Message) Pack(buf []byte) ([]byte, error) {
	w := NewWriter(buf)
	w.WriteUint16(m.ID)
	w.WriteUint16(m.Flags.pack())
	w.WriteUint16(uint16(len(m.Question)))
	w.WriteUint16(uint16(len(m.Answer)))
	w.WriteUint16(uint16(len(m.Authority)))
	w.WriteUint16(uint16(len(m.Additional)))

	for _, s := range []struct {
		rrs      []Record
		question bool
	}{
		{m.Question, true},
		{m.Answer, false},
		{m.Authority, false},
		{m.Additional, false},
	} {
		for i := range s.rrs {
			if err := s.rrs[i].pack(w, s.question); err != nil {
				return nil, err
			}
		}
	}

	if m.Signer != nil && m.Flags.Opcode == OpcodeUpdate && !w.Overflowed() {
		rr, err := m.Signer.Sign(m.ID, w.Bytes())
		if err != nil {
			return nil, fmt.Errorf("signing update: %w", err)
		}
		if err := rr.pack(w, false); err != nil {
			return nil, err
		}
		// ARCOUNT on the wire counts the appended signature too.
		if !w.Overflowed() {
			ar := uint16(len(m.Additional) + 1)
			buf[10] = byte(ar >> 8)
			buf[11] = byte(ar)
		}
	}

	if w.Overflowed() {
		return nil, ErrOverflow
	}
	return w.Bytes(), nil
}
