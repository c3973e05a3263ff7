// Copyright 2023 the arrowhead-f Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dnswire

import (
	"fmt"
	"net"
)

// RData is the typed payload of a resource record. Decoding dispatches
// on the numeric record type; unknown types are preserved verbatim as
// Unknown.
type RData interface {
	// RType is the numeric record type of the payload.
	RType() uint16

	pack(w *Writer) error
	unpack(r *Reader)
}

// newRData returns the zero payload for a record type.
func newRData(typ uint16) RData {
	switch typ {
	case TypeA:
		return new(A)
	case TypeNS:
		return new(NS)
	case TypeCNAME:
		return new(CNAME)
	case TypeSOA:
		return new(SOA)
	case TypePTR:
		return new(PTR)
	case TypeMX:
		return new(MX)
	case TypeTXT:
		return new(TXT)
	case TypeAAAA:
		return new(AAAA)
	case TypeSRV:
		return new(SRV)
	case TypeDNAME:
		return new(DNAME)
	case TypeOPT:
		return new(OPT)
	case TypeTSIG:
		return new(TSIG)
	case TypeANY:
		return new(Any)
	default:
		return &Unknown{Type: typ}
	}
}

// An A payload is an IPv4 host address.
type A struct {
	Addr net.IP
}

func (*A) RType() uint16 { return TypeA }

func (a *A) pack(w *Writer) error {
	ip := a.Addr.To4()
	if ip == nil {
		return fmt.Errorf("%v is not an IPv4 address", a.Addr)
	}
	w.WriteBytes(ip)
	return nil
}

func (a *A) unpack(r *Reader) {
	a.Addr = net.IP(r.Bytes(net.IPv4len))
}

// An AAAA payload is an IPv6 host address.
type AAAA struct {
	Addr net.IP
}

func (*AAAA) RType() uint16 { return TypeAAAA }

func (a *AAAA) pack(w *Writer) error {
	ip := a.Addr.To16()
	if ip == nil {
		return fmt.Errorf("%v is not an IP address", a.Addr)
	}
	w.WriteBytes(ip)
	return nil
}

func (a *AAAA) unpack(r *Reader) {
	a.Addr = net.IP(r.Bytes(net.IPv6len))
}

// NS names an authoritative name server.
type NS struct {
	Host string
}

func (*NS) RType() uint16 { return TypeNS }
func (d *NS) pack(w *Writer) error {
	return w.WriteName(d.Host)
}
func (d *NS) unpack(r *Reader) { d.Host = r.Name() }

// CNAME is the canonical name for an alias.
type CNAME struct {
	Host string
}

func (*CNAME) RType() uint16 { return TypeCNAME }
func (d *CNAME) pack(w *Writer) error {
	return w.WriteName(d.Host)
}
func (d *CNAME) unpack(r *Reader) { d.Host = r.Name() }

// PTR is a domain-name pointer; DNS-SD browse answers are PTR sets.
type PTR struct {
	Host string
}

func (*PTR) RType() uint16 { return TypePTR }
func (d *PTR) pack(w *Writer) error {
	return w.WriteName(d.Host)
}
func (d *PTR) unpack(r *Reader) { d.Host = r.Name() }

// DNAME redirects a whole subtree.
type DNAME struct {
	Host string
}

func (*DNAME) RType() uint16 { return TypeDNAME }
func (d *DNAME) pack(w *Writer) error {
	return w.WriteName(d.Host)
}
func (d *DNAME) unpack(r *Reader) { d.Host = r.Name() }

// SOA marks the start of a zone of authority.
type SOA struct {
	MName   string
	RName   string
	Serial  uint32
	Refresh uint32
	Retry   uint32
	Expire  uint32
	Minimum uint32
}

func (*SOA) RType() uint16 { return TypeSOA }

func (d *SOA) pack(w *Writer) error {
	if err := w.WriteName(d.MName); err != nil {
		return err
	}
	if err := w.WriteName(d.RName); err != nil {
		return err
	}
	w.WriteUint32(d.Serial)
	w.WriteUint32(d.Refresh)
	w.WriteUint32(d.Retry)
	w.WriteUint32(d.Expire)
	w.WriteUint32(d.Minimum)
	return nil
}

func (d *SOA) unpack(r *Reader) {
	d.MName = r.Name()
	d.RName = r.Name()
	d.Serial = r.Uint32()
	d.Refresh = r.Uint32()
	d.Retry = r.Uint32()
	d.Expire = r.Uint32()
	d.Minimum = r.Uint32()
}

// MX names a mail exchange.
type MX struct {
	Preference uint16
	Exchange   string
}

func (*MX) RType() uint16 { return TypeMX }

func (d *MX) pack(w *Writer) error {
	w.WriteUint16(d.Preference)
	return w.WriteName(d.Exchange)
}

func (d *MX) unpack(r *Reader) {
	d.Preference = r.Uint16()
	d.Exchange = r.Name()
}

// TXT carries one or more character-strings. DNS-SD stores instance
// key=value attributes here.
type TXT struct {
	Text []string
}

func (*TXT) RType() uint16 { return TypeTXT }

func (d *TXT) pack(w *Writer) error {
	for _, s := range d.Text {
		if err := w.WriteString(s); err != nil {
			return err
		}
	}
	return nil
}

func (d *TXT) unpack(r *Reader) {
	d.Text = r.Strings()
}

// SRV selects a server instance: target host and port with priority
// and weight.
type SRV struct {
	Priority uint16
	Weight   uint16
	Port     uint16
	Target   string
}

func (*SRV) RType() uint16 { return TypeSRV }

func (d *SRV) pack(w *Writer) error {
	w.WriteUint16(d.Priority)
	w.WriteUint16(d.Weight)
	w.WriteUint16(d.Port)
	return w.WriteName(d.Target)
}

func (d *SRV) unpack(r *Reader) {
	d.Priority = r.Uint16()
	d.Weight = r.Uint16()
	d.Port = r.Uint16()
	d.Target = r.Name()
}

// An EDNSOption is one code/data pair inside an OPT pseudo-record.
type EDNSOption struct {
	Code uint16
	Data []byte
}

// OPT is the EDNS0 pseudo-record. Options are encoded and preserved
// but not interpreted.
type OPT struct {
	Options []EDNSOption
}

func (*OPT) RType() uint16 { return TypeOPT }

func (d *OPT) pack(w *Writer) error {
	for _, o := range d.Options {
		w.WriteUint16(o.Code)
		w.WriteUint16(uint16(len(o.Data)))
		w.WriteBytes(o.Data)
	}
	return nil
}

func (d *OPT) unpack(r *Reader) {
	for r.Remaining() >= 4 {
		code := r.Uint16()
		n := r.Uint16()
		d.Options = append(d.Options, EDNSOption{Code: code, Data: r.Bytes(int(n))})
	}
}

// TSIG is the RFC 2845 transaction signature payload.
type TSIG struct {
	Algorithm  string
	TimeSigned uint64
	Fudge      uint16
	MAC        []byte
	OrigID     uint16
	Error      uint16
	Other      []byte
}

func (*TSIG) RType() uint16 { return TypeTSIG }

func (d *TSIG) pack(w *Writer) error {
	if err := w.WriteName(d.Algorithm); err != nil {
		return err
	}
	w.WriteUint48(d.TimeSigned)
	w.WriteUint16(d.Fudge)
	w.WriteUint16(uint16(len(d.MAC)))
	w.WriteBytes(d.MAC)
	w.WriteUint16(d.OrigID)
	w.WriteUint16(d.Error)
	w.WriteUint16(uint16(len(d.Other)))
	w.WriteBytes(d.Other)
	return nil
}

func (d *TSIG) unpack(r *Reader) {
	d.Algorithm = r.Name()
	d.TimeSigned = r.Uint48()
	d.Fudge = r.Uint16()
	d.MAC = r.Bytes(int(r.Uint16()))
	d.OrigID = r.Uint16()
	d.Error = r.Uint16()
	d.Other = r.Bytes(int(r.Uint16()))
}

// Any is the empty payload of a class/type ANY record, used by UPDATE
// to delete every record at a name.
type Any struct{}

func (*Any) RType() uint16 { return TypeANY }
func (*Any) pack(*Writer) error { return nil }
func (*Any) unpack(*Reader)     {}

// Unknown preserves the payload of a record type this codec does not
// interpret.
type Unknown struct {
	Type uint16
	Data []byte
}

func (d *Unknown) RType() uint16 { return d.Type }

func (d *Unknown) pack(w *Writer) error {
	w.WriteBytes(d.Data)
	return nil
}

func (d *Unknown) unpack(r *Reader) {
	d.Data = r.Bytes(r.Remaining())
}
