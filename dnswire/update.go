// Copyright 2023 the arrowhead-f Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dnswire

import "errors"

// ErrNoZone reports an UPDATE built without a zone.
var ErrNoZone = errors.New("update has no zone")

// An UpdateBuilder composes an RFC 2136 dynamic-update message:
// exactly one zone, optional prerequisites, and a list of additions
// and deletions. Operations chain; Build returns the finished
// message.
//
//	m, err := dnswire.NewUpdate(id).
//		Zone("arrowhead.org.").
//		Absent("printer._ipp._tcp.arrowhead.org.").
//		Update(srvRecord).
//		Sign(signer).
//		Build()
type UpdateBuilder struct {
	msg Message
}

// NewUpdate starts an UPDATE message with the given id.
func NewUpdate(id uint16) *UpdateBuilder {
	return &UpdateBuilder{msg: Message{ID: id, Flags: Flags{Opcode: OpcodeUpdate}}}
}

// Zone sets the single zone the update applies to, carried as an
// SOA/IN question. Calling it again replaces the zone.
func (u *UpdateBuilder) Zone(name string) *UpdateBuilder {
	u.msg.Question = []Record{{Name: name, Type: TypeSOA, Class: ClassINET}}
	return u
}

// Present requires that name owns at least one record
// (RFC 2136 §2.4.4: class ANY, empty RDATA).
func (u *UpdateBuilder) Present(name string) *UpdateBuilder {
	return u.prereq(name, ClassANY)
}

// Absent requires that name owns no records
// (RFC 2136 §2.4.5: class NONE, empty RDATA).
func (u *UpdateBuilder) Absent(name string) *UpdateBuilder {
	return u.prereq(name, ClassNONE)
}

func (u *UpdateBuilder) prereq(name string, class uint16) *UpdateBuilder {
	u.msg.Answer = append(u.msg.Answer, Record{
		Name:  name,
		Type:  TypeANY,
		Class: class,
		Data:  &Any{},
	})
	return u
}

// Update appends one operation record. Class IN adds the record;
// class NONE deletes that exact record; class ANY deletes the name or
// type set.
func (u *UpdateBuilder) Update(rr Record) *UpdateBuilder {
	u.msg.Authority = append(u.msg.Authority, rr)
	return u
}

// Sign attaches the transaction signer applied when the message is
// packed. A nil signer leaves the message unsigned.
func (u *UpdateBuilder) Sign(s Signer) *UpdateBuilder {
	u.msg.Signer = s
	return u
}

// Build returns the composed message. An update without a zone is an
// error.
func (u *UpdateBuilder) Build() (*Message, error) {
	if len(u.msg.Question) == 0 {
		return nil, ErrNoZone
	}
	m := u.msg
	return &m, nil
}
