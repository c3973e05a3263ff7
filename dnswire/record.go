// Copyright 2023 the arrowhead-f Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dnswire

// A Record is one resource record. In the question section TTL and
// Data are absent; elsewhere Data holds the typed RDATA.
type Record struct {
	Name  string
	Type  uint16
	Class uint16
	TTL   uint32
	Data  RData
}

// unpack reads a record. With question set, only name, type and class
// are present on the wire.
func (rr *Record) unpack(r *Reader, question bool) {
	rr.Name = r.Name()
	rr.Type = r.Uint16()
	rr.Class = r.Uint16()
	if question {
		return
	}
	rr.TTL = r.Uint32()
	rdlen := r.Uint16()
	sub := r.Sub(int(rdlen))
	rr.Data = newRData(rr.Type)
	rr.Data.unpack(sub)
}

// pack writes a record, reserving the RDLENGTH field and back-filling
// it with the exact number of bytes the payload encoder produced.
func (rr *Record) pack(w *Writer, question bool) error {
	if err := w.WriteName(rr.Name); err != nil {
		return err
	}
	w.WriteUint16(rr.Type)
	w.WriteUint16(rr.Class)
	if question {
		return nil
	}
	w.WriteUint32(rr.TTL)
	rdlen := w.Sub(2)
	mark := w.Offset()
	if rr.Data != nil {
		if err := rr.Data.pack(w); err != nil {
			return err
		}
	}
	rdlen.WriteUint16(uint16(w.Offset() - mark))
	return nil
}
