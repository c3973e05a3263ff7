// Copyright 2023 the arrowhead-f Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dnswire

import "strings"

// A Reader is a positioned window over a byte buffer. Reads advance the
// cursor; reads past the window end yield zero values, so a malformed
// packet decodes into a structurally valid but semantically empty
// message. Callers treat unexpected shapes as protocol errors instead
// of relying on panics.
//
// Sub-windows share the underlying buffer. Compression pointers are
// offsets into the whole enclosing message, so every derived Reader
// keeps the full buffer and only narrows cursor and end.
type Reader struct {
	data []byte
	cur  int
	end  int
}

// Pointer chains in a well-formed name are short; anything deeper is a
// loop.
const maxPointerChase = 64

// NewReader returns a Reader over an entire message.
func NewReader(data []byte) *Reader {
	return &Reader{data: data, end: len(data)}
}

// Sub derives a child window of n bytes and advances the parent past
// it. A short parent yields a short (possibly empty) child.
func (r *Reader) Sub(n int) *Reader {
	end := r.cur + n
	if end > r.end {
		end = r.end
	}
	sub := &Reader{data: r.data, cur: r.cur, end: end}
	r.cur = end
	return sub
}

// Remaining reports the bytes left in the window.
func (r *Reader) Remaining() int {
	return r.end - r.cur
}

// Bytes reads n raw bytes. The result is a copy; a short window yields
// n zero bytes.
func (r *Reader) Bytes(n int) []byte {
	if r.cur+n > r.end {
		r.cur = r.end
		return make([]byte, n)
	}
	b := make([]byte, n)
	copy(b, r.data[r.cur:r.cur+n])
	r.cur += n
	return b
}

func (r *Reader) Uint8() uint8 {
	if r.cur >= r.end {
		return 0
	}
	v := r.data[r.cur]
	r.cur++
	return v
}

func (r *Reader) Uint16() uint16 {
	return uint16(r.Uint8())<<8 | uint16(r.Uint8())
}

func (r *Reader) Uint32() uint32 {
	return uint32(r.Uint16())<<16 | uint32(r.Uint16())
}

// Uint48 reads the 6-byte integers TSIG uses for time-signed.
func (r *Reader) Uint48() uint64 {
	return uint64(r.Uint16())<<32 | uint64(r.Uint32())
}

// Name reads a domain name, chasing compression pointers through the
// enclosing message. The result always carries a trailing dot; literal
// dots inside a label come back escaped as `\.`.
func (r *Reader) Name() string {
	return r.name(0)
}

func (r *Reader) name(chased int) string {
	var b strings.Builder
	for {
		n := r.Uint8()
		switch {
		case n == 0:
			if b.Len() == 0 {
				return "."
			}
			return b.String()
		case n&pointerMask == pointerMask:
			if chased >= maxPointerChase {
				return b.String()
			}
			off := int(n&^pointerMask)<<8 | int(r.Uint8())
			sub := &Reader{data: r.data, cur: off, end: len(r.data)}
			b.WriteString(sub.name(chased + 1))
			return b.String()
		default:
			label := string(r.Bytes(int(n)))
			b.WriteString(strings.ReplaceAll(label, ".", `\.`))
			b.WriteByte('.')
		}
	}
}

// Strings reads character-strings until the window is exhausted.
func (r *Reader) Strings() []string {
	var ss []string
	for r.Remaining() > 0 {
		n := r.Uint8()
		ss = append(ss, string(r.Bytes(int(n))))
	}
	return ss
}
