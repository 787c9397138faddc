// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

package rcon

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// terminator is the 16-bit zero value that ends a packet body.
var terminator = []byte{0, 0}

// Assembler reconstructs [Packet] values from a raw byte stream that may be split at arbitrary
// points. Each call to [Assembler.Feed] may complete zero, one, or many packets, and a single
// packet may take many calls to complete.
//
// The end of a body is found by scanning for the first two adjacent zero bytes, not by trusting
// the size prefix. A body that itself contains a zero byte will therefore be cut short: a zero
// inside the body followed by the first terminator byte, or two adjacent zeros anywhere in the
// body, are both taken to be the terminator. Whatever follows is then parsed as the start of the
// next packet.
//
// An Assembler is not safe for concurrent use. It is meant to be owned by the single goroutine
// reading from a connection.
type Assembler struct {
	handler func(Packet)
	strict  bool

	// pending holds bytes received but not yet consumed into a completed packet. Bytes before off
	// have been consumed and are dropped on the next compaction.
	pending []byte
	off     int

	// current is the packet whose header has been parsed but whose terminator has not been found.
	current *Packet

	// cursor is how far into the payload following current's header the terminator scan has
	// already looked. It only moves forward until the next header is parsed.
	cursor int

	// err is the protocol error that stopped the assembler, if any.
	err error
}

// AssemblerOption configures an [Assembler].
type AssemblerOption func(*Assembler)

// WithStrictLength makes the assembler cross-check each packet's size prefix. A size outside
// [WrapperSize] to [MaximumPacketSize], or one that disagrees with the body actually found before
// the terminator, results in a [ProtocolError].
func WithStrictLength() AssemblerOption {
	return func(a *Assembler) {
		a.strict = true
	}
}

// NewAssembler creates an [Assembler] that calls handler once for every completed packet, in the
// order the packets appear in the stream. handler runs synchronously inside [Assembler.Feed] and
// must not call back into the assembler.
func NewAssembler(handler func(Packet), opts ...AssemblerOption) *Assembler {
	a := &Assembler{handler: handler}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Feed appends chunk to the bytes already buffered and emits every packet that can now be
// completed. Not having enough bytes for a header or a terminator is not an error; the bytes are
// kept until the next call.
//
// A non-nil error is always a [ProtocolError] or wraps [ErrAssemblerFailed]. Once a protocol error
// occurs all buffered bytes are discarded and no further packets are emitted until
// [Assembler.Reset] is called.
func (a *Assembler) Feed(chunk []byte) error {
	if a.err != nil {
		return fmt.Errorf("%w: %w", ErrAssemblerFailed, a.err)
	}

	a.compact()
	a.pending = append(a.pending, chunk...)

	for {
		progressed, err := a.advance()
		if err != nil {
			a.fail(err)
			return err
		}
		if !progressed {
			return nil
		}
	}
}

// Buffered returns the number of received bytes that have not yet been consumed into a completed
// packet, including the header of a packet in progress.
func (a *Assembler) Buffered() int {
	n := len(a.pending) - a.off
	if a.current != nil {
		n += HeaderSize
	}
	return n
}

// Reset discards all buffered bytes, any packet in progress, and any previous protocol error.
func (a *Assembler) Reset() {
	a.pending = nil
	a.off = 0
	a.current = nil
	a.cursor = 0
	a.err = nil
}

// advance performs one parsing step, reporting whether it made progress.
func (a *Assembler) advance() (bool, error) {
	if a.current == nil {
		buf := a.pending[a.off:]
		if len(buf) < HeaderSize {
			return false, nil
		}

		a.current = &Packet{
			Length: int32(binary.LittleEndian.Uint32(buf[0:4])),
			ID:     int32(binary.LittleEndian.Uint32(buf[4:8])),
			Type:   int32(binary.LittleEndian.Uint32(buf[8:12])),
		}
		a.cursor = 0
		a.off += HeaderSize

		if a.strict && (a.current.Length < WrapperSize || a.current.Length > MaximumPacketSize) {
			return false, &ProtocolError{
				Reason:     "size out of range",
				Length:     a.current.Length,
				BodyLength: -1,
			}
		}
		return true, nil
	}

	payload := a.pending[a.off:]
	k := a.scan(payload)
	if k < 0 {
		if a.strict && len(payload) >= int(a.current.Length)-8 {
			return false, &ProtocolError{
				Reason:     "terminator missing",
				Length:     a.current.Length,
				BodyLength: -1,
			}
		}
		return false, nil
	}

	p := *a.current
	p.Body = decodeASCII(payload[:k])
	a.off += k + len(terminator)
	a.current = nil

	if a.strict && int(p.Length) != WrapperSize+k {
		return false, &ProtocolError{
			Reason:     "size does not match body",
			Length:     p.Length,
			BodyLength: k,
		}
	}

	if a.handler != nil {
		a.handler(p)
	}
	return true, nil
}

// scan looks for the terminator in payload starting at the cursor and returns its offset, or -1
// when it has not arrived yet. The cursor is left on the last byte that could still begin a
// terminator so the next call resumes from there.
func (a *Assembler) scan(payload []byte) int {
	if i := bytes.Index(payload[a.cursor:], terminator); i >= 0 {
		a.cursor += i
		return a.cursor
	}
	if last := len(payload) - 1; last > a.cursor {
		a.cursor = last
	}
	return -1
}

// compact drops consumed bytes from the front of pending once they make up at least half of it,
// keeping the copy cost proportional to the bytes received.
func (a *Assembler) compact() {
	switch {
	case a.off == 0:
	case a.off == len(a.pending):
		a.pending = a.pending[:0]
		a.off = 0
	case a.off >= len(a.pending)/2:
		n := copy(a.pending, a.pending[a.off:])
		a.pending = a.pending[:n]
		a.off = 0
	}
}

func (a *Assembler) fail(err error) {
	a.Reset()
	a.err = err
}
