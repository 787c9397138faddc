// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

package rcon

import (
	"bytes"
	"encoding/binary"
	"io"
	"unicode/utf8"
)

// WrapperSize is the cumulative size of non-body bytes that contribute to calculation of the packet
// size that precedes a binary packet. Eight bytes are accounted for by the packet ID and type,
// while two bytes are accounted for by the null byte termination of the body and packet. The packet
// size itself is not included in the size calculation.
const WrapperSize = 8 + 2

// HeaderSize is the number of bytes that must be buffered before a packet header can be parsed:
// the packet size, ID, and type, each a little-endian int32.
const HeaderSize = 4 * 3

// MaximumPacketSize is the largest value allowed for the packet size that precedes binary packets.
// This value is outlined in the protocol.
const MaximumPacketSize = 4096

const (
	// PacketTypeAuth represents a client authorization request packet. It indicates that the body
	// will contain the server password.
	PacketTypeAuth = 3

	// PacketTypeAuthResponse represents a server authorization response packet. If authorization
	// failed, the packet ID will have a value of -1 rather than that of the matching client request
	// packet.
	PacketTypeAuthResponse = 2

	// PacketTypeExecCommand represents a client request packet that contains a command to be executed
	// by the server. It shares a value with [PacketTypeAuthResponse]; which one is meant depends on
	// whether the packet was sent by the client or by the server.
	PacketTypeExecCommand = 2

	// PacketTypeResponseValue represents a server response packet that contains the output of a
	// server command initiated by a [PacketTypeExecCommand] client request packet.
	PacketTypeResponseValue = 0
)

// Packet is a singular RCON protocol packet, either as a request from a client or a response from
// a server.
type Packet struct {
	// ID is a field chosen by the client which can be used to correlate request packets with
	// response packets. It need not be unique. The singular case where a response will not echo the
	// request ID is an auth failure, where [Packet.Type] is [PacketTypeAuthResponse] and this field
	// is -1.
	ID int32

	// Type indicates the purpose of the packet. Its value should always be one of [PacketTypeAuth],
	// [PacketTypeAuthResponse], [PacketTypeExecCommand], or [PacketTypeResponseValue].
	Type int32

	// Body is the ASCII text of the packet: the RCON password, the command to be executed, or the
	// server's response. It does not include the null terminators and may be empty.
	Body string

	// Length is the size prefix a received packet declared on the wire. It is informational only;
	// encoding always recomputes the size from the body.
	Length int32
}

// Size returns the value that precedes p on the wire: [WrapperSize] plus the ASCII length of the
// body.
func (p Packet) Size() int32 {
	return int32(WrapperSize + asciiLen(p.Body))
}

// MarshalBinary encodes the receiving [Packet] into binary form and returns the result. This
// satisfies the [encoding.BinaryMarshaler] interface. The body is encoded as ASCII, with any
// character outside that range replaced by '?', and is always followed by two zero bytes.
func (p Packet) MarshalBinary() ([]byte, error) {
	packetSize := p.Size()
	if packetSize > MaximumPacketSize {
		return nil, ErrPacketTooLarge
	}

	return p.appendBinary(make([]byte, 0, 4+int(packetSize))), nil
}

// appendBinary appends the wire form of p to b without checking its size.
func (p Packet) appendBinary(b []byte) []byte {
	b = binary.LittleEndian.AppendUint32(b, uint32(p.Size()))
	b = binary.LittleEndian.AppendUint32(b, uint32(p.ID))
	b = binary.LittleEndian.AppendUint32(b, uint32(p.Type))
	b = appendASCII(b, p.Body)
	return append(b, 0, 0)
}

// WriteTo writes a binary representation of the packet to [io.Writer] w in a single Write call.
// This method satisfies the [io.WriterTo] interface.
func (p Packet) WriteTo(w io.Writer) (int64, error) {
	bs, err := p.MarshalBinary()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(bs)
	if err == nil && n < len(bs) {
		err = io.ErrShortWrite
	}

	return int64(n), err
}

// UnmarshalBinary decodes the single binary encoded packet b into the receiving [Packet]. This
// satisfies the [encoding.BinaryUnmarshaler] interface.
func (p *Packet) UnmarshalBinary(b []byte) error {
	r := bytes.NewReader(b)
	if _, err := p.ReadFrom(r); err != nil {
		return err
	}
	if r.Len() > 0 {
		return ErrTrailingData
	}
	return nil
}

// ReadFrom reads exactly one binary packet from r, trusting its size prefix, into the receiving
// [Packet]. This method satisfies the [io.ReaderFrom] interface.
//
// ReadFrom suits readers that deliver whole packets, such as a test server reading client
// requests. Streams where the size prefix cannot be trusted should go through an [Assembler].
func (p *Packet) ReadFrom(r io.Reader) (int64, error) {
	n := int64(0)

	var header [HeaderSize]byte
	m, err := io.ReadFull(r, header[:4])
	n += int64(m)
	if err != nil {
		return n, err
	}
	packetSize := int32(binary.LittleEndian.Uint32(header[:4]))

	if packetSize < WrapperSize {
		return n, ErrPacketTooSmall
	}
	if packetSize > MaximumPacketSize {
		return n, ErrPacketTooLarge
	}

	m, err = io.ReadFull(r, header[4:])
	n += int64(m)
	if err != nil {
		return n, err
	}

	rest := make([]byte, packetSize-8)
	m, err = io.ReadFull(r, rest)
	n += int64(m)
	if err != nil {
		return n, err
	}

	body, term := rest[:len(rest)-2], rest[len(rest)-2:]
	if term[0] != 0 || term[1] != 0 {
		return n, ErrBadTermination
	}

	p.Length = packetSize
	p.ID = int32(binary.LittleEndian.Uint32(header[4:8]))
	p.Type = int32(binary.LittleEndian.Uint32(header[8:12]))
	p.Body = decodeASCII(body)

	return n, nil
}

// EqualTo determines if the provided Packet content matches the receiving Packet content. The
// declared [Packet.Length] is not compared.
func (p Packet) EqualTo(p2 Packet) bool {
	return p.ID == p2.ID && p.Type == p2.Type && p.Body == p2.Body
}

// asciiLen returns the number of bytes s occupies once ASCII encoded.
func asciiLen(s string) int {
	if isASCII(s) {
		return len(s)
	}
	return utf8.RuneCountInString(s)
}

// appendASCII appends s to b as ASCII, substituting '?' for anything outside the ASCII range.
func appendASCII(b []byte, s string) []byte {
	if isASCII(s) {
		return append(b, s...)
	}
	for _, r := range s {
		if r >= utf8.RuneSelf {
			r = '?'
		}
		b = append(b, byte(r))
	}
	return b
}

// decodeASCII converts b to a string, substituting '?' for any byte outside the ASCII range.
func decodeASCII(b []byte) string {
	for i, c := range b {
		if c >= utf8.RuneSelf {
			out := make([]byte, len(b))
			copy(out, b)
			for j := i; j < len(out); j++ {
				if out[j] >= utf8.RuneSelf {
					out[j] = '?'
				}
			}
			return string(out)
		}
	}
	return string(b)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
