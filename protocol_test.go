// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

package rcon_test

import (
	"bytes"
	"encoding/hex"
	"errors"
	"io"
	"math"
	"strconv"
	"strings"
	"testing"

	"github.com/schultz-is/rcon-stream"
)

func TestPacketBinaryFormatting(t *testing.T) {
	ps := []rcon.Packet{
		{}, // Empty packet
		{ID: 1, Type: rcon.PacketTypeAuth, Body: "password"},                   // Example authorization request
		{ID: 2, Type: rcon.PacketTypeAuthResponse},                             // Example successful authorization response
		{ID: -1, Type: rcon.PacketTypeAuthResponse},                            // Example unsuccessful authorization response
		{ID: 3, Type: rcon.PacketTypeExecCommand, Body: "info"},                // Example command request
		{ID: 4, Type: rcon.PacketTypeResponseValue, Body: "server info here"}, // Example command response
		{ID: math.MaxInt32, Type: math.MaxInt32, Body: strings.Repeat("a", rcon.MaximumPacketSize-rcon.WrapperSize)}, // Largest packet allowed, non-standard type field
	}

	for _, p := range ps {
		b, err := p.MarshalBinary()
		if err != nil {
			t.Fatalf("Packet[%#v].MarshalBinary() failed unexpectedly: %s", p, err)
		}

		var buf bytes.Buffer
		n, err := p.WriteTo(&buf)
		if err != nil {
			t.Fatalf("Packet[%#v].WriteTo() failed unexpectedly: %s", p, err)
		}
		if n != int64(len(b)) || !bytes.Equal(b, buf.Bytes()) {
			t.Fatalf("Packet[%#v].WriteTo() wrote %0x, MarshalBinary() produced %0x", p, buf.Bytes(), b)
		}

		// Ensure MarshalBinary is a pure function.
		b2, err := p.MarshalBinary()
		if err != nil {
			t.Fatalf("Packet[%#v].MarshalBinary() failed unexpectedly: %s", p, err)
		}
		if !bytes.Equal(b, b2) {
			t.Fatalf("Packet[%#v].MarshalBinary() got two different results: %0x, %0x", p, b, b2)
		}

		var p2 rcon.Packet
		err = p2.UnmarshalBinary(b)
		if err != nil {
			t.Fatalf("Packet.UnmarshalBinary(%0x) failed unexpectedly: %s", b, err)
		}

		var p3 rcon.Packet
		n3, err := p3.ReadFrom(&buf)
		if err != nil {
			t.Fatalf("Packet.ReadFrom(%0x) failed unexpectedly: %s", b, err)
		}

		if !p.EqualTo(p2) || p2.Length != p.Size() {
			t.Fatalf("Packet[%#v].MarshalBinary() did not round trip, got: %#v", p, p2)
		}
		if n != n3 || !p.EqualTo(p3) {
			t.Fatalf("Packet[%#v].WriteTo() did not round trip, got: %#v", p, p3)
		}
	}

	// Disallow packets above the maximum packet size defined by the protocol.
	p := rcon.Packet{Body: strings.Repeat("a", rcon.MaximumPacketSize)}
	_, err := p.MarshalBinary()
	if !errors.Is(err, rcon.ErrPacketTooLarge) {
		t.Fatalf("Packet[%#v].MarshalBinary() returned %v, want %v", p, err, rcon.ErrPacketTooLarge)
	}

	bss := []struct {
		hex  string
		want error
	}{
		{"d6ffffff", rcon.ErrPacketTooSmall},                                 // Negative packet size
		{"09000000", rcon.ErrPacketTooSmall},                                 // Packet size smaller than allowed by protocol
		{"01100000", rcon.ErrPacketTooLarge},                                 // Packet size larger than allowed by protocol
		{"0a00000011", io.ErrUnexpectedEOF},                                  // Packet shorter than provided size
		{"0a00000011111111222222223333", rcon.ErrBadTermination},             // Missing double null byte termination
		{"0a0000001111111122222222000000", rcon.ErrTrailingData},             // Packet longer than provided size
		{"0b0000001111111122222222000033", rcon.ErrBadTermination},           // Terminator in the wrong place
		{"", io.EOF},                                                         // Nothing at all
	}

	for _, bs := range bss {
		b, err := hex.DecodeString(bs.hex)
		if err != nil {
			t.Fatalf("invalid hex string in test table: %s, %s", bs.hex, err)
		}

		var p rcon.Packet
		err = p.UnmarshalBinary(b)
		if !errors.Is(err, bs.want) {
			t.Fatalf("Packet.UnmarshalBinary(%0x) returned %v, want %v", b, err, bs.want)
		}
	}
}

func TestPacketLengthField(t *testing.T) {
	tests := []struct {
		body string
		want int32
	}{
		{"", 10},
		{"list", 14},
		{"password", 18},
		{"héllo", 15},
	}

	for _, tt := range tests {
		p := rcon.Packet{Body: tt.body}
		if got := p.Size(); got != tt.want {
			t.Fatalf("Packet{Body: %q}.Size() = %d, want %d", tt.body, got, tt.want)
		}

		b, err := p.MarshalBinary()
		if err != nil {
			t.Fatalf("Packet{Body: %q}.MarshalBinary() failed unexpectedly: %s", tt.body, err)
		}
		if len(b) != int(tt.want)+4 {
			t.Fatalf("Packet{Body: %q}.MarshalBinary() produced %d bytes, want %d", tt.body, len(b), tt.want+4)
		}
		if !bytes.Equal(b[len(b)-2:], []byte{0, 0}) {
			t.Fatalf("Packet{Body: %q}.MarshalBinary() is not terminated by two zero bytes: %0x", tt.body, b)
		}
	}
}

func TestPacketASCII(t *testing.T) {
	p := rcon.Packet{ID: 9, Type: rcon.PacketTypeExecCommand, Body: "say héllo ☃"}
	b, err := p.MarshalBinary()
	if err != nil {
		t.Fatalf("Packet[%#v].MarshalBinary() failed unexpectedly: %s", p, err)
	}

	want, _ := hex.DecodeString("150000000900000002000000" + hex.EncodeToString([]byte("say h?llo ?")) + "0000")
	if !bytes.Equal(b, want) {
		t.Fatalf("Packet[%#v].MarshalBinary() = %0x, want %0x", p, b, want)
	}

	// Bytes outside the ASCII range decode as '?'.
	raw, _ := hex.DecodeString("0d0000000100000000000000ff41000000")
	var p2 rcon.Packet
	if err := p2.UnmarshalBinary(raw); err != nil {
		t.Fatalf("Packet.UnmarshalBinary(%0x) failed unexpectedly: %s", raw, err)
	}
	if p2.Body != "?A\x00" {
		t.Fatalf("Packet.UnmarshalBinary(%0x) body = %q, want %q", raw, p2.Body, "?A\x00")
	}
}

func TestPacketEqualTo(t *testing.T) {
	p := rcon.Packet{}
	if !p.EqualTo(p) {
		t.Fatalf("Packet[%#v].EqualTo(%#v) returned false when comparing a packet to itself", p, p)
	}

	p = rcon.Packet{
		ID:   12345,
		Type: rcon.PacketTypeResponseValue,
		Body: "some command response value goes here...",
	}
	if !p.EqualTo(p) {
		t.Fatalf("Packet[%#v].EqualTo(%#v) returned false when comparing a packet to itself", p, p)
	}

	p2 := p
	p2.Length = p.Size()
	if !p.EqualTo(p2) {
		t.Fatalf("Packet[%#v].EqualTo(%#v) compared declared lengths", p, p2)
	}

	p2.ID = p.ID - 1
	if p.EqualTo(p2) {
		t.Fatalf("Packet[%#v].EqualTo(%#v) incorrectly returned true for different IDs", p, p2)
	}

	p2.ID = p.ID
	p2.Type = p.Type + 1
	if p.EqualTo(p2) {
		t.Fatalf("Packet[%#v].EqualTo(%#v) incorrectly returned true for different types", p, p2)
	}

	p2.Type = p.Type
	p2.Body = p.Body + "X"
	if p.EqualTo(p2) {
		t.Fatalf("Packet[%#v].EqualTo(%#v) incorrectly returned true for different bodies", p, p2)
	}
}

func BenchmarkMarshalBinary(b *testing.B) {
	bodySizes := []int{
		0,
		5,
		10,
		15,
		25,
		125,
		250,
		500,
		1000,
		2000,
		rcon.MaximumPacketSize - rcon.WrapperSize,
	}

	for _, bodySize := range bodySizes {
		b.Run(
			strconv.Itoa(bodySize),
			func(b *testing.B) {
				p := rcon.Packet{
					Body: strings.Repeat("a", bodySize),
				}
				for n := 0; n < b.N; n++ {
					bs, err := p.MarshalBinary()
					if err != nil {
						b.Fatal(err)
					}
					b.SetBytes(int64(len(bs)))
				}
			},
		)
	}
}
