// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

package rcon

import (
	"strings"
	"testing"
)

func TestAssemblerCursor(t *testing.T) {
	first, err := Packet{ID: 1, Body: strings.Repeat("a", 100)}.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	second, err := Packet{ID: 2, Body: "b"}.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	stream := append(first, second...)

	emitted := 0
	a := NewAssembler(func(Packet) { emitted++ })

	// Header plus ten body bytes: the scan stops on the last byte that could start a terminator.
	if err := a.Feed(stream[:HeaderSize+10]); err != nil {
		t.Fatal(err)
	}
	if a.current == nil || a.cursor != 9 {
		t.Fatalf("after 10 body bytes: current = %v, cursor = %d, want cursor 9", a.current, a.cursor)
	}

	// The cursor only moves forward while the first packet is in progress.
	prev := a.cursor
	off := HeaderSize + 10
	for ; emitted == 0; off += 7 {
		end := min(off+7, len(first))
		if err := a.Feed(stream[off:end]); err != nil {
			t.Fatal(err)
		}
		if emitted == 0 && a.cursor < prev {
			t.Fatalf("cursor moved backwards from %d to %d", prev, a.cursor)
		}
		prev = a.cursor
	}
	if prev != 100 {
		t.Fatalf("terminator found at %d, want 100", prev)
	}
	if a.current != nil {
		t.Fatalf("packet still in progress after its terminator: %#v", a.current)
	}

	// Parsing the next header resets the cursor.
	if err := a.Feed(second[:HeaderSize]); err != nil {
		t.Fatal(err)
	}
	if a.current == nil || a.current.ID != 2 || a.cursor != 0 {
		t.Fatalf("after second header: current = %#v, cursor = %d, want ID 2 and cursor 0", a.current, a.cursor)
	}

	if err := a.Feed(second[HeaderSize:]); err != nil {
		t.Fatal(err)
	}
	if emitted != 2 || a.Buffered() != 0 {
		t.Fatalf("emitted = %d, buffered = %d, want 2 and 0", emitted, a.Buffered())
	}
}

func TestAssemblerCompaction(t *testing.T) {
	p, err := Packet{ID: 3, Body: "status"}.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	a := NewAssembler(nil)
	for i := 0; i < 1000; i++ {
		// Split every packet so a partial one is always pending between calls.
		if err := a.Feed(p[:5]); err != nil {
			t.Fatal(err)
		}
		if err := a.Feed(p[5:]); err != nil {
			t.Fatal(err)
		}
	}
	if a.Buffered() != 0 {
		t.Fatalf("Buffered() = %d, want 0", a.Buffered())
	}
	if cap(a.pending) > 4*len(p) {
		t.Fatalf("pending buffer grew to %d bytes for %d byte packets", cap(a.pending), len(p))
	}
}
