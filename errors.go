// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

package rcon

import (
	"errors"
	"fmt"
)

var (
	// ErrPacketTooLarge is returned when a packet's size would exceed [MaximumPacketSize].
	ErrPacketTooLarge = errors.New("rcon: packet too large")

	// ErrPacketTooSmall is returned when a packet's declared size is smaller than [WrapperSize].
	ErrPacketTooSmall = errors.New("rcon: packet too small")

	// ErrBadTermination is returned when a packet read from a stream does not end in two zero bytes.
	ErrBadTermination = errors.New("rcon: packet incorrectly terminated")

	// ErrTrailingData is returned by [Packet.UnmarshalBinary] when bytes remain after the packet.
	ErrTrailingData = errors.New("rcon: trailing data after packet")

	// ErrProtocol is matched by every [ProtocolError] when using [errors.Is].
	ErrProtocol = errors.New("rcon: protocol error")

	// ErrAlreadyListening is returned when [Client.Listen] is called on a client that is already
	// listening.
	ErrAlreadyListening = errors.New("rcon: client is already listening")

	// ErrAssemblerFailed is returned by [Assembler.Feed] after the assembler has hit a
	// [ProtocolError] and before [Assembler.Reset] is called.
	ErrAssemblerFailed = errors.New("rcon: assembler failed")
)

// ProtocolError describes structurally invalid data found in an inbound byte stream. It is only
// produced by an [Assembler] configured with [WithStrictLength].
type ProtocolError struct {
	// Reason is a short description of what was wrong with the stream.
	Reason string

	// Length is the length prefix the packet declared.
	Length int32

	// BodyLength is the number of body bytes found before the terminator, or -1 when the error was
	// raised before the body was scanned.
	BodyLength int
}

func (e *ProtocolError) Error() string {
	if e.BodyLength < 0 {
		return fmt.Sprintf("rcon: protocol error: %s (declared length %d)", e.Reason, e.Length)
	}
	return fmt.Sprintf(
		"rcon: protocol error: %s (declared length %d, body length %d)",
		e.Reason, e.Length, e.BodyLength,
	)
}

// Is reports whether target is [ErrProtocol].
func (e *ProtocolError) Is(target error) bool {
	return target == ErrProtocol
}

// TransportError wraps a failure of the underlying connection. Op names the operation that failed:
// "dial", "read", or "write".
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return "rcon: " + e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
