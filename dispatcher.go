// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

package rcon

import (
	"context"
	"encoding/hex"
	"io"
	"log/slog"
	"sync"
)

// Dispatcher encodes outbound packets and writes them to a transport. Each packet is composed into
// one buffer and written with one Write call while holding a lock, so packets sent from different
// goroutines never interleave on the wire.
//
// Dispatchers do not wait for responses. Matching a response to the ID of the request that caused
// it is left to the caller.
type Dispatcher struct {
	// mu serializes writes to w.
	mu sync.Mutex

	// w is the transport packets are written to.
	w io.Writer

	// logger receives any log output from a dispatcher.
	logger *slog.Logger

	// logOutboundAuthPackets enables debug logging of authorization packets in plain text. See
	// [DispatcherConfig.LogOutboundAuthPackets].
	logOutboundAuthPackets bool
}

// DispatcherConfig contains settings to control [Dispatcher] instances.
type DispatcherConfig struct {
	// Logger receives log entries from a dispatcher. A nil Logger disables logging.
	Logger *slog.Logger

	// LogOutboundAuthPackets is a flag that must be explicitly enabled when the dispatcher is
	// created. This field enables debug logging to include outbound authorization request packets,
	// exposing server passwords in plaintext. When this field is false (the default value,) outbound
	// authorization packets will be sanitized to hide both the password text and packet length.
	//
	// WARNING: Only enable this flag if you are aware of the implications and are willing to accept
	// the risks!
	LogOutboundAuthPackets bool
}

// NewDispatcher creates and returns a [Dispatcher] that writes to w.
func NewDispatcher(w io.Writer, config DispatcherConfig) *Dispatcher {
	return &Dispatcher{
		w:                      w,
		logger:                 config.Logger,
		logOutboundAuthPackets: config.LogOutboundAuthPackets,
	}
}

// Send encodes p and writes it to the transport in a single Write call. Encoding errors are
// returned as is; write failures are returned as a [TransportError].
func (d *Dispatcher) Send(ctx context.Context, p Packet) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	bs, err := p.MarshalBinary()
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.logPacket(ctx, "sending packet", p)
	n, err := d.w.Write(bs)
	if err == nil && n < len(bs) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	return nil
}

// Auth sends an authorization request carrying password.
func (d *Dispatcher) Auth(ctx context.Context, id int32, password string) error {
	return d.Send(ctx, Packet{ID: id, Type: PacketTypeAuth, Body: password})
}

// ExecCommand sends command to be executed by the server.
func (d *Dispatcher) ExecCommand(ctx context.Context, id int32, command string) error {
	return d.Send(ctx, Packet{ID: id, Type: PacketTypeExecCommand, Body: command})
}

// List asks the server for its connected players.
func (d *Dispatcher) List(ctx context.Context, id int32) error {
	return d.ExecCommand(ctx, id, "list")
}

// Tell sends message to the player named target.
func (d *Dispatcher) Tell(ctx context.Context, id int32, target, message string) error {
	return d.ExecCommand(ctx, id, "tell "+target+" "+message)
}

// Raw sends command unchanged. It is equivalent to [Dispatcher.ExecCommand].
func (d *Dispatcher) Raw(ctx context.Context, id int32, command string) error {
	return d.ExecCommand(ctx, id, command)
}

// logPacket sends a log record containing the provided log message and packet to the dispatcher's
// logger for handling. When the logger is nil or is not level set for debug records, this function
// is essentially a NOP. If the provided packet is an outbound authorization packet, its body and
// length are obfuscated to prevent leaking a plaintext password into logs.
func (d *Dispatcher) logPacket(ctx context.Context, logMsg string, packet Packet) {
	logPacket(ctx, d.logger, logMsg, packet, d.logOutboundAuthPackets)
}

// logPacket writes packet to logger as hex at debug level, scrubbing authorization packets unless
// showAuth is set.
func logPacket(ctx context.Context, logger *slog.Logger, logMsg string, packet Packet, showAuth bool) {
	if logger == nil || !logger.Handler().Enabled(ctx, slog.LevelDebug) {
		return
	}

	if packet.Type == PacketTypeAuth && !showAuth {
		packet.Body = "xxxxx"
	}

	bs := packet.appendBinary(nil)
	logger.LogAttrs(
		ctx,
		slog.LevelDebug,
		logMsg,
		slog.Int("id", int(packet.ID)),
		slog.Int("type", int(packet.Type)),
		slog.String("packet", hex.EncodeToString(bs)),
	)
}
