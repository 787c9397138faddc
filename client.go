// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

package rcon

import (
	"context"
	"log/slog"
	"math"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultDialTimeout is the default amount of time allowed for [Dial] to establish a connection.
const DefaultDialTimeout = 15 * time.Second

// DefaultReadBufferSize is the default size of the buffer a client reads into. Packets larger than
// this simply take more than one read to assemble.
const DefaultReadBufferSize = 1024

// Client is an RCON client that manages a single connection to an RCON server. While the RCON
// protocol specifies transport over TCP, this client allows transport over anything that satisfies
// the [net.Conn] interface. There are a few reasons this might be useful to a consumer of this
// package:
//  1. RCON is unencrypted by default, which means the authorization password is written over the
//     wire in plain text. The [crypto/tls.Conn] satisfies the [net.Conn] interface and can be
//     supplied to this client to encrypt RCON traffic seamlessly. This is of course only possible
//     when the RCON server is also using TLS.
//  2. In the case the RCON server and client are running on the same machine, it may be useful to
//     communicate over a Unix socket (or other IPC communication transport,) rather than a full
//     TCP socket.
//  3. Providing a [net.Conn] that the caller controls allows for logging, debugging, and
//     packet modification outside the scope of the client.
//
// Sending is decoupled from receiving. The send methods write a packet and return immediately;
// every packet the server sends is delivered to [ClientConfig.OnPacket] by [Client.Listen], which
// must be running in its own goroutine for responses to be seen. Send methods are safe for
// concurrent use.
//
// RCON does not specify any keep alive functionality, so a connection may be dropped by the server
// when idle for an extended period. A dropped connection ends [Client.Listen] with an error; the
// client does not reconnect.
type Client struct {
	// seq tracks the monotonically increasing packet ID handed out by [Client.NextID]. This will be
	// a positive value between zero and [math.MaxInt32] inclusive.
	seq atomic.Int32

	// conn is the underlying connection RCON messages are sent and received over.
	conn net.Conn

	// dispatcher serializes outbound packets onto conn.
	dispatcher *Dispatcher

	// onPacket receives every packet assembled from conn.
	onPacket func(Packet)

	readBufferSize int
	strictLength   bool

	// logger receives any log output from a client.
	logger *slog.Logger

	listening atomic.Bool

	closeOnce sync.Once
	closeErr  error
}

// ClientConfig contains settings to control [Client] instances.
type ClientConfig struct {
	// DialTimeout limits the amount of time [Dial] can spend connecting. A value of zero will inform
	// Dial to use the [DefaultDialTimeout].
	DialTimeout time.Duration

	// StartingSeq is the initial value for a client's packet ID sequence. Any value less than zero
	// will be ignored.
	StartingSeq int32

	// ReadBufferSize is the size of each read from the connection. A value of zero or less will
	// inform the client to use the [DefaultReadBufferSize].
	ReadBufferSize int

	// StrictLength enables [WithStrictLength] on the client's [Assembler].
	StrictLength bool

	// OnPacket is called from the [Client.Listen] goroutine once for every packet received, in the
	// order they arrive. It should return quickly; the next packet is not assembled until it does.
	OnPacket func(Packet)

	// Logger receives log entries from a client.
	Logger *slog.Logger

	// LogOutboundAuthPackets is a flag that must be explicitly enabled when the client is created.
	// This field enables debug logging to include outbound authorization request packets, exposing
	// server passwords in plaintext. When this field is false (the default value,) outbound
	// authorization packets will be sanitized to hide both the password text and packet length.
	//
	// WARNING: Only enable this flag if you are aware of the implications and are willing to accept
	// the risks!
	LogOutboundAuthPackets bool
}

// Dial connects to the RCON server at address over TCP and returns a [Client] using the
// connection. A failure to connect is returned as a [TransportError].
func Dial(ctx context.Context, address string, config ClientConfig) (*Client, error) {
	timeout := config.DialTimeout
	if timeout == 0 {
		timeout = DefaultDialTimeout
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, &TransportError{Op: "dial", Err: err}
	}
	return NewClient(conn, config), nil
}

// NewClient creates and returns a [Client] that uses conn as its transport, configured by the
// provided config.
//
// Once a conn is provided to a NewClient call, the conn should not be used outside of the client
// in order to ensure reliable message delivery.
func NewClient(conn net.Conn, config ClientConfig) *Client {
	c := &Client{
		conn: conn,
		dispatcher: NewDispatcher(conn, DispatcherConfig{
			Logger:                 config.Logger,
			LogOutboundAuthPackets: config.LogOutboundAuthPackets,
		}),
		onPacket:       config.OnPacket,
		readBufferSize: config.ReadBufferSize,
		strictLength:   config.StrictLength,
		logger:         config.Logger,
	}
	if c.readBufferSize <= 0 {
		c.readBufferSize = DefaultReadBufferSize
	}
	c.seq.Store(config.StartingSeq)
	return c
}

// Close closes the receiving client's underlying connection. It is safe to call more than once;
// later calls return the result of the first.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// Listen reads from the connection until it fails, feeding every read into an [Assembler] and
// delivering the resulting packets to [ClientConfig.OnPacket]. It blocks, and may only be called
// once per client.
//
// Listen always returns a non-nil error. Cancelling ctx closes the connection and returns the
// context's error. A read failure is returned as a [TransportError]. A [ProtocolError] closes the
// connection and is returned as is.
func (c *Client) Listen(ctx context.Context) error {
	if !c.listening.CompareAndSwap(false, true) {
		return ErrAlreadyListening
	}

	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	var opts []AssemblerOption
	if c.strictLength {
		opts = append(opts, WithStrictLength())
	}
	asm := NewAssembler(func(p Packet) { c.deliver(ctx, p) }, opts...)

	buf := make([]byte, c.readBufferSize)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			if ferr := asm.Feed(buf[:n]); ferr != nil {
				if c.logger != nil {
					c.logger.LogAttrs(ctx, slog.LevelError, "dropping connection", slog.String("error", ferr.Error()))
				}
				_ = c.Close()
				return ferr
			}
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return &TransportError{Op: "read", Err: err}
		}
	}
}

// SendAuth sends password to the server to authorize the current session. The server's verdict
// arrives later as a [PacketTypeAuthResponse] packet whose ID is either id or -1.
func (c *Client) SendAuth(ctx context.Context, id int32, password string) error {
	return c.dispatcher.Auth(ctx, id, password)
}

// SendCommand sends command to be executed by the server. Its output arrives later in one or more
// [PacketTypeResponseValue] packets carrying id.
func (c *Client) SendCommand(ctx context.Context, id int32, command string) error {
	return c.dispatcher.ExecCommand(ctx, id, command)
}

// List sends the "list" command.
func (c *Client) List(ctx context.Context, id int32) error {
	return c.dispatcher.List(ctx, id)
}

// Tell sends a "tell" command delivering message to target.
func (c *Client) Tell(ctx context.Context, id int32, target, message string) error {
	return c.dispatcher.Tell(ctx, id, target, message)
}

// Raw sends command unchanged.
func (c *Client) Raw(ctx context.Context, id int32, command string) error {
	return c.dispatcher.Raw(ctx, id, command)
}

// NextID returns and then increments the receiving client's packet ID sequence, wrapping around
// to zero when [math.MaxInt32] is reached.
func (c *Client) NextID() int32 {
	var seq int32
	swapped := false
	for !swapped {
		seq = c.seq.Load()
		switch {
		case seq < 0:
			swapped = c.seq.CompareAndSwap(seq, 1)
			seq = 0

		case seq == math.MaxInt32:
			swapped = c.seq.CompareAndSwap(seq, 0)

		default:
			swapped = c.seq.CompareAndSwap(seq, seq+1)
		}
	}
	return seq
}

// deliver logs p and hands it to the configured packet handler.
func (c *Client) deliver(ctx context.Context, p Packet) {
	logPacket(ctx, c.logger, "received packet", p, true)
	if p.Type == PacketTypeAuthResponse && p.ID == -1 && c.logger != nil {
		c.logger.LogAttrs(ctx, slog.LevelWarn, "rcon: unauthorized")
	}
	if c.onPacket != nil {
		c.onPacket(p)
	}
}
