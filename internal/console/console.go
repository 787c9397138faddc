// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

// Package console implements the interactive command set of the rcon tool.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/pterm/pterm"

	"github.com/schultz-is/rcon-stream"
	"github.com/schultz-is/rcon-stream/internal/config"
)

// Help lists every command the console understands.
const Help = `
Commands:

/quit - quit program

/help - shows help details

/connect [hostname] [port] [password] - tries to login to rcon server, using the configured server when no arguments are given

/tell [target] [message] - message target player

/raw [command] - sends a raw rcon command to the server

/list - list players on server
`

// Session is the part of an [rcon.Client] the console drives.
type Session interface {
	SendAuth(ctx context.Context, id int32, password string) error
	List(ctx context.Context, id int32) error
	Tell(ctx context.Context, id int32, target, message string) error
	Raw(ctx context.Context, id int32, command string) error
	NextID() int32
	Listen(ctx context.Context) error
	Close() error
}

// DialFunc connects to address and arranges for every received packet to be passed to onPacket.
type DialFunc func(ctx context.Context, address string, onPacket func(rcon.Packet)) (Session, error)

// Console runs commands typed by a user against at most one server connection at a time.
type Console struct {
	cfg    config.Config
	dial   DialFunc
	logger *slog.Logger

	// outMu keeps packet output from the listen goroutine and command output from interleaving.
	outMu sync.Mutex
	out   io.Writer

	mu      sync.Mutex
	session Session
	stop    context.CancelFunc
}

// New creates a console writing to out. cfg supplies the server used by a bare /connect.
func New(out io.Writer, cfg config.Config, dial DialFunc, logger *slog.Logger) *Console {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Console{
		cfg:    cfg,
		dial:   dial,
		logger: logger,
		out:    out,
	}
}

// Execute runs a single line of input. It returns false once the user has asked to quit.
func (c *Console) Execute(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return true
	}
	args := fields[1:]

	switch fields[0] {
	case "/connect":
		c.connectCommand(ctx, args)
	case "/list":
		c.send(ctx, func(s Session, id int32) error { return s.List(ctx, id) })
	case "/tell":
		if len(args) < 2 {
			c.warn("Expected arguments missing: /tell [target] [message]")
			return true
		}
		c.send(ctx, func(s Session, id int32) error {
			return s.Tell(ctx, id, args[0], strings.Join(args[1:], " "))
		})
	case "/raw":
		if len(args) < 1 {
			c.warn("Expected arguments missing: /raw [command]")
			return true
		}
		c.send(ctx, func(s Session, id int32) error {
			return s.Raw(ctx, id, strings.Join(args, " "))
		})
	case "/quit":
		c.Close()
		return false
	default:
		c.ShowHelp()
	}
	return true
}

// Connected reports whether the console holds a live session.
func (c *Console) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil
}

// Close drops the current session, if any.
func (c *Console) Close() {
	c.mu.Lock()
	s, stop := c.session, c.stop
	c.session, c.stop = nil, nil
	c.mu.Unlock()

	if s == nil {
		return
	}
	stop()
	if err := s.Close(); err != nil {
		c.logger.Debug("close session", slog.String("error", err.Error()))
	}
}

// ShowHelp prints the command list.
func (c *Console) ShowHelp() {
	c.print(Help)
}

// PrintPacket writes a received packet in the console's display format.
func (c *Console) PrintPacket(p rcon.Packet) {
	body := p.Body
	if strings.TrimSpace(body) == "" {
		body = "[[NO MESSAGE]]"
	}
	c.print(fmt.Sprintf("\nServer: [ID:%d] [Type:%d] Body:%s\n", p.ID, p.Type, body))
}

func (c *Console) connectCommand(ctx context.Context, args []string) {
	host, port, password := c.cfg.Host, c.cfg.Port, c.cfg.Password
	switch {
	case len(args) == 0:
	case len(args) < 3:
		c.warn("Expected arguments missing: /connect [hostname] [port] [password]")
		return
	default:
		p, err := strconv.Atoi(args[1])
		if err != nil {
			c.warn("Port not valid, expected an integer")
			return
		}
		host, port, password = args[0], p, strings.Join(args[2:], " ")
	}

	if err := c.Connect(ctx, host, port, password); err != nil {
		c.warn(err.Error())
	}
}

// Connect dials host:port, starts receiving packets in the background, and sends password for
// authorization. It fails if a session is already open.
func (c *Console) Connect(ctx context.Context, host string, port int, password string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		return errors.New("already connected")
	}

	addr := config.Config{Host: host, Port: port}.Address()
	s, err := c.dial(ctx, addr, c.PrintPacket)
	if err != nil {
		c.logger.Debug("dial failed", slog.String("address", addr), slog.String("error", err.Error()))
		return fmt.Errorf("failed to connect to server: ensure server is online and accessible at %s", addr)
	}

	lctx, stop := context.WithCancel(context.Background())
	c.session, c.stop = s, stop
	go c.listen(lctx, s)

	c.info("Connected to " + addr)
	if err := s.SendAuth(ctx, s.NextID(), password); err != nil {
		c.session, c.stop = nil, nil
		stop()
		_ = s.Close()
		return fmt.Errorf("failed to authorize: %w", err)
	}
	return nil
}

// listen receives packets for s until the connection ends, then forgets s if it is still the
// current session.
func (c *Console) listen(ctx context.Context, s Session) {
	err := s.Listen(ctx)

	c.mu.Lock()
	current := c.session == s
	if current {
		c.session, c.stop = nil, nil
	}
	c.mu.Unlock()

	if !current || ctx.Err() != nil {
		return
	}
	_ = s.Close()
	c.warn("Connection lost: " + err.Error())
}

func (c *Console) send(ctx context.Context, fn func(s Session, id int32) error) {
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()

	if s == nil {
		c.warn("You are not connected")
		return
	}
	if err := fn(s, s.NextID()); err != nil {
		c.warn("Send failed: " + err.Error())
	}
}

func (c *Console) print(s string) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	pterm.Fprint(c.out, s)
}

func (c *Console) info(msg string) {
	c.print(pterm.Info.Sprintln(msg))
}

func (c *Console) warn(msg string) {
	c.print(pterm.Warning.Sprintln(msg))
}
