// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

// Command rcon is an interactive Source RCON client.
//
// It reads commands from standard input and prints every packet the server sends back as it
// arrives. Server settings may be given in a TOML file with -config; the password may also be
// supplied through the RCON_PASSWORD environment variable.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/pterm/pterm"

	"github.com/schultz-is/rcon-stream"
	"github.com/schultz-is/rcon-stream/internal/config"
	"github.com/schultz-is/rcon-stream/internal/console"
)

var version = "dev"

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	configPath := flag.String("config", "", "Path to a TOML config file")
	debug := flag.Bool("debug", false, "Enable debug logging, including packet dumps")
	connect := flag.Bool("connect", false, "Connect to the configured server on start")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		pterm.Error.Println(err.Error())
		os.Exit(1)
	}

	pterm.DefaultLogger.ShowTime = true
	pterm.DefaultLogger.TimeFormat = "02 Jan 15:04:05"
	if *debug || cfg.Debug {
		pterm.DefaultLogger.Level = pterm.LogLevelDebug
	}
	logger := slog.New(pterm.NewSlogHandler(&pterm.DefaultLogger))

	con := console.New(os.Stdout, cfg, dialer(cfg, logger), logger)
	defer con.Close()

	pterm.Info.Println("rcon " + version + ": interactive Source RCON client")
	con.ShowHelp()

	if *connect {
		con.Execute(ctx, "/connect")
	}

	lines := readLines(os.Stdin)
	for {
		pterm.Print("\n>: ")
		select {
		case <-ctx.Done():
			pterm.Println()
			return
		case line, ok := <-lines:
			if !ok || !con.Execute(ctx, line) {
				return
			}
		}
	}
}

// dialer connects with the client settings from cfg.
func dialer(cfg config.Config, logger *slog.Logger) console.DialFunc {
	return func(ctx context.Context, address string, onPacket func(rcon.Packet)) (console.Session, error) {
		c, err := rcon.Dial(ctx, address, cfg.ClientConfig(logger, onPacket))
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// readLines delivers each line of f until it is exhausted.
func readLines(f *os.File) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()
	return lines
}
