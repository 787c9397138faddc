// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

/*
Package rcon provides mechanisms for interacting with the Source RCON protocol as described by
Valve Software at https://developer.valvesoftware.com/wiki/Source_RCON_Protocol.

Outbound packets are composed by a [Dispatcher], which writes each one to the transport in a single
call. Inbound bytes are turned back into packets by an [Assembler], which copes with reads that
split or join packets at arbitrary points. A [Client] ties both to a [net.Conn].
*/
package rcon
