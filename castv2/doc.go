// Package castv2 implements the core of the Cast v2 control-protocol
// client: a long-lived, bidirectional, multiplexed Channel to a single
// remote media-rendering receiver over a mutually-framed TLS connection.
//
// The Channel performs the binary device-authentication handshake,
// frames and deframes messages, multiplexes concurrent request/response
// exchanges by request id, tracks per-destination virtual connections,
// runs the heartbeat ping/pong, and dispatches unsolicited events to a
// listener bundle. Discovery, persistent media libraries, and UI-facing
// progress reporting are out of scope.
package castv2
