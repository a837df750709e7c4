// Package sps implements the client side of the SPS (Symbolic Protocol
// States) wire protocol: a TCP connection over which the engine forwards
// packets the simulated software emits and receives back bencoded
// symbolic-input descriptors.
package sps

import (
	"bufio"
	"context"
	"fmt"
	"net"

	"github.com/gitrdm/symconcolic/pkg/concolic"
	"github.com/gitrdm/symconcolic/pkg/execctx"
	"github.com/gitrdm/symconcolic/pkg/protocol/bencode"
	"github.com/gitrdm/symconcolic/pkg/protocol/descriptor"
	"github.com/gitrdm/symconcolic/pkg/trace"
)

const (
	tagData = 0x0
	tagRst  = 0x1
)

// Client is a connected SPS session. It is not safe for concurrent use;
// the engine is single-threaded and only ever has one message in flight.
type Client struct {
	conn   net.Conn
	r      *bufio.Reader
	ctx    *execctx.Context
	tr     *trace.Trace
	lastIn *descriptor.Input
}

// Dial connects to an SPS server at addr ("host:port") and returns a
// ready-to-use Client bound to ctx and tr for decoding subsequent
// descriptor messages.
func Dial(ctx context.Context, addr string, ectx *execctx.Context, tr *trace.Trace) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("sps: dial %s: %w", addr, err)
	}
	return &Client{conn: conn, r: bufio.NewReader(conn), ctx: ectx, tr: tr}, nil
}

// Close shuts down the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Reset sends an SPS_RST frame, clearing the server's state machine and
// the client's cached last message.
func (c *Client) Reset() error {
	if err := bencode.Encode(c.conn, []bencode.Value{int64(tagRst), int64(0)}); err != nil {
		return fmt.Errorf("sps: reset: %w", err)
	}
	c.lastIn = nil
	return nil
}

// SendMessage forwards buf (one packet produced by the simulated
// software) to the server as an SPS_DATA frame and blocks until the
// server's response descriptor has been fully decoded. It is an error to
// call SendMessage while the previous message has not been fully
// consumed via NextByte; messages are drained in lockstep with the
// simulator.
func (c *Client) SendMessage(buf []byte) error {
	if !c.Empty() {
		return fmt.Errorf("sps: previous message has not been fully received")
	}

	if err := bencode.Encode(c.conn, []bencode.Value{int64(tagData), buf}); err != nil {
		return fmt.Errorf("sps: send message: %w", err)
	}

	in, err := descriptor.Decode(c.r, c.ctx, c.tr)
	if err != nil {
		return fmt.Errorf("sps: decode response: %w", err)
	}
	c.lastIn = in
	return nil
}

// NextByte returns the next most-significant byte of the last decoded
// message.
func (c *Client) NextByte() (concolic.Value, bool) {
	if c.lastIn == nil {
		return concolic.Value{}, false
	}
	return c.lastIn.NextByte()
}

// RemainingBytes reports how many bytes NextByte can still return from
// the last decoded message.
func (c *Client) RemainingBytes() int {
	if c.lastIn == nil {
		return 0
	}
	return c.lastIn.RemainingBytes()
}

// Empty reports whether the last decoded message has been fully consumed.
func (c *Client) Empty() bool {
	return c.RemainingBytes() == 0
}
