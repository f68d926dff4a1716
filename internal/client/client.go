// Package client provides the tau network client: the engine API executed
// over the wire protocol.
//
// Every operation opens its own connection, sends one request frame and,
// for reading operations, waits for one response frame. Connections are
// never retained across calls, matching the one-request-per-connection
// server.
package client

import (
	"fmt"
	"net"

	"github.com/keleshev/tau/config"
	"github.com/keleshev/tau/internal/tau"
	"github.com/keleshev/tau/internal/wire"
)

// Client talks to a tau server.
type Client struct {
	addr string
}

// New creates a client for the given address; an empty address selects the
// default.
func New(addr string) *Client {
	if addr == "" {
		addr = config.DefaultAddress
	}
	return &Client{addr: addr}
}

// do performs one request. When wantReply is false the response frame is
// not read; set and clear have no response body.
func (c *Client) do(msg wire.Message, wantReply bool) (any, error) {
	conn, err := net.Dial("tcp", c.addr)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", c.addr, err)
	}
	defer conn.Close()

	if err := wire.NewWriter(conn).WriteMessage(msg); err != nil {
		return nil, err
	}
	if !wantReply {
		return nil, nil
	}
	return wire.NewReader(conn).ReadValue()
}

// Set writes every entry of values as a sample stamped by the server.
func (c *Client) Set(values map[string]any) error {
	_, err := c.do(wire.Message{Command: "set", Argument: values}, false)
	return err
}

// Get runs a query on the server and returns its shaped result.
func (c *Client) Get(q tau.Query) (any, error) {
	return c.do(wire.Message{Command: "get", Argument: wire.EncodeQuery(q)}, true)
}

// Signals returns the signal names known to the server.
func (c *Client) Signals() ([]string, error) {
	v, err := c.do(wire.Message{Command: "signals", Argument: nil}, true)
	if err != nil {
		return nil, err
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("signals response is not an array")
	}
	names := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("signal name %v is not a string", item)
		}
		names = append(names, s)
	}
	return names, nil
}

// Clear deletes all signals and samples on the server.
func (c *Client) Clear() error {
	_, err := c.do(wire.Message{Command: "clear", Argument: nil}, false)
	return err
}

var _ tau.Engine = (*Client)(nil)
