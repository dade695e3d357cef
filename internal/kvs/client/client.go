// Package client implements the KVS client: a single persistent connection
// over which ping/get/set/remove block on one response each (spec §4.3).
package client

import (
	"fmt"
	"net"

	"github.com/Tomatosoup97/distributed-rust/internal/kvs/wire"
)

// Client holds one persistent connection to a KVS server.
type Client struct {
	conn net.Conn
	dec  *wire.Decoder
	enc  *wire.Encoder
}

// Dial connects to addr and returns a ready-to-use Client.
func Dial(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	return &Client{
		conn: conn,
		dec:  wire.NewDecoder(conn),
		enc:  wire.NewEncoder(conn),
	}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// ErrUnexpectedResponse is returned when the server replies with a response
// variant the issuing call did not expect. Such a reply indicates a
// protocol-level bug and is treated as fatal by callers.
type ErrUnexpectedResponse struct {
	Want string
	Got  wire.ResponseKind
}

func (e *ErrUnexpectedResponse) Error() string {
	return fmt.Sprintf("unexpected response: want %s, got %s", e.Want, e.Got)
}

// Ping sends a Ping request and waits for Pong.
func (c *Client) Ping() error {
	if err := c.enc.EncodeRequest(wire.PingRequest()); err != nil {
		return err
	}

	resp, err := c.dec.DecodeResponse()
	if err != nil {
		return err
	}

	if resp.Kind != wire.KindPong {
		return &ErrUnexpectedResponse{Want: string(wire.KindPong), Got: resp.Kind}
	}

	return nil
}

// Get fetches the value for key. ok is false if the key was not found.
func (c *Client) Get(key string) (value string, ok bool, err error) {
	if err := c.enc.EncodeRequest(wire.GetRequest(key)); err != nil {
		return "", false, err
	}

	resp, err := c.dec.DecodeResponse()
	if err != nil {
		return "", false, err
	}

	switch resp.Kind {
	case wire.KindValue:
		if resp.Value == nil {
			return "", false, nil
		}

		return *resp.Value, true, nil

	case wire.KindError:
		return "", false, fmt.Errorf("%s", resp.Msg)

	default:
		return "", false, &ErrUnexpectedResponse{Want: string(wire.KindValue), Got: resp.Kind}
	}
}

// Set stores value under key.
func (c *Client) Set(key, value string) error {
	if err := c.enc.EncodeRequest(wire.SetRequest(key, value)); err != nil {
		return err
	}

	return c.expectSuccess()
}

// Remove deletes key. Returns an error if key was not found.
func (c *Client) Remove(key string) error {
	if err := c.enc.EncodeRequest(wire.RemoveRequest(key)); err != nil {
		return err
	}

	return c.expectSuccess()
}

func (c *Client) expectSuccess() error {
	resp, err := c.dec.DecodeResponse()
	if err != nil {
		return err
	}

	switch resp.Kind {
	case wire.KindSuccess:
		return nil

	case wire.KindError:
		return fmt.Errorf("%s", resp.Msg)

	default:
		return &ErrUnexpectedResponse{Want: string(wire.KindSuccess), Got: resp.Kind}
	}
}
