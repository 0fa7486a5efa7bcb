// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Package client talks the caskdb wire protocol: one request per connection.
package client

import (
	"errors"
	"net"

	"github.com/dreamsxin/caskdb/server"
	"github.com/dreamsxin/caskdb/types"
)

// Client issues requests against a caskdb server.
type Client struct {
	addr string
}

// New returns a client for the server at addr.
func New(addr string) *Client {
	return &Client{addr: addr}
}

// Get returns the value for key. The second return is false when the key is
// absent.
func (c *Client) Get(key string) (string, bool, error) {
	resp, err := c.do(server.Request{Type: server.ReqGet, Key: key})
	if err != nil {
		return "", false, err
	}
	if resp.Value == nil {
		return "", false, nil
	}
	return *resp.Value, true, nil
}

// Set assigns value to key.
func (c *Client) Set(key, value string) error {
	_, err := c.do(server.Request{Type: server.ReqSet, Key: key, Value: value})
	return err
}

// Remove deletes key. Removing an absent key returns types.ErrKeyNotFound.
func (c *Client) Remove(key string) error {
	_, err := c.do(server.Request{Type: server.ReqRemove, Key: key})
	return err
}

func (c *Client) do(req server.Request) (server.Response, error) {
	conn, err := net.Dial("tcp", c.addr)
	if err != nil {
		return server.Response{}, err
	}
	defer conn.Close()

	if err := server.WriteRequest(conn, req); err != nil {
		return server.Response{}, err
	}
	resp, err := server.ReadResponse(conn)
	if err != nil {
		return server.Response{}, err
	}
	if !resp.OK {
		// Map the one error callers branch on back to its sentinel.
		if resp.Err == types.ErrKeyNotFound.Error() {
			return resp, types.ErrKeyNotFound
		}
		return resp, errors.New(resp.Err)
	}
	return resp, nil
}
