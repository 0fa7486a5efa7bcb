// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package server_test

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dreamsxin/caskdb"
	"github.com/dreamsxin/caskdb/client"
	"github.com/dreamsxin/caskdb/pool"
	"github.com/dreamsxin/caskdb/server"
	"github.com/dreamsxin/caskdb/types"
)

func startServer(t *testing.T) (*client.Client, func()) {
	t.Helper()

	store, err := caskdb.Open(t.TempDir())
	require.NoError(t, err)

	p := pool.NewSharedQueue(4, nil)
	srv := server.New(store, p, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()

	stop := func() {
		srv.Stop()
		require.NoError(t, <-serveErr)
		p.Close()
		require.NoError(t, store.Close())
	}
	return client.New(ln.Addr().String()), stop
}

func TestRoundTrip(t *testing.T) {
	c, stop := startServer(t)
	defer stop()

	require.NoError(t, c.Set("hello", "world"))

	v, ok, err := c.Get("hello")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "world", v)

	_, ok, err = c.Get("missing")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Remove("hello"))

	_, ok, err = c.Get("hello")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRemoveAbsentKey(t *testing.T) {
	c, stop := startServer(t)
	defer stop()

	err := c.Remove("absent")
	require.ErrorIs(t, err, types.ErrKeyNotFound)
}

func TestEmptyKeyAndValue(t *testing.T) {
	c, stop := startServer(t)
	defer stop()

	require.NoError(t, c.Set("", ""))

	v, ok, err := c.Get("")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "", v)
}

func TestManyClients(t *testing.T) {
	c, stop := startServer(t)
	defer stop()

	done := make(chan error, 8)
	for g := 0; g < 8; g++ {
		go func(g int) {
			for i := 0; i < 20; i++ {
				if err := c.Set("shared", "x"); err != nil {
					done <- err
					return
				}
				if _, _, err := c.Get("shared"); err != nil {
					done <- err
					return
				}
			}
			done <- nil
		}(g)
	}
	for g := 0; g < 8; g++ {
		require.NoError(t, <-done)
	}
}
