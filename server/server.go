// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Package server exposes a caskdb store over TCP. Each accepted connection
// carries one request and is handled on a worker pool.
package server

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/dreamsxin/caskdb"
	"github.com/dreamsxin/caskdb/pool"
)

// Server accepts connections and dispatches them to a worker pool.
type Server struct {
	store  *caskdb.Store
	pool   pool.Pool
	logger log.Logger

	quit chan struct{}
	wg   sync.WaitGroup
}

// New builds a server around store and pool. A nil logger discards logs.
func New(store *caskdb.Store, p pool.Pool, logger log.Logger) *Server {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Server{
		store:  store,
		pool:   p,
		logger: logger,
		quit:   make(chan struct{}),
	}
}

// Serve accepts connections on ln until Stop is called. It returns nil on a
// clean stop and the accept error otherwise.
func (s *Server) Serve(ln net.Listener) error {
	level.Info(s.logger).Log("msg", "serving requests", "addr", ln.Addr())

	go func() {
		<-s.quit
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return nil
			default:
				return err
			}
		}
		s.wg.Add(1)
		s.pool.Spawn(func() {
			defer s.wg.Done()
			s.handle(conn)
		})
	}
}

// ListenAndServe listens on addr and serves.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Stop closes the listener and waits for in-flight requests to complete.
func (s *Server) Stop() {
	close(s.quit)
	s.wg.Wait()
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	start := time.Now()

	req, err := ReadRequest(conn)
	if err != nil {
		if !errors.Is(err, io.EOF) {
			level.Error(s.logger).Log("msg", "reading request", "err", err)
		}
		return
	}

	resp := s.dispatch(req)
	if err := WriteResponse(conn, resp); err != nil {
		level.Error(s.logger).Log("msg", "writing response", "err", err)
		return
	}
	level.Debug(s.logger).Log("msg", "request served",
		"type", req.Type, "key", req.Key, "ok", resp.OK, "elapsed", time.Since(start))
}

func (s *Server) dispatch(req Request) Response {
	switch req.Type {
	case ReqGet:
		v, ok, err := s.store.Get(req.Key)
		if err != nil {
			return Response{Err: err.Error()}
		}
		if !ok {
			return Response{OK: true}
		}
		return Response{OK: true, Value: &v}
	case ReqSet:
		if err := s.store.Set(req.Key, req.Value); err != nil {
			return Response{Err: err.Error()}
		}
		return Response{OK: true}
	case ReqRemove:
		if err := s.store.Remove(req.Key); err != nil {
			return Response{Err: err.Error()}
		}
		return Response{OK: true}
	default:
		// ReadRequest already rejected anything else.
		return Response{Err: errUnknownRequestType.Error()}
	}
}
