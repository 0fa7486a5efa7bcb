// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Command caskd runs the caskdb server: a TCP listener for the key-value
// protocol and an optional HTTP listener for metrics and health.
package main

import (
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dreamsxin/caskdb"
	"github.com/dreamsxin/caskdb/pool"
	"github.com/dreamsxin/caskdb/server"
)

func main() {
	var (
		addr      = flag.String("addr", "127.0.0.1:4000", "address to serve the key-value protocol on")
		dir       = flag.String("dir", ".", "directory holding the segment files")
		httpAddr  = flag.String("http-addr", "", "address for /metrics and /healthz; empty disables the HTTP listener")
		poolName  = flag.String("pool", "shared", "worker pool: shared or naive")
		workers   = flag.Int("workers", 8, "worker count for the shared pool")
		threshold = flag.Uint64("compact-threshold", caskdb.DefaultCompactThreshold, "reclaimable bytes that trigger compaction")
	)
	flag.Parse()

	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)

	reg := prometheus.NewRegistry()

	store, err := caskdb.Open(*dir,
		caskdb.WithLogger(logger),
		caskdb.WithMetricsRegisterer(reg),
		caskdb.WithCompactThreshold(*threshold),
	)
	if err != nil {
		fatal(logger, "opening store", err)
	}

	var p pool.Pool
	var sq *pool.SharedQueue
	switch *poolName {
	case "shared":
		sq = pool.NewSharedQueue(*workers, logger)
		p = sq
	case "naive":
		p = pool.NewNaive(*workers)
	default:
		level.Error(logger).Log("msg", "unknown pool", "pool", *poolName)
		os.Exit(2)
	}

	if *httpAddr != "" {
		r := mux.NewRouter()
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ok\n"))
		})
		go func() {
			level.Info(logger).Log("msg", "http listener starting", "addr", *httpAddr)
			if err := http.ListenAndServe(*httpAddr, r); err != nil {
				level.Error(logger).Log("msg", "http listener stopped", "err", err)
			}
		}()
	}

	srv := server.New(store, p, logger)

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		fatal(logger, "listening", err)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		level.Info(logger).Log("msg", "shutting down", "signal", sig)
		srv.Stop()
	}()

	if err := srv.Serve(ln); err != nil {
		fatal(logger, "serving", err)
	}

	if sq != nil {
		sq.Close()
	}
	if err := store.Close(); err != nil {
		fatal(logger, "closing store", err)
	}
}

func fatal(logger log.Logger, msg string, err error) {
	level.Error(logger).Log("msg", msg, "err", err)
	os.Exit(1)
}
