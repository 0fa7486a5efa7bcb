// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package pool

import (
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// SharedQueue distributes jobs to a fixed set of workers over a shared
// channel. A job that panics is recovered and logged; the worker that ran it
// keeps serving, so the pool never shrinks.
type SharedQueue struct {
	logger log.Logger
	jobs   chan func()
	wg     sync.WaitGroup
}

// NewSharedQueue starts workers goroutines ready to run jobs. A nil logger
// discards panic reports.
func NewSharedQueue(workers int, logger log.Logger) *SharedQueue {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	p := &SharedQueue{
		logger: logger,
		jobs:   make(chan func()),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	return p
}

// Spawn implements Pool. It blocks until a worker picks the job up. Spawn
// must not be called after Close.
func (p *SharedQueue) Spawn(job func()) {
	p.jobs <- job
}

// Close stops intake and waits for in-flight jobs to finish.
func (p *SharedQueue) Close() {
	close(p.jobs)
	p.wg.Wait()
}

func (p *SharedQueue) worker(id int) {
	defer p.wg.Done()
	for job := range p.jobs {
		p.run(id, job)
	}
}

func (p *SharedQueue) run(id int, job func()) {
	defer func() {
		if r := recover(); r != nil {
			level.Error(p.logger).Log("msg", "job panicked", "worker", id, "panic", r)
		}
	}()
	job()
}
