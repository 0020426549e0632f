// Package workerpool supervises a fixed-size pool of goroutines handling
// submitted tasks, under a caller-owned tomb.Tomb so the whole pool shuts
// down together on the first worker error or external kill.
package workerpool

import (
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

const taskChanSize = 100

// Task is a unit of work a pool worker runs. Returning an error kills the
// pool's tomb, stopping every other worker.
type Task func(t *tomb.Tomb) error

// Pool runs up to n tasks concurrently, queuing the rest.
type Pool struct {
	n     int
	tasks chan Task
}

// New constructs a pool with room for n concurrent workers.
func New(n int) *Pool {
	return &Pool{
		n:     n,
		tasks: make(chan Task, taskChanSize),
	}
}

// Start launches the pool's n workers under t. A worker returning an
// error kills t, which in turn stops every other worker on its next
// select.
func (p *Pool) Start(t *tomb.Tomb) {
	log.Info().Int("workers", p.n).Msg("starting worker pool")
	for i := 0; i < p.n; i++ {
		t.Go(func() error { return p.runWorker(t) })
	}
}

func (p *Pool) runWorker(t *tomb.Tomb) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case task, ok := <-p.tasks:
			if !ok {
				return nil
			}
			if err := task(t); err != nil {
				log.Error().Err(err).Msg("worker task failed")
				return err
			}
		}
	}
}

// Submit enqueues task, blocking if the pool's queue is full.
func (p *Pool) Submit(task Task) {
	p.tasks <- task
}

// Close stops accepting new tasks; in-flight and already-queued tasks
// still run to completion.
func (p *Pool) Close() {
	close(p.tasks)
}
