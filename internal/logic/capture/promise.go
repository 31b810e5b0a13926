package capture

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/cjeanneret/multishot/internal/debug"
)

// ResultSink receives the outcome of one aggregate capture. Exactly
// one of Resolve or Reject is called, exactly once.
type ResultSink interface {
	Resolve(artifacts []Artifact)
	Reject(err error)
}

// Promise is a ResultSink that can be waited on. Settling it twice is
// refused and counted.
type Promise struct {
	once      sync.Once
	done      chan struct{}
	artifacts []Artifact
	err       error
	extra     atomic.Int32
}

func NewPromise() *Promise {
	return &Promise{done: make(chan struct{})}
}

func (p *Promise) Resolve(artifacts []Artifact) {
	p.settle(artifacts, nil)
}

func (p *Promise) Reject(err error) {
	if err == nil {
		err = errors.New("rejected without error")
	}
	p.settle(nil, err)
}

func (p *Promise) settle(artifacts []Artifact, err error) {
	settled := false
	p.once.Do(func() {
		p.artifacts, p.err = artifacts, err
		settled = true
		close(p.done)
	})
	if !settled {
		p.extra.Add(1)
		debug.Info("Promise already settled, dropping second outcome (err=%v)", err)
	}
}

// Done is closed once the promise is settled.
func (p *Promise) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the promise is settled or ctx is done.
func (p *Promise) Wait(ctx context.Context) ([]Artifact, error) {
	select {
	case <-p.done:
		return p.artifacts, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Settled reports whether the promise has an outcome.
func (p *Promise) Settled() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// ExtraSettlements counts refused second settlements.
func (p *Promise) ExtraSettlements() int {
	return int(p.extra.Load())
}
