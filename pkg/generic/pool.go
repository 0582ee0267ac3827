package generic

import (
	"sync"
	"sync/atomic"
)

// Pool is a typed sync.Pool that counts how many values it had to generate.
type Pool[T any] struct {
	pool    sync.Pool
	reset   func(T)
	created atomic.Int64
}

func NewPool[T any](generate func() T) *Pool[T] {
	return NewResetPool(generate, nil)
}

// NewResetPool returns a pool that calls reset on every value handed back to Put.
func NewResetPool[T any](generate func() T, reset func(T)) *Pool[T] {
	p := &Pool[T]{reset: reset}
	p.pool.New = func() any {
		p.created.Add(1)
		return generate()
	}
	return p
}

func NewHotPool[T any](generate func() T, hotSize int) *Pool[T] {
	p := NewPool(generate)
	for i := 0; i < hotSize; i++ {
		p.pool.Put(p.pool.New())
	}
	return p
}

func (p *Pool[T]) Get() T {
	return p.pool.Get().(T)
}

func (p *Pool[T]) Put(value T) {
	if p.reset != nil {
		p.reset(value)
	}
	p.pool.Put(value)
}

// Created returns how many values the pool has generated so far.
func (p *Pool[T]) Created() int64 {
	return p.created.Load()
}
