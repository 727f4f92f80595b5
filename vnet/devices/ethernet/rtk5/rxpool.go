// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rtk5

import (
	"sync"

	metrics "github.com/rcrowley/go-metrics"

	"github.com/platinasystems/rtk5/vnet"
)

// Every rx buffer is big enough for a jumbo frame so an MTU change never
// needs a new pool.
const (
	rx_buffer_bytes = 9 * 1024
	rx_buffer_align = 64
)

type rx_buffer struct {
	data []byte
	phys uint64
	// Bytes of the current frame held in this buffer.
	n uint
}

// rx_pool hands out receive buffers.  Buffers travel from the pool to the
// ring, from the ring to the stack inside an RxFrame, and back to the pool
// when the frame is freed.  A reserve of spares covers allocation failures.
type rx_pool struct {
	mu  sync.Mutex
	dma vnet.DmaAllocator

	// Upper bound on buffers ever allocated.
	limit, n_alloc int

	free   []*rx_buffer
	spares []*rx_buffer

	spare_target int
	closed       bool

	// Test hook: when it returns true get fails.
	fail func() bool

	failures metrics.Counter
}

func new_rx_pool(a vnet.DmaAllocator, limit, spares int, failures metrics.Counter) *rx_pool {
	return &rx_pool{
		dma:          a,
		limit:        limit,
		spare_target: spares,
		failures:     failures,
	}
}

func (p *rx_pool) alloc() (b *rx_buffer) {
	if p.n_alloc >= p.limit {
		return
	}
	data, phys, err := p.dma.DmaAlloc(rx_buffer_bytes, rx_buffer_align)
	if err != nil {
		return
	}
	p.n_alloc++
	return &rx_buffer{data: data, phys: phys}
}

func (p *rx_pool) pop() (b *rx_buffer) {
	if n := len(p.free); n > 0 {
		b, p.free = p.free[n-1], p.free[:n-1]
		return
	}
	return p.alloc()
}

// get returns a fresh buffer or nil.
func (p *rx_pool) get() (b *rx_buffer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || (p.fail != nil && p.fail()) {
		p.failures.Inc(1)
		return
	}
	if b = p.pop(); b == nil {
		p.failures.Inc(1)
	}
	return
}

func (p *rx_pool) put(b *rx_buffer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b.n = 0
	if p.closed {
		p.dma.DmaFree(b.data)
		return
	}
	p.free = append(p.free, b)
}

func (p *rx_pool) take_spare() (b *rx_buffer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := len(p.spares); n > 0 {
		b, p.spares = p.spares[n-1], p.spares[:n-1]
	}
	return
}

func (p *rx_pool) spare_count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.spares)
}

// refill_spares tops up the reserve and returns the number added.
func (p *rx_pool) refill_spares() (n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for !p.closed && len(p.spares) < p.spare_target {
		b := p.pop()
		if b == nil {
			break
		}
		p.spares = append(p.spares, b)
		n++
	}
	return
}

// close frees idle buffers.  Buffers still held by frames are freed as
// they come back.
func (p *rx_pool) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	for _, l := range [][]*rx_buffer{p.free, p.spares} {
		for _, b := range l {
			p.dma.DmaFree(b.data)
		}
	}
	p.free, p.spares = nil, nil
}
