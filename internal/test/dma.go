// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package test

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"
)

var ErrNoMemory = errors.New("test: dma allocation refused")

// Dma allocates from the Go heap; physical address is the virtual address.
type Dma struct {
	mu   sync.Mutex
	live map[uintptr][]byte

	// Refuse returns true to fail an allocation of n bytes.
	Refuse func(n uint) bool

	allocs, frees int
}

func NewDma() *Dma { return &Dma{live: make(map[uintptr][]byte)} }

func addr(b []byte) uintptr { return uintptr(unsafe.Pointer(&b[0])) }

func (a *Dma) DmaAlloc(n, align uint) (b []byte, phys uint64, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Refuse != nil && a.Refuse(n) {
		err = ErrNoMemory
		return
	}
	if n == 0 {
		err = fmt.Errorf("test: zero length dma allocation")
		return
	}
	if align == 0 {
		align = 1
	}
	buf := make([]byte, n+align)
	o := (align - uint(addr(buf))%align) % align
	b = buf[o : o+n : o+n]
	p := addr(b)
	a.live[p] = b
	a.allocs++
	phys = uint64(p)
	return
}

func (a *Dma) DmaFree(b []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p := addr(b)
	if _, ok := a.live[p]; !ok {
		panic(fmt.Errorf("test: dma free of unknown buffer 0x%x", p))
	}
	delete(a.live, p)
	a.frees++
}

// Live is the number of outstanding allocations.
func (a *Dma) Live() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.live)
}

func (a *Dma) Counts() (allocs, frees int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.allocs, a.frees
}

// Bytes returns the n bytes at phys.  phys must lie in a live allocation.
func (a *Dma) Bytes(phys uint64, n uint) []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	for p, b := range a.live {
		if o := phys - uint64(p); uint64(p) <= phys && o+uint64(n) <= uint64(len(b)) {
			return b[o : o+uint64(n)]
		}
	}
	panic(fmt.Errorf("test: 0x%x+%d is not dma memory", phys, n))
}
