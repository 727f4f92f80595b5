// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hw

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"unsafe"
)

var (
	ErrNoDmaMemory = errors.New("hw: dma heap exhausted")
	ErrDmaTooLarge = errors.New("hw: dma allocation larger than page")
)

// PageTable translates virtual addresses inside the DMA heap to physical
// addresses.  Pages are physically contiguous.
type PageTable struct {
	Data uintptr

	Pages []uint64

	Log2BytesPerPage uint
}

// IdentityPageTable maps a buffer with physical address equal to virtual
// address.  Used when no IOMMU translation is needed (tests, vfio).
func IdentityPageTable(b []byte) PageTable {
	a := uintptr(unsafe.Pointer(&b[0]))
	return PageTable{
		Data:             a,
		Pages:            []uint64{uint64(a)},
		Log2BytesPerPage: 62,
	}
}

func (t *PageTable) Phys(a uintptr) uint64 {
	l := t.Log2BytesPerPage
	o := a - t.Data
	return t.Pages[o>>l] + uint64(o&(1<<l-1))
}

func (t *PageTable) samePage(o, n uint) bool {
	l := t.Log2BytesPerPage
	return o>>l == (o+n-1)>>l
}

type span struct{ offset, len uint }

// Heap is a first fit allocator over DMA memory.  Allocations never span
// page boundaries so each one is physically contiguous.
type Heap struct {
	mu    sync.Mutex
	data  []byte
	t     PageTable
	free  []span
	used  map[uint]uint
	inUse uint
}

func NewHeap(data []byte, t PageTable) *Heap {
	return &Heap{
		data: data,
		t:    t,
		free: []span{{0, uint(len(data))}},
		used: make(map[uint]uint),
	}
}

func (h *Heap) pageBytes() uint {
	if h.t.Log2BytesPerPage >= 62 {
		return uint(len(h.data))
	}
	return 1 << h.t.Log2BytesPerPage
}

// DmaAlloc returns n zeroed bytes aligned to align (a power of 2) and their
// physical address.
func (h *Heap) DmaAlloc(n, align uint) (b []byte, phys uint64, err error) {
	if align == 0 {
		align = 1
	}
	if n == 0 || n > h.pageBytes() {
		err = fmt.Errorf("%w: %d bytes", ErrDmaTooLarge, n)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	base := uint(uintptr(unsafe.Pointer(&h.data[0])))
	aligned := func(o uint) uint { return roundUp(base+o, align) - base }
	for i := range h.free {
		s := h.free[i]
		end := s.offset + s.len
		o := aligned(s.offset)
		for o+n <= end && !h.t.samePage(o, n) {
			// Move to start of next page.
			o = aligned(roundUp(o+1, h.pageBytes()))
		}
		if o+n > end {
			continue
		}
		h.carve(i, o, n)
		b = h.data[o : o+n : o+n]
		for j := range b {
			b[j] = 0
		}
		phys = h.t.Phys(uintptr(unsafe.Pointer(&b[0])))
		return
	}
	err = fmt.Errorf("%w: want %d bytes, %d in use", ErrNoDmaMemory, n, h.inUse)
	return
}

func (h *Heap) carve(i int, o, n uint) {
	s := h.free[i]
	var rest []span
	if o > s.offset {
		rest = append(rest, span{s.offset, o - s.offset})
	}
	if end := s.offset + s.len; o+n < end {
		rest = append(rest, span{o + n, end - (o + n)})
	}
	h.free = append(h.free[:i], append(rest, h.free[i+1:]...)...)
	h.used[o] = n
	h.inUse += n
}

// DmaFree returns memory obtained from DmaAlloc.
func (h *Heap) DmaFree(b []byte) {
	if len(b) == 0 {
		return
	}
	o := uint(uintptr(unsafe.Pointer(&b[0])) - uintptr(unsafe.Pointer(&h.data[0])))
	h.mu.Lock()
	defer h.mu.Unlock()
	n, ok := h.used[o]
	if !ok {
		panic(fmt.Errorf("hw: dma free of unknown offset 0x%x", o))
	}
	delete(h.used, o)
	h.inUse -= n
	i := sort.Search(len(h.free), func(i int) bool { return h.free[i].offset > o })
	h.free = append(h.free, span{})
	copy(h.free[i+1:], h.free[i:])
	h.free[i] = span{o, n}
	// Coalesce with neighbors.
	if i+1 < len(h.free) && h.free[i].offset+h.free[i].len == h.free[i+1].offset {
		h.free[i].len += h.free[i+1].len
		h.free = append(h.free[:i+1], h.free[i+2:]...)
	}
	if i > 0 && h.free[i-1].offset+h.free[i-1].len == h.free[i].offset {
		h.free[i-1].len += h.free[i].len
		h.free = append(h.free[:i], h.free[i+1:]...)
	}
}

// DmaPhys translates an address inside an allocation.
func (h *Heap) DmaPhys(b []byte) uint64 { return h.t.Phys(uintptr(unsafe.Pointer(&b[0]))) }

func (h *Heap) String() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return fmt.Sprintf("%d used, %d free chunks, %d total", h.inUse, len(h.free), len(h.data))
}

func roundUp(x, a uint) uint { return (x + a - 1) &^ (a - 1) }
