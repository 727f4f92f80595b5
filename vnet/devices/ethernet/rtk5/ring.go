// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rtk5

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/platinasystems/rtk5/elib/hw"
	"github.com/platinasystems/rtk5/vnet"
)

// descriptor is the 16 byte ring entry shared with the hardware.  Fields
// are little endian; the driver only runs on little endian hosts.
type descriptor struct {
	opts1 uint32
	opts2 uint32
	addr  uint64
}

const (
	descriptor_bytes = 16
	// Ring base must be 256 byte aligned.
	descriptor_align = 256
)

// opts1 bits common to tx and rx.
const (
	DescOwn   = 1 << 31
	RingEnd   = 1 << 30
	FirstFrag = 1 << 29
	LastFrag  = 1 << 28
)

// Tx opts1.
const (
	GiantSendv4   = 1 << 26
	GiantSendv6   = 1 << 25
	GTTCPHO_SHIFT = 18
	GTTCPHO_MAX   = 0x70
	tx_len_mask   = 0xffff
)

// Tx opts2.
const (
	TxUDPCS      = 1 << 31
	TxTCPCS      = 1 << 30
	TxIPCS       = 1 << 29
	TxIPV6F      = 1 << 28
	MSSShift     = 18
	MSSMask      = 0x7ff
	TCPHO_SHIFT  = 18
	TCPHO_MAX    = 0x3ff
	TxVlanTag    = 1 << 17
	vlan_tag_len = 4
)

// Rx opts1.
const (
	RxRWT       = 1 << 22
	RxRES       = 1 << 21
	RxRUNT      = 1 << 20
	RxCRC       = 1 << 19
	RxUDPT      = 1 << 18
	RxTCPT      = 1 << 17
	RxIPF       = 1 << 16
	RxUDPF      = 1 << 15
	RxTCPF      = 1 << 14
	rx_len_mask = 0x1fff
)

// Rx opts2.
const (
	RxV6F     = 1 << 31
	RxV4F     = 1 << 30
	RxVlanTag = 1 << 16
)

func (e *descriptor) load_opts1() uint32   { return atomic.LoadUint32(&e.opts1) }
func (e *descriptor) store_opts1(v uint32) { atomic.StoreUint32(&e.opts1, v) }
func (e *descriptor) is_owned_by_hw() bool { return e.load_opts1()&DescOwn != 0 }
func (e *descriptor) give_to_hw()          { e.store_opts1(e.load_opts1() | DescOwn) }

func (e *descriptor) clear(ringEnd bool) {
	*e = descriptor{}
	if ringEnd {
		e.store_opts1(RingEnd)
	}
}

func (e *descriptor) String() (s string) {
	o1, o2 := e.load_opts1(), e.opts2
	if o1&DescOwn != 0 {
		s += "hw: "
	} else {
		s += "sw: "
	}
	s += fmt.Sprintf("buffer %x, opts1 %08x, opts2 %08x", e.addr, o1, o2)
	if o1&FirstFrag != 0 {
		s += ", first"
	}
	if o1&LastFrag != 0 {
		s += ", last"
	}
	if o1&RingEnd != 0 {
		s += ", ring-end"
	}
	return
}

func swap16(v uint16) uint16 { return v<<8 | v>>8 }

// ring_index does modular index arithmetic for a power of two ring.
type ring_index struct{ mask uint32 }

func (r ring_index) len() uint32                 { return r.mask + 1 }
func (r ring_index) next(i uint32) uint32        { return (i + 1) & r.mask }
func (r ring_index) add(i, n uint32) uint32      { return (i + n) & r.mask }
func (r ring_index) distance(a, b uint32) uint32 { return (b - a) & r.mask }
func (r ring_index) is_last(i uint32) bool       { return i == r.mask }

func is_pow2(n uint) bool { return n != 0 && n&(n-1) == 0 }

// desc_ring is the DMA descriptor array shared by tx and rx rings.
type desc_ring struct {
	ring_index
	desc []descriptor
	mem  []byte
	phys uint64
}

func (r *desc_ring) allocate(a vnet.DmaAllocator, capacity uint) (err error) {
	if !is_pow2(capacity) {
		return fmt.Errorf("ring size %d: not a power of two", capacity)
	}
	if r.mem, r.phys, err = a.DmaAlloc(capacity*descriptor_bytes, descriptor_align); err != nil {
		return
	}
	for i := range r.mem {
		r.mem[i] = 0
	}
	r.desc = unsafe.Slice((*descriptor)(unsafe.Pointer(&r.mem[0])), capacity)
	r.mask = uint32(capacity - 1)
	return
}

func (r *desc_ring) release(a vnet.DmaAllocator) {
	if r.mem != nil {
		a.DmaFree(r.mem)
	}
	r.mem, r.desc = nil, nil
}

type tx_ring struct {
	desc_ring
	pkts []vnet.Packet

	// Next slot to fill and oldest outstanding slot.
	next_index, dirty_index uint32
	free                    atomic.Int32

	// Free running doorbell and completion pointers.
	tail_ptr, close_ptr uint32

	// Descriptors reclaimed; watched by the hang check.
	done_count atomic.Uint64
	done_last  uint64
	warn                  uint
}

func (r *tx_ring) allocate(a vnet.DmaAllocator, capacity uint) (err error) {
	if err = r.desc_ring.allocate(a, capacity); err != nil {
		return
	}
	r.pkts = make([]vnet.Packet, capacity)
	r.reset()
	return
}

// reset clears descriptors and indices.  Packets must already be drained.
func (r *tx_ring) reset() {
	for i := range r.desc {
		r.desc[i].clear(r.is_last(uint32(i)))
	}
	r.next_index, r.dirty_index = 0, 0
	r.tail_ptr, r.close_ptr = 0, 0
	r.free.Store(int32(r.len()))
}

func (r *tx_ring) outstanding() uint32 { return r.len() - uint32(r.free.Load()) }

// encode_tx fills slot i.  Address and opts2 land before opts1; the caller
// flips the first descriptor's owner bit once the whole chain is written.
func (r *tx_ring) encode_tx(i uint32, phys uint64, n uint32, opts1, opts2 uint32) {
	e := &r.desc[i]
	e.addr = phys
	e.opts2 = opts2
	opts1 |= n & tx_len_mask
	if r.is_last(i) {
		opts1 |= RingEnd
	}
	hw.MemoryBarrier()
	e.store_opts1(opts1)
}

// drain frees every packet still held by the ring.
func (r *tx_ring) drain() (n int) {
	for i, p := range r.pkts {
		if p != nil {
			p.Free()
			r.pkts[i] = nil
			n++
		}
	}
	return
}

type rx_ring struct {
	desc_ring
	bufs []*rx_buffer

	next_index uint32

	// Buffers of a frame spanning several descriptors.
	chain   []*rx_buffer
	discard bool
}

func (r *rx_ring) allocate(a vnet.DmaAllocator, capacity uint) (err error) {
	if err = r.desc_ring.allocate(a, capacity); err != nil {
		return
	}
	r.bufs = make([]*rx_buffer, capacity)
	return
}

func (r *rx_ring) reset(size uint) {
	r.next_index = 0
	r.discard = false
	for i := range r.desc {
		r.arm(uint32(i), size)
	}
}

// arm hands slot i back to hardware with its current buffer.
func (r *rx_ring) arm(i uint32, size uint) {
	e := &r.desc[i]
	b := r.bufs[i]
	if b == nil {
		e.clear(r.is_last(i))
		return
	}
	e.addr = b.phys
	e.opts2 = 0
	v := uint32(DescOwn) | uint32(size)&rx_len_mask
	if r.is_last(i) {
		v |= RingEnd
	}
	hw.MemoryBarrier()
	e.store_opts1(v)
}

type rx_status struct{ opts1, opts2 uint32 }

func (s rx_status) first() bool    { return s.opts1&FirstFrag != 0 }
func (s rx_status) last() bool     { return s.opts1&LastFrag != 0 }
func (s rx_status) is_error() bool { return s.opts1&RxRES != 0 }
func (s rx_status) crc() bool      { return s.opts1&RxCRC != 0 }
func (s rx_status) length() bool   { return s.opts1&(RxRWT|RxRUNT) != 0 }
func (s rx_status) has_vlan() bool { return s.opts2&RxVlanTag != 0 }
func (s rx_status) vlan() uint16   { return swap16(uint16(s.opts2)) }

func (s rx_status) csum() (c vnet.RxCsum) {
	o1, o2 := s.opts1, s.opts2
	c.IPValid = o2&RxV4F != 0 && o1&RxIPF == 0
	c.L4Valid = (o1&RxTCPT != 0 && o1&RxTCPF == 0) || (o1&RxUDPT != 0 && o1&RxUDPF == 0)
	if c.L4Valid {
		c.Value = 0xffff
	}
	return
}

// decode_rx reads slot i without side effects.
func (r *rx_ring) decode_rx(i uint32) (owned bool, n uint, s rx_status) {
	e := &r.desc[i]
	s.opts1 = e.load_opts1()
	if s.opts1&DescOwn != 0 {
		owned = true
		return
	}
	s.opts2 = e.opts2
	n = uint(s.opts1 & rx_len_mask)
	return
}
