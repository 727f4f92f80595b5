// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Memory mapped register read/write
package hw

import (
	"fmt"
	"sync/atomic"
	"unsafe"
)

// Regs is a little endian register window over a mapped PCI BAR.
// 32 bit accesses are single atomic loads and stores; narrower accesses
// touch only the addressed bytes so that neighboring registers are never
// read-modify-written.
type Regs struct {
	mem []byte
}

func NewRegs(mem []byte) *Regs { return &Regs{mem: mem} }

func (r *Regs) Len() uint { return uint(len(r.mem)) }

func (r *Regs) check(o, n uint) {
	if o+n > uint(len(r.mem)) || o&(n-1) != 0 {
		panic(fmt.Errorf("hw: register offset 0x%x size %d out of range or unaligned", o, n))
	}
}

func (r *Regs) Read8(o uint) uint8 {
	r.check(o, 1)
	return *(*uint8)(unsafe.Pointer(&r.mem[o]))
}

func (r *Regs) Read16(o uint) uint16 {
	r.check(o, 2)
	return *(*uint16)(unsafe.Pointer(&r.mem[o]))
}

func (r *Regs) Read32(o uint) uint32 {
	r.check(o, 4)
	return atomic.LoadUint32((*uint32)(unsafe.Pointer(&r.mem[o])))
}

func (r *Regs) Write8(o uint, v uint8) {
	r.check(o, 1)
	*(*uint8)(unsafe.Pointer(&r.mem[o])) = v
	MemoryBarrier()
}

func (r *Regs) Write16(o uint, v uint16) {
	r.check(o, 2)
	*(*uint16)(unsafe.Pointer(&r.mem[o])) = v
	MemoryBarrier()
}

func (r *Regs) Write32(o uint, v uint32) {
	r.check(o, 4)
	atomic.StoreUint32((*uint32)(unsafe.Pointer(&r.mem[o])), v)
}

var barrier uint32

// MemoryBarrier orders all preceding memory writes (descriptor contents)
// before any following write (ownership bits, doorbells).
func MemoryBarrier() { atomic.AddUint32(&barrier, 1) }
