// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package unix

import (
	"sync/atomic"

	"github.com/platinasystems/rtk5/vnet"
)

// Largest physically contiguous piece handed to the device.
const segment_bytes = 4096

// packet is a frame read from the tap held in DMA memory.
type packet struct {
	buf     []byte
	phys    uint64
	off     vnet.TxOffload
	off_err error
	dma     vnet.DmaAllocator
	freed   atomic.Bool
}

func new_packet(a vnet.DmaAllocator, frame []byte) (p *packet, err error) {
	p = &packet{dma: a}
	if p.buf, p.phys, err = a.DmaAlloc(uint(len(frame)), 8); err != nil {
		return nil, err
	}
	copy(p.buf, frame)
	return
}

func n_segments(n int) int { return (n + segment_bytes - 1) / segment_bytes }

func (p *packet) Segments(max int) (s []vnet.Segment, err error) {
	if n_segments(len(p.buf)) > max {
		return nil, vnet.ErrTooManySegments
	}
	for o := 0; o < len(p.buf); o += segment_bytes {
		end := o + segment_bytes
		if end > len(p.buf) {
			end = len(p.buf)
		}
		s = append(s, vnet.Segment{Phys: p.phys + uint64(o), Data: p.buf[o:end]})
	}
	return
}

func (p *packet) Len() int                         { return len(p.buf) }
func (p *packet) Offload() (vnet.TxOffload, error) { return p.off, p.off_err }

func (p *packet) Data() []byte {
	if len(p.buf) > segment_bytes {
		return p.buf[:segment_bytes]
	}
	return p.buf
}

func (p *packet) Free() {
	if p.freed.CompareAndSwap(false, true) {
		p.dma.DmaFree(p.buf)
	}
}
