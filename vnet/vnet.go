// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package vnet holds the contracts between an ethernet device driver and
// the host network stack it feeds.
package vnet

import (
	"errors"
	"fmt"
)

// Segment is one physically contiguous piece of a packet.
type Segment struct {
	Phys uint64
	Data []byte
}

var ErrTooManySegments = errors.New("vnet: packet has too many segments")

// Packet is an outbound packet buffer handle.  The driver owns it from
// Dequeue until it calls Free.
type Packet interface {
	// Segments returns the packet's physical segments, at most max of them.
	Segments(max int) ([]Segment, error)
	Len() int
	Offload() (TxOffload, error)
	// Data is the packet's first segment; headers are rewritten in place.
	Data() []byte
	Free()
}

type OutputQueue interface {
	// Dequeue returns nil when the queue is empty.
	Dequeue() Packet
	Stall()
	Wake()
}

type InputQueue interface {
	Enqueue(f *RxFrame)
	Flush()
}

type LinkStatusPublisher interface {
	SetLinkStatus(s LinkStatus)
}

type DmaAllocator interface {
	DmaAlloc(n, align uint) (b []byte, phys uint64, err error)
	DmaFree(b []byte)
}

type TsoKind uint8

const (
	TsoNone TsoKind = iota
	TsoV4
	TsoV6
)

var tsoKindNames = [...]string{
	TsoNone: "none",
	TsoV4:   "tso4",
	TsoV6:   "tso6",
}

func (k TsoKind) String() string { return stringer(tsoKindNames[:], int(k)) }

type CsumKind uint8

const (
	CsumNone CsumKind = iota
	CsumIPv4
	CsumTCPv4
	CsumUDPv4
	CsumTCPv6
	CsumUDPv6
)

var csumKindNames = [...]string{
	CsumNone:  "none",
	CsumIPv4:  "ip4",
	CsumTCPv4: "tcp4",
	CsumUDPv4: "udp4",
	CsumTCPv6: "tcp6",
	CsumUDPv6: "udp6",
}

func (k CsumKind) String() string { return stringer(csumKindNames[:], int(k)) }

func (k CsumKind) IsIPv6() bool { return k == CsumTCPv6 || k == CsumUDPv6 }

// TxOffload is what the stack asks the device to do for a packet.
type TxOffload struct {
	Tso  TsoKind
	Csum CsumKind
	// Segment size for TSO.
	MSS     uint
	VlanTag uint16
	HasVlan bool
}

func (o TxOffload) String() (s string) {
	s = fmt.Sprintf("tso %v csum %v", o.Tso, o.Csum)
	if o.Tso != TsoNone {
		s += fmt.Sprintf(" mss %d", o.MSS)
	}
	if o.HasVlan {
		s += fmt.Sprintf(" vlan %d", o.VlanTag)
	}
	return
}

// RxCsum is the hardware checksum verdict of a received frame.
type RxCsum struct {
	IPValid, L4Valid bool
	Value            uint16
}

// RxFrame is a received frame, possibly a chain of buffers.
type RxFrame struct {
	Segments []Segment
	Len      uint
	Csum     RxCsum
	VlanTag  uint16
	HasVlan  bool

	release func(f *RxFrame)
}

func NewRxFrame(release func(f *RxFrame)) *RxFrame { return &RxFrame{release: release} }

// Free returns the frame's buffers to the driver.
func (f *RxFrame) Free() {
	if f.release != nil {
		f.release(f)
		f.release = nil
	}
}

// CopyTo copies the frame's payload into b and returns the bytes copied.
func (f *RxFrame) CopyTo(b []byte) (n int) {
	for i := range f.Segments {
		if n >= len(b) || uint(n) >= f.Len {
			break
		}
		d := f.Segments[i].Data
		if l := int(f.Len) - n; len(d) > l {
			d = d[:l]
		}
		n += copy(b[n:], d)
	}
	return
}

type TxResult uint8

const (
	TxAccepted TxResult = iota
	TxStalled
	TxDown
)

var txResultNames = [...]string{
	TxAccepted: "accepted",
	TxStalled:  "stalled",
	TxDown:     "down",
}

func (r TxResult) String() string { return stringer(txResultNames[:], int(r)) }

// LinkStatus is published on every link transition.
type LinkStatus struct {
	Valid, Active bool
	Medium        Medium
	// Bits per second.
	Speed uint64
}

func (s LinkStatus) String() string {
	switch {
	case !s.Valid:
		return "invalid"
	case !s.Active:
		return "down"
	}
	return fmt.Sprintf("up %v", s.Medium)
}

func stringer(n []string, i int) string {
	if i < len(n) && n[i] != "" {
		return n[i]
	}
	return fmt.Sprintf("%d", i)
}
