// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package test

import (
	"net"
	"sync"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/platinasystems/rtk5/vnet"
)

var (
	SrcMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	DstMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
	SrcIP4 = net.IPv4(10, 0, 0, 1)
	DstIP4 = net.IPv4(10, 0, 0, 2)
	SrcIP6 = net.ParseIP("fd00::1")
	DstIP6 = net.ParseIP("fd00::2")
)

func payload(n int) gopacket.Payload {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}

func serialize(l ...gopacket.SerializableLayer) []byte {
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, l...); err != nil {
		panic(err)
	}
	return append([]byte(nil), buf.Bytes()...)
}

func ethernet(t layers.EthernetType) *layers.Ethernet {
	return &layers.Ethernet{SrcMAC: SrcMAC, DstMAC: DstMAC, EthernetType: t}
}

func tcp() *layers.TCP {
	return &layers.TCP{SrcPort: 40000, DstPort: 5201, Seq: 1, Ack: 1, ACK: true, PSH: true, Window: 512}
}

func ip4(p layers.IPProtocol) *layers.IPv4 {
	return &layers.IPv4{Version: 4, IHL: 5, TTL: 64, Protocol: p, SrcIP: SrcIP4, DstIP: DstIP4}
}

func ip6(p layers.IPProtocol) *layers.IPv6 {
	return &layers.IPv6{Version: 6, HopLimit: 64, NextHeader: p, SrcIP: SrcIP6, DstIP: DstIP6}
}

// TCP4Frame is an Ethernet/IPv4/TCP frame with n bytes of payload.
func TCP4Frame(n int) []byte {
	ip, t := ip4(layers.IPProtocolTCP), tcp()
	t.SetNetworkLayerForChecksum(ip)
	return serialize(ethernet(layers.EthernetTypeIPv4), ip, t, payload(n))
}

// TaggedTCP4Frame is TCP4Frame behind an 802.1Q tag.
func TaggedTCP4Frame(vlan uint16, n int) []byte {
	ip, t := ip4(layers.IPProtocolTCP), tcp()
	t.SetNetworkLayerForChecksum(ip)
	q := &layers.Dot1Q{VLANIdentifier: vlan, Type: layers.EthernetTypeIPv4}
	return serialize(ethernet(layers.EthernetTypeDot1Q), q, ip, t, payload(n))
}

func TCP6Frame(n int) []byte {
	ip, t := ip6(layers.IPProtocolTCP), tcp()
	t.SetNetworkLayerForChecksum(ip)
	return serialize(ethernet(layers.EthernetTypeIPv6), ip, t, payload(n))
}

func UDP4Frame(n int) []byte {
	ip := ip4(layers.IPProtocolUDP)
	u := &layers.UDP{SrcPort: 40000, DstPort: 4789}
	u.SetNetworkLayerForChecksum(ip)
	return serialize(ethernet(layers.EthernetTypeIPv4), ip, u, payload(n))
}

func UDP6Frame(n int) []byte {
	ip := ip6(layers.IPProtocolUDP)
	u := &layers.UDP{SrcPort: 40000, DstPort: 4789}
	u.SetNetworkLayerForChecksum(ip)
	return serialize(ethernet(layers.EthernetTypeIPv6), ip, u, payload(n))
}

// ARPFrame is a frame with no IP header.
func ARPFrame() []byte {
	a := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   SrcMAC,
		SourceProtAddress: SrcIP4.To4(),
		DstHwAddress:      make([]byte, 6),
		DstProtAddress:    DstIP4.To4(),
	}
	return serialize(ethernet(layers.EthernetTypeARP), a)
}

// Packet is an outbound packet held in DMA memory and cut into segments.
type Packet struct {
	Buf  []byte
	Segs []vnet.Segment
	Off  vnet.TxOffload
	// Returned by Offload when set.
	OffloadErr error

	mu    sync.Mutex
	freed int
	dma   *Dma
}

// NewPacket copies frame into DMA memory.  The first segment is head
// bytes long and the rest are cut into segment bytes pieces; head 0 makes
// every segment the same size.
func NewPacket(a *Dma, frame []byte, head, segment int, o vnet.TxOffload) *Packet {
	b, phys, err := a.DmaAlloc(uint(len(frame)), 1)
	if err != nil {
		panic(err)
	}
	copy(b, frame)
	p := &Packet{Buf: b, Off: o, dma: a}
	if head <= 0 {
		head = segment
	}
	for o, n := 0, head; o < len(b); o, n = o+n, segment {
		if o+n > len(b) {
			n = len(b) - o
		}
		p.Segs = append(p.Segs, vnet.Segment{Phys: phys + uint64(o), Data: b[o : o+n]})
	}
	return p
}

func (p *Packet) Segments(max int) ([]vnet.Segment, error) {
	if len(p.Segs) > max {
		return nil, vnet.ErrTooManySegments
	}
	return p.Segs, nil
}

func (p *Packet) Len() int                         { return len(p.Buf) }
func (p *Packet) Offload() (vnet.TxOffload, error) { return p.Off, p.OffloadErr }
func (p *Packet) Data() []byte                     { return p.Segs[0].Data }

func (p *Packet) Free() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.freed == 0 {
		p.dma.DmaFree(p.Buf)
	}
	p.freed++
}

// Freed counts calls to Free; more than one is a driver bug.
func (p *Packet) Freed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.freed
}
