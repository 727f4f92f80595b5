// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rtk5

import (
	"encoding/binary"
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/platinasystems/rtk5/vnet"
)

const (
	ethernet_header_len = 14
	ip6_header_len      = 40
	// Largest MSS the descriptor can carry.
	MSS_MAX = MSSMask
)

// header_offsets locates the network and transport headers of a frame.
type header_offsets struct {
	l3, l4 uint
	ip6    bool
	proto  layers.IPProtocol
}

// hdr_parser decodes outbound headers in place.  Not safe for concurrent
// use; the submit path owns one.
type hdr_parser struct {
	eth     layers.Ethernet
	dot1q   layers.Dot1Q
	ip4     layers.IPv4
	tcp     layers.TCP
	udp     layers.UDP
	p       *gopacket.DecodingLayerParser
	decoded []gopacket.LayerType
}

func new_hdr_parser() (h *hdr_parser) {
	h = &hdr_parser{}
	h.p = gopacket.NewDecodingLayerParser(layers.LayerTypeEthernet, &h.eth, &h.dot1q, &h.ip4, &h.tcp, &h.udp)
	h.p.IgnoreUnsupported = true
	h.decoded = make([]gopacket.LayerType, 0, 8)
	return
}

// IPv6 stops the layer parser: TSO rewrites the payload length to zero, which
// a strict decoder rejects.  The fixed header is read directly instead.
func (h *hdr_parser) parse(b []byte) (o header_offsets, err error) {
	if err = h.p.DecodeLayers(b, &h.decoded); err != nil {
		err = fmt.Errorf("%w: %v", ErrOffload, err)
		return
	}
	et := layers.EthernetTypeLLC
	for _, t := range h.decoded {
		switch t {
		case layers.LayerTypeEthernet:
			o.l3 = uint(len(h.eth.Contents))
			et = h.eth.EthernetType
		case layers.LayerTypeDot1Q:
			o.l3 += uint(len(h.dot1q.Contents))
			et = h.dot1q.Type
		case layers.LayerTypeIPv4:
			o.l4 = o.l3 + uint(len(h.ip4.Contents))
			o.proto = h.ip4.Protocol
		}
	}
	if et == layers.EthernetTypeIPv6 {
		if uint(len(b)) < o.l3+ip6_header_len {
			err = fmt.Errorf("%w: short ipv6 header", ErrOffload)
			return
		}
		o.ip6 = true
		o.l4 = o.l3 + ip6_header_len
		o.proto = layers.IPProtocol(b[o.l3+6])
	}
	if o.l4 == 0 {
		err = fmt.Errorf("%w: ethernet type %v is not ip", ErrOffload, et)
	}
	return
}

// pseudo_sum folds big endian words into the length-less TCP pseudo header
// sum, seeded with the TCP protocol number.
func pseudo_sum(b []byte) uint16 {
	s := uint32(layers.IPProtocolTCP)
	for i := 0; i+1 < len(b); i += 2 {
		s += uint32(binary.BigEndian.Uint16(b[i:]))
		s += s >> 16
		s &= 0xffff
	}
	return uint16(s)
}

// prepare_tso rewrites headers for hardware segmentation and returns the TCP
// header offset.  Only addresses feed the rewrite so it is idempotent.
func prepare_tso(b []byte, o header_offsets) (tcpOff uint, err error) {
	if o.proto != layers.IPProtocolTCP {
		return 0, fmt.Errorf("%w: tso of %v", ErrOffload, o.proto)
	}
	if uint(len(b)) < o.l4+20 {
		return 0, fmt.Errorf("%w: short tcp header", ErrOffload)
	}
	var sum uint16
	if o.ip6 {
		h := b[o.l3:]
		// Payload length.
		binary.BigEndian.PutUint16(h[4:], 0)
		sum = pseudo_sum(h[8:40])
	} else {
		sum = pseudo_sum(b[o.l3+12 : o.l3+20])
	}
	binary.BigEndian.PutUint16(b[o.l4+16:], sum)
	return o.l4, nil
}

func csum_opts2(k vnet.CsumKind) uint32 {
	switch k {
	case vnet.CsumIPv4:
		return TxIPCS
	case vnet.CsumTCPv4:
		return TxIPCS | TxTCPCS
	case vnet.CsumUDPv4:
		return TxIPCS | TxUDPCS
	case vnet.CsumTCPv6:
		return TxTCPCS | TxIPV6F
	case vnet.CsumUDPv6:
		return TxUDPCS | TxIPV6F
	}
	return 0
}

// tx_offload returns the descriptor command bits for a packet.  TSO applies
// only when the frame exceeds the MTU; otherwise it degrades to checksum
// offload of the same protocol.
func (d *Dev) tx_offload(p vnet.Packet, o vnet.TxOffload) (opts1, opts2 uint32, err error) {
	csum := o.Csum
	if o.Tso != vnet.TsoNone {
		v6 := o.Tso == vnet.TsoV6
		if uint(p.Len()) > d.mtu+ethernet_header_len {
			if (v6 && !d.tso6) || (!v6 && !d.tso4) {
				err = fmt.Errorf("%w: %v disabled", ErrOffload, o.Tso)
				return
			}
			return d.tx_tso(p.Data(), o)
		}
		csum = vnet.CsumTCPv4
		if v6 {
			csum = vnet.CsumTCPv6
		}
	}
	opts2 = csum_opts2(csum)
	if csum.IsIPv6() {
		if !d.cso6 {
			err = fmt.Errorf("%w: ipv6 checksum disabled", ErrOffload)
			return
		}
		var h header_offsets
		if h, err = d.parser.parse(p.Data()); err != nil {
			return
		}
		if h.l4 > TCPHO_MAX {
			err = fmt.Errorf("%w: header offset %d", ErrOffload, h.l4)
			return
		}
		opts2 |= uint32(h.l4) << TCPHO_SHIFT
	}
	return
}

func (d *Dev) tx_tso(b []byte, o vnet.TxOffload) (opts1, opts2 uint32, err error) {
	var h header_offsets
	if h, err = d.parser.parse(b); err != nil {
		return
	}
	if h.ip6 != (o.Tso == vnet.TsoV6) {
		err = fmt.Errorf("%w: %v does not match frame", ErrOffload, o.Tso)
		return
	}
	if h.l4 > GTTCPHO_MAX {
		err = fmt.Errorf("%w: tcp header offset %d", ErrOffload, h.l4)
		return
	}
	var tcpOff uint
	if tcpOff, err = prepare_tso(b, h); err != nil {
		return
	}
	mss := o.MSS
	if mss == 0 {
		mss = d.mtu - (h.l4 - h.l3) - 20
	}
	if mss > MSS_MAX {
		mss = MSS_MAX
	}
	opts1 = uint32(tcpOff) << GTTCPHO_SHIFT
	if h.ip6 {
		opts1 |= GiantSendv6
	} else {
		opts1 |= GiantSendv4
	}
	opts2 = uint32(mss&MSSMask) << MSSShift
	return
}
