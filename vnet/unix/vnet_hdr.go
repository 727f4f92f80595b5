// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package unix

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/platinasystems/rtk5/vnet"
)

// struct virtio_net_hdr, host byte order (little endian on every target
// this runs on).
type virtio_net_hdr struct {
	flags       uint8
	gso_type    uint8
	hdr_len     uint16
	gso_size    uint16
	csum_start  uint16
	csum_offset uint16
}

const virtio_net_hdr_len = 10

const (
	vnet_hdr_f_needs_csum = 1 << 0
	vnet_hdr_f_data_valid = 1 << 1
)

const (
	vnet_hdr_gso_none   = 0
	vnet_hdr_gso_tcpv4  = 1
	vnet_hdr_gso_udp    = 3
	vnet_hdr_gso_tcpv6  = 4
	vnet_hdr_gso_udp_l4 = 5
	vnet_hdr_gso_ecn    = 0x80
)

var ErrShortFrame = errors.New("tap: short frame")
var ErrUnsupportedOffload = errors.New("tap: unsupported offload")

func (h *virtio_net_hdr) decode(b []byte) error {
	if len(b) < virtio_net_hdr_len {
		return ErrShortFrame
	}
	h.flags = b[0]
	h.gso_type = b[1]
	h.hdr_len = binary.LittleEndian.Uint16(b[2:])
	h.gso_size = binary.LittleEndian.Uint16(b[4:])
	h.csum_start = binary.LittleEndian.Uint16(b[6:])
	h.csum_offset = binary.LittleEndian.Uint16(b[8:])
	return nil
}

func (h *virtio_net_hdr) encode(b []byte) {
	b[0] = h.flags
	b[1] = h.gso_type
	binary.LittleEndian.PutUint16(b[2:], h.hdr_len)
	binary.LittleEndian.PutUint16(b[4:], h.gso_size)
	binary.LittleEndian.PutUint16(b[6:], h.csum_start)
	binary.LittleEndian.PutUint16(b[8:], h.csum_offset)
}

const (
	ethertype_ip4  = 0x0800
	ethertype_ip6  = 0x86dd
	ethertype_vlan = 0x8100
)

// ethertype returns the frame's network protocol, looking past one 802.1Q tag.
func ethertype(frame []byte) (t uint16, err error) {
	if len(frame) < 14 {
		return 0, ErrShortFrame
	}
	t = binary.BigEndian.Uint16(frame[12:])
	if t == ethertype_vlan {
		if len(frame) < 18 {
			return 0, ErrShortFrame
		}
		t = binary.BigEndian.Uint16(frame[16:])
	}
	return
}

// offload maps the kernel's request for frame onto the device's terms.
func (h *virtio_net_hdr) offload(frame []byte) (o vnet.TxOffload, err error) {
	switch h.gso_type &^ vnet_hdr_gso_ecn {
	case vnet_hdr_gso_none:
	case vnet_hdr_gso_tcpv4:
		o.Tso, o.Csum, o.MSS = vnet.TsoV4, vnet.CsumTCPv4, uint(h.gso_size)
		return
	case vnet_hdr_gso_tcpv6:
		o.Tso, o.Csum, o.MSS = vnet.TsoV6, vnet.CsumTCPv6, uint(h.gso_size)
		return
	default:
		err = fmt.Errorf("%w: gso type %d", ErrUnsupportedOffload, h.gso_type)
		return
	}
	if h.flags&vnet_hdr_f_needs_csum == 0 {
		return
	}
	t, err := ethertype(frame)
	if err != nil {
		return
	}
	// csum_offset is where the checksum sits within the l4 header.
	switch {
	case t == ethertype_ip4 && h.csum_offset == 16:
		o.Csum = vnet.CsumTCPv4
	case t == ethertype_ip4 && h.csum_offset == 6:
		o.Csum = vnet.CsumUDPv4
	case t == ethertype_ip6 && h.csum_offset == 16:
		o.Csum = vnet.CsumTCPv6
	case t == ethertype_ip6 && h.csum_offset == 6:
		o.Csum = vnet.CsumUDPv6
	default:
		err = fmt.Errorf("%w: checksum at %d+%d ethertype 0x%04x", ErrUnsupportedOffload, h.csum_start, h.csum_offset, t)
	}
	return
}
