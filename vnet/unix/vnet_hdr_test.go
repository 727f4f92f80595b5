// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package unix

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinasystems/rtk5/internal/test"
	"github.com/platinasystems/rtk5/vnet"
)

func TestVnetHdrOffload(t *testing.T) {
	for _, tc := range []struct {
		name  string
		hdr   virtio_net_hdr
		frame []byte
		want  vnet.TxOffload
	}{
		{
			name:  "none",
			frame: test.TCP4Frame(10),
		},
		{
			name:  "tso4",
			hdr:   virtio_net_hdr{flags: vnet_hdr_f_needs_csum, gso_type: vnet_hdr_gso_tcpv4, gso_size: 1448, csum_start: 34, csum_offset: 16},
			frame: test.TCP4Frame(9000),
			want:  vnet.TxOffload{Tso: vnet.TsoV4, Csum: vnet.CsumTCPv4, MSS: 1448},
		},
		{
			name:  "tso6 ecn",
			hdr:   virtio_net_hdr{flags: vnet_hdr_f_needs_csum, gso_type: vnet_hdr_gso_tcpv6 | vnet_hdr_gso_ecn, gso_size: 1428},
			frame: test.TCP6Frame(9000),
			want:  vnet.TxOffload{Tso: vnet.TsoV6, Csum: vnet.CsumTCPv6, MSS: 1428},
		},
		{
			name:  "tcp4 csum",
			hdr:   virtio_net_hdr{flags: vnet_hdr_f_needs_csum, csum_start: 34, csum_offset: 16},
			frame: test.TCP4Frame(100),
			want:  vnet.TxOffload{Csum: vnet.CsumTCPv4},
		},
		{
			name:  "udp4 csum",
			hdr:   virtio_net_hdr{flags: vnet_hdr_f_needs_csum, csum_start: 34, csum_offset: 6},
			frame: test.UDP4Frame(100),
			want:  vnet.TxOffload{Csum: vnet.CsumUDPv4},
		},
		{
			name:  "udp6 csum",
			hdr:   virtio_net_hdr{flags: vnet_hdr_f_needs_csum, csum_start: 54, csum_offset: 6},
			frame: test.UDP6Frame(100),
			want:  vnet.TxOffload{Csum: vnet.CsumUDPv6},
		},
		{
			name:  "tagged tcp4 csum",
			hdr:   virtio_net_hdr{flags: vnet_hdr_f_needs_csum, csum_start: 38, csum_offset: 16},
			frame: test.TaggedTCP4Frame(7, 100),
			want:  vnet.TxOffload{Csum: vnet.CsumTCPv4},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			o, err := tc.hdr.offload(tc.frame)
			require.NoError(t, err)
			assert.Equal(t, tc.want, o)
		})
	}
}

func TestVnetHdrUnsupported(t *testing.T) {
	h := virtio_net_hdr{gso_type: vnet_hdr_gso_udp_l4, gso_size: 1400}
	_, err := h.offload(test.UDP4Frame(4000))
	assert.ErrorIs(t, err, ErrUnsupportedOffload)

	h = virtio_net_hdr{flags: vnet_hdr_f_needs_csum, csum_offset: 16}
	_, err = h.offload(test.ARPFrame())
	assert.ErrorIs(t, err, ErrUnsupportedOffload)

	_, err = h.offload(make([]byte, 10))
	assert.ErrorIs(t, err, ErrShortFrame)
}

func TestVnetHdrCodec(t *testing.T) {
	var h virtio_net_hdr
	assert.ErrorIs(t, h.decode(make([]byte, 4)), ErrShortFrame)

	b := make([]byte, virtio_net_hdr_len)
	want := virtio_net_hdr{flags: 1, gso_type: 4, hdr_len: 74, gso_size: 1428, csum_start: 54, csum_offset: 16}
	want.encode(b)
	assert.Equal(t, []byte{1, 4, 74, 0, 0x94, 0x05, 54, 0, 16, 0}, b)
	require.NoError(t, h.decode(b))
	assert.Equal(t, want, h)
}
