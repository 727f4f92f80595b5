// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rtk5

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinasystems/rtk5/internal/test"
)

// Rewriting a frame twice gives the same bytes as rewriting it once, and
// only the TCP checksum and the IPv6 payload length change.
func TestPrepareTSOIdempotent(t *testing.T) {
	for _, tc := range []struct {
		name   string
		frame  []byte
		l3, l4 uint
		ip6    bool
		sum    uint16
	}{
		{"ip4", test.TCP4Frame(3000), 14, 34, false, 0x1409},
		{"ip4 tagged", test.TaggedTCP4Frame(5, 3000), 18, 38, false, 0x1409},
		{"ip6", test.TCP6Frame(3000), 14, 54, true, 0xfa0a},
	} {
		t.Run(tc.name, func(t *testing.T) {
			b := append([]byte(nil), tc.frame...)
			o, err := new_hdr_parser().parse(b)
			require.NoError(t, err)
			assert.Equal(t, tc.l3, o.l3)
			assert.Equal(t, tc.l4, o.l4)
			assert.Equal(t, tc.ip6, o.ip6)

			off, err := prepare_tso(b, o)
			require.NoError(t, err)
			assert.Equal(t, tc.l4, off)
			once := append([]byte(nil), b...)

			// The rewritten frame still parses the same way.
			o2, err := new_hdr_parser().parse(b)
			require.NoError(t, err)
			assert.Equal(t, o, o2)
			off, err = prepare_tso(b, o2)
			require.NoError(t, err)
			assert.Equal(t, tc.l4, off)
			assert.Equal(t, once, b)

			assert.Equal(t, tc.sum, binary.BigEndian.Uint16(b[tc.l4+16:]))
			want := append([]byte(nil), tc.frame...)
			binary.BigEndian.PutUint16(want[tc.l4+16:], tc.sum)
			if tc.ip6 {
				assert.NotZero(t, binary.BigEndian.Uint16(tc.frame[tc.l3+4:]))
				assert.Zero(t, binary.BigEndian.Uint16(b[tc.l3+4:]))
				binary.BigEndian.PutUint16(want[tc.l3+4:], 0)
			} else {
				assert.Equal(t, uint16(len(tc.frame))-uint16(tc.l3),
					binary.BigEndian.Uint16(b[tc.l3+2:]))
			}
			assert.Equal(t, want, b)
		})
	}
}

func TestPrepareTSORejects(t *testing.T) {
	b := test.UDP4Frame(100)
	o, err := new_hdr_parser().parse(b)
	require.NoError(t, err)
	_, err = prepare_tso(b, o)
	assert.ErrorIs(t, err, ErrOffload)

	b = test.TCP4Frame(0)
	o, err = new_hdr_parser().parse(b)
	require.NoError(t, err)
	_, err = prepare_tso(b[:o.l4+10], o)
	assert.ErrorIs(t, err, ErrOffload)
}
