// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rtk5

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShow(t *testing.T) {
	h := new_harness(t, txconfig_8125b)
	d := h.d

	var b strings.Builder
	d.Show(&b)
	s := b.String()
	assert.Contains(t, s, "test0:")
	assert.Contains(t, s, "RTL8125B (CFG_METHOD_4)")
	assert.Contains(t, s, "00:e0:4c:68:00:01")
	assert.Contains(t, s, "enabled false")
	assert.NotContains(t, s, "tx:")

	h.enable().up(status_2500)
	_, err := d.Submit(h.raw(2))
	require.NoError(t, err)

	b.Reset()
	d.Show(&b)
	s = b.String()
	assert.Contains(t, s, "enabled true link true")
	assert.Contains(t, s, "speed 2500 full duplex")
	assert.Contains(t, s, "TxConfig:")
	assert.Contains(t, s, "len 64 next 2 dirty 0 free 62")
	assert.Contains(t, s, "pool:")
	// One line per outstanding descriptor.
	assert.Contains(t, s, "  0:")
	assert.Contains(t, s, "  1:")
}
