// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hw

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegsLittleEndian(t *testing.T) {
	mem := make([]byte, 64)
	r := NewRegs(mem)

	r.Write32(0x10, 0x11223344)
	assert.Equal(t, []byte{0x44, 0x33, 0x22, 0x11}, mem[0x10:0x14])
	assert.Equal(t, uint16(0x3344), r.Read16(0x10))
	assert.Equal(t, uint16(0x1122), r.Read16(0x12))
	assert.Equal(t, uint8(0x22), r.Read8(0x12))

	// Narrow writes leave neighbors alone.
	r.Write8(0x11, 0xaa)
	assert.Equal(t, uint32(0x1122aa44), r.Read32(0x10))
	r.Write16(0x12, 0xbeef)
	assert.Equal(t, uint32(0xbeefaa44), r.Read32(0x10))
}

func TestRegsBounds(t *testing.T) {
	r := NewRegs(make([]byte, 8))
	assert.Panics(t, func() { r.Read32(8) })
	assert.Panics(t, func() { r.Read32(2) })
	assert.Panics(t, func() { r.Write16(1, 0) })
	assert.NotPanics(t, func() { r.Write8(7, 1) })
}
