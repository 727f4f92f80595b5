// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pci

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jaypipes/pcidb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopDriver struct{ matched []*Device }

func (d *nopDriver) DeviceMatch(dev *Device) error {
	d.matched = append(d.matched, dev)
	return nil
}

func fakeSysfs(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	old := sysBusPciPath
	sysBusPciPath = root
	t.Cleanup(func() { sysBusPciPath = old })
	return root
}

func writeDev(t *testing.T, root, addr string, files map[string]string) {
	t.Helper()
	dir := filepath.Join(root, addr)
	require.NoError(t, os.MkdirAll(dir, 0755))
	for n, v := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte(v), 0644))
	}
}

func TestParseBusAddress(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want BusAddress
		ok   bool
	}{
		{"0000:03:00.0", BusAddress{0, 3, 0, 0}, true},
		{"0001:af:1f.7", BusAddress{1, 0xaf, 0x1f, 7}, true},
		{"02:00.1", BusAddress{0, 2, 0, 1}, true},
		{"nope", BusAddress{}, false},
	} {
		a, err := ParseBusAddress(tc.in)
		if !tc.ok {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, a, tc.in)
	}
	a, _ := ParseBusAddress("02:00.1")
	assert.Equal(t, "0000:02:00.1", a.String())
}

func TestCommandString(t *testing.T) {
	assert.Equal(t, "memory, bus-master", (MemoryEnable | BusMasterEnable).String())
	assert.Equal(t, "none", Command(0).String())
}

func TestSetDriverDuplicate(t *testing.T) {
	d := &nopDriver{}
	require.NoError(t, SetDriver(d, VendorID(0xfff0), VendorDeviceID(1), VendorDeviceID(2)))
	assert.Equal(t, Driver(d), GetDriver(DeviceID{0xfff0, 2}))
	assert.Error(t, SetDriver(d, DeviceID{0xfff0, 1}))
	assert.Error(t, SetDriver(d, "bogus"))
}

func TestDiscoverDevices(t *testing.T) {
	root := fakeSysfs(t)
	d := &nopDriver{}
	require.NoError(t, SetDriver(d, VendorID(0xfff1), []VendorDeviceID{0x8125}))

	writeDev(t, root, "0000:04:00.0", map[string]string{
		"vendor":   "0xfff1\n",
		"device":   "0x8125\n",
		"revision": "0x05\n",
		"resource": "0x000000000000e000 0x000000000000e0ff 0x0000000000040101\n" +
			"0x0000000000000000 0x0000000000000000 0x0000000000000000\n" +
			"0x00000000fc400000 0x00000000fc40ffff 0x0000000000140204\n",
	})
	// Not registered; skipped.
	writeDev(t, root, "0000:00:1f.0", map[string]string{
		"vendor": "0x8086\n",
		"device": "0x1234\n",
	})

	devs, err := DiscoverDevices()
	require.NoError(t, err)
	require.Len(t, devs, 1)
	dev := devs[0]
	assert.Equal(t, "0000:04:00.0 fff1:8125", dev.String())
	assert.Equal(t, uint8(5), dev.Revision)
	require.Len(t, dev.Resources, 3)
	assert.False(t, dev.Resources[0].IsMem())
	assert.Equal(t, uint64(0x100), dev.Resources[0].Size)
	assert.Equal(t, uint64(0), dev.Resources[1].Size)
	assert.True(t, dev.Resources[2].IsMem())
	assert.Equal(t, uint64(0x10000), dev.Resources[2].Size)
	assert.Equal(t, []*Device{dev}, d.matched)
}

func TestDiscoverNoSysfs(t *testing.T) {
	old := sysBusPciPath
	sysBusPciPath = filepath.Join(t.TempDir(), "missing")
	defer func() { sysBusPciPath = old }()
	devs, err := DiscoverDevices()
	assert.NoError(t, err)
	assert.Empty(t, devs)
}

func TestConfigRw(t *testing.T) {
	root := fakeSysfs(t)
	cfg := make([]byte, 64)
	cfg[4], cfg[5] = 0x07, 0x04
	writeDev(t, root, "0000:04:00.0", map[string]string{"config": string(cfg)})
	d := &Device{Addr: BusAddress{Bus: 4}}

	assert.Equal(t, uint16(0x0407), d.ReadConfigUint16(ConfigCommand))
	c := Command(d.ReadConfigUint16(ConfigCommand))
	assert.True(t, c&BusMasterEnable != 0)
	assert.True(t, c&INTxEmulationDisable != 0)

	d.WriteConfigUint16(ConfigStatus, uint16(StatusSignaledSystemError))
	assert.Equal(t, uint16(StatusSignaledSystemError), d.ReadConfigUint16(ConfigStatus))
	assert.Equal(t, uint8(0x40), d.ReadConfigUint8(ConfigStatus+1))

	gone := &Device{Addr: BusAddress{Bus: 9}}
	assert.Equal(t, uint16(0xffff), gone.ReadConfigUint16(ConfigCommand))
}

func TestName(t *testing.T) {
	db := &pcidb.PCIDB{
		Vendors: map[string]*pcidb.Vendor{
			"10ec": {ID: "10ec", Name: "Realtek"},
		},
		Products: map[string]*pcidb.Product{
			"10ec8125": {VendorID: "10ec", ID: "8125", Name: "RTL8125 2.5GbE Controller"},
		},
	}
	assert.Equal(t, "Realtek RTL8125 2.5GbE Controller", Name(db, DeviceID{Realtek, 0x8125}))
	assert.Equal(t, "Realtek 0x8126", Name(db, DeviceID{Realtek, 0x8126}))
	assert.Equal(t, "8086:1521", Name(db, DeviceID{Intel, 0x1521}))
	assert.Equal(t, "10ec:8125", Name(nil, DeviceID{Realtek, 0x8125}))
}

func TestUioBind(t *testing.T) {
	root := fakeSysfs(t)
	drv := t.TempDir()
	old := uioDriverPath
	uioDriverPath = drv
	defer func() { uioDriverPath = old }()
	for _, n := range []string{"new_id", "bind", "unbind", "remove_id"} {
		require.NoError(t, os.WriteFile(filepath.Join(drv, n), nil, 0644))
	}
	writeDev(t, root, "0000:04:00.0", nil)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "0000:04:00.0", "uio", "uio3"), 0755))

	u := &Uio{Device: &Device{Addr: BusAddress{Bus: 4}, ID: DeviceID{Realtek, 0x8126}}, fd: -1, wake: -1}
	require.NoError(t, u.bind())
	assert.Equal(t, uint32(3), u.Minor())

	b, err := os.ReadFile(filepath.Join(drv, "new_id"))
	require.NoError(t, err)
	assert.Equal(t, "10ec 8126", string(b))
	b, err = os.ReadFile(filepath.Join(drv, "bind"))
	require.NoError(t, err)
	assert.Equal(t, "0000:04:00.0", string(b))

	require.NoError(t, u.Close())
	b, _ = os.ReadFile(filepath.Join(drv, "remove_id"))
	assert.Equal(t, "10ec 8126", string(b))
}

func TestUioBoundElsewhere(t *testing.T) {
	root := fakeSysfs(t)
	writeDev(t, root, "0000:04:00.0", nil)
	require.NoError(t, os.Symlink("../../../bus/pci/drivers/r8169",
		filepath.Join(root, "0000:04:00.0", "driver")))
	u := &Uio{Device: &Device{Addr: BusAddress{Bus: 4}}, fd: -1, wake: -1}
	assert.ErrorContains(t, u.bind(), "bound to r8169")
}
