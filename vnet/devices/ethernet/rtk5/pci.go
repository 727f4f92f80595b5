// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rtk5

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/platinasystems/rtk5/elib/hw"
	"github.com/platinasystems/rtk5/elib/hw/pci"
)

// MMIO registers live in BAR2.
const mmio_bar = 2

var dev_ids = []pci.VendorDeviceID{
	dev_id_8125,
	dev_id_3000,
	dev_id_8126,
	dev_id_5000,
	dev_id_8162,
}

var dev_id_names = map[pci.VendorDeviceID]string{
	dev_id_8125: "RTL8125",
	dev_id_3000: "RTL8125 (Killer E3000)",
	dev_id_8126: "RTL8126",
	dev_id_5000: "RTL8126 (Killer E5000)",
	dev_id_8162: "RTL8168KB",
}

func DeviceIDName(id pci.VendorDeviceID) (v string) {
	var ok bool
	if v, ok = dev_id_names[id]; !ok {
		v = fmt.Sprintf("unknown %04x", uint16(id))
	}
	return
}

type pci_driver struct {
	mu   sync.Mutex
	devs []*pci.Device
}

var driver = &pci_driver{}

func init() {
	if err := pci.SetDriver(driver, pci.Realtek, dev_ids); err != nil {
		panic(err)
	}
}

func (p *pci_driver) DeviceMatch(d *pci.Device) (err error) {
	if len(d.Resources) <= mmio_bar || !d.Resources[mmio_bar].IsMem() {
		return fmt.Errorf("%v: bar %d is not memory", d, mmio_bar)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	// Rediscovery replaces what an earlier scan found.
	for i := range p.devs {
		if p.devs[i].Addr == d.Addr {
			p.devs[i] = d
			return
		}
	}
	p.devs = append(p.devs, d)
	return
}

// Devices lists supported devices found by pci.DiscoverDevices.
func Devices() []*pci.Device {
	driver.mu.Lock()
	defer driver.mu.Unlock()
	return append([]*pci.Device(nil), driver.devs...)
}

// OpenPCI maps pd's registers and identifies the chip.  o supplies
// everything but the register window and PCI identity.
func OpenPCI(l *logrus.Logger, pd *pci.Device, o Options) (d *Dev, err error) {
	if len(pd.Resources) <= mmio_bar {
		return nil, fmt.Errorf("%v: %w", pd, ErrNoDevice)
	}
	mem, err := pd.MapResource(mmio_bar)
	if err != nil {
		return
	}
	o.Regs = hw.NewRegs(mem)
	o.PCI = pd
	o.DeviceID = uint16(pd.DeviceID())
	if o.Name == "" {
		o.Name = pd.Addr.String()
	}
	if d, err = New(l, o); err != nil {
		pd.UnmapResource(mmio_bar)
		return
	}
	d.on_close = append(d.on_close, func() { pd.UnmapResource(mmio_bar) })
	return
}

// Close disables the device and releases its register window.
func (d *Dev) Close() {
	d.Disable()
	for i := len(d.on_close) - 1; i >= 0; i-- {
		d.on_close[i]()
	}
	d.on_close = nil
}
