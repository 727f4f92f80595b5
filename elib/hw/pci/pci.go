// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Generic devices on PCI bus.
package pci

import (
	"fmt"
	"sync"
)

// Standard config space header offsets.
const (
	ConfigVendorID = 0x00
	ConfigDeviceID = 0x02
	ConfigCommand  = 0x04
	ConfigStatus   = 0x06
	ConfigRevision = 0x08
)

type Command uint16

const (
	IOEnable Command = 1 << iota
	MemoryEnable
	BusMasterEnable
	SpecialCycles
	WriteInvalidate
	VgaPaletteSnoop
	Parity
	AddressDataStepping
	SERR
	BackToBackWrite
	INTxEmulationDisable
)

var commandNames = [...]string{
	"io", "memory", "bus-master", "special-cycles", "write-invalidate",
	"vga-palette-snoop", "parity", "stepping", "serr", "back-to-back",
	"intx-disable",
}

func (c Command) String() (s string) {
	for i, n := range commandNames {
		if c&(1<<uint(i)) != 0 {
			if s != "" {
				s += ", "
			}
			s += n
		}
	}
	if s == "" {
		s = "none"
	}
	return
}

type Status uint16

// Error bits in the status register are write one to clear.
const (
	StatusInterrupt           Status = 1 << 3
	StatusCapabilityList      Status = 1 << 4
	StatusMasterParityError   Status = 1 << 8
	StatusSignaledTargetAbort Status = 1 << 11
	StatusReceivedTargetAbort Status = 1 << 12
	StatusReceivedMasterAbort Status = 1 << 13
	StatusSignaledSystemError Status = 1 << 14
	StatusDetectedParityError Status = 1 << 15

	StatusErrors = StatusMasterParityError | StatusSignaledTargetAbort |
		StatusReceivedTargetAbort | StatusReceivedMasterAbort |
		StatusSignaledSystemError | StatusDetectedParityError
)

// Device/vendor ID from PCI config space.
type VendorID uint16
type VendorDeviceID uint16

const (
	Intel   VendorID = 0x8086
	Realtek VendorID = 0x10ec
)

func (v VendorID) String() string       { return fmt.Sprintf("0x%04x", uint16(v)) }
func (d VendorDeviceID) String() string { return fmt.Sprintf("0x%04x", uint16(d)) }

// Vendor/Device pair
type DeviceID struct {
	Vendor VendorID
	Device VendorDeviceID
}

func (i DeviceID) String() string { return fmt.Sprintf("%04x:%04x", uint16(i.Vendor), uint16(i.Device)) }

type BusAddress struct {
	Domain        uint16
	Bus, Slot, Fn uint8
}

func (a BusAddress) String() string {
	return fmt.Sprintf("%04x:%02x:%02x.%01x", a.Domain, a.Bus, a.Slot, a.Fn)
}

// ParseBusAddress accepts DDDD:BB:SS.F or the short BB:SS.F form.
func ParseBusAddress(s string) (a BusAddress, err error) {
	var n int
	if n, err = fmt.Sscanf(s, "%x:%x:%x.%x", &a.Domain, &a.Bus, &a.Slot, &a.Fn); n == 4 && err == nil {
		return
	}
	a = BusAddress{}
	if n, err = fmt.Sscanf(s, "%x:%x.%x", &a.Bus, &a.Slot, &a.Fn); n == 3 && err == nil {
		return
	}
	err = fmt.Errorf("pci: bad bus address %q", s)
	return
}

type Resource struct {
	Index      uint32 // index of BAR
	Base, Size uint64
	Flags      uint64
	Mem        []byte
}

const resourceFlagMem = 0x200

func (r Resource) IsMem() bool { return r.Flags&resourceFlagMem != 0 }

func (r Resource) String() string {
	if r.Size == 0 {
		return fmt.Sprintf("{%d: unused}", r.Index)
	}
	return fmt.Sprintf("{%d: 0x%x-0x%x}", r.Index, r.Base, r.Base+r.Size-1)
}

type Device struct {
	Addr      BusAddress
	ID        DeviceID
	Revision  uint8
	Resources []Resource
	Driver
}

func (d *Device) String() string {
	return fmt.Sprintf("%s %v", d.Addr, d.ID)
}

func (d *Device) VendorID() VendorID       { return d.ID.Vendor }
func (d *Device) DeviceID() VendorDeviceID { return d.ID.Device }

// Things a driver must do.
type Driver interface {
	// DeviceMatch is called for each discovered device with a registered id.
	DeviceMatch(d *Device) (err error)
}

var (
	driversMutex sync.Mutex
	drivers      = make(map[DeviceID]Driver)
)

func setDriver(v Driver, id DeviceID) (err error) {
	driversMutex.Lock()
	defer driversMutex.Unlock()
	if _, exists := drivers[id]; exists {
		err = fmt.Errorf("duplicate registration for device: %v", id)
	} else {
		drivers[id] = v
	}
	return
}

// SetDriver gives a driver for a given list of devices (vendor, device pairs).
func SetDriver(v Driver, args ...interface{}) (err error) {
	var id DeviceID
	for _, a := range args {
		switch b := a.(type) {
		case VendorID:
			id.Vendor = b
		case VendorDeviceID:
			id.Device = b
			err = setDriver(v, id)
		case DeviceID:
			id = b
			err = setDriver(v, id)
		case []VendorDeviceID:
			for i := range b {
				if err = setDriver(v, DeviceID{Vendor: id.Vendor, Device: b[i]}); err != nil {
					return
				}
			}
		default:
			err = fmt.Errorf("pci: SetDriver: unexpected %T", a)
		}
		if err != nil {
			return
		}
	}
	return
}

func GetDriver(d DeviceID) Driver {
	driversMutex.Lock()
	defer driversMutex.Unlock()
	return drivers[d]
}
