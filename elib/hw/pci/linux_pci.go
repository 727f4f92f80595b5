// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pci

// Linux PCI code

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/sys/unix"
)

var sysBusPciPath = "/sys/bus/pci/devices"

func (d *Device) SysfsPath(format string, args ...interface{}) (path string) {
	path = filepath.Join(sysBusPciPath, d.Addr.String(), fmt.Sprintf(format, args...))
	return
}

func (d *Device) SysfsOpenFile(format string, mode int, args ...interface{}) (f *os.File, err error) {
	fn := d.SysfsPath(format, args...)
	f, err = os.OpenFile(fn, mode, 0)
	return
}

func (d *Device) SysfsReadHexFile(format string, args ...interface{}) (v uint, err error) {
	var f *os.File
	f, err = d.SysfsOpenFile(format, os.O_RDONLY, args...)
	if err != nil {
		return
	}
	defer f.Close()
	var n int
	if n, err = fmt.Fscanf(f, "0x%x", &v); n != 1 && err == nil {
		err = fmt.Errorf("%s: no hex value", d.SysfsPath(format, args...))
	}
	return
}

// ConfigRw reads or writes nBytes (1, 2 or 4) of config space.
func (d *Device) ConfigRw(offset, vʹ, nBytes uint, isWrite bool) (v uint, err error) {
	var f *os.File
	mode := os.O_RDONLY
	if isWrite {
		mode = os.O_RDWR
	}
	if f, err = d.SysfsOpenFile("config", mode); err != nil {
		return
	}
	defer f.Close()
	var b [4]byte
	if isWrite {
		for i := range b {
			b[i] = byte((vʹ >> uint(8*i)) & 0xff)
		}
		_, err = f.WriteAt(b[:nBytes], int64(offset))
		v = vʹ
	} else {
		if _, err = f.ReadAt(b[:nBytes], int64(offset)); err == nil {
			for i := range b[:nBytes] {
				v |= uint(b[i]) << (8 * uint(i))
			}
		}
	}
	return
}

// Reads of a device that went away return all ones, as on the bus.
func (d *Device) ReadConfigUint16(o uint) uint16 {
	v, err := d.ConfigRw(o, 0, 2, false)
	if err != nil {
		return 0xffff
	}
	return uint16(v)
}

func (d *Device) WriteConfigUint16(o uint, value uint16) {
	d.ConfigRw(o, uint(value), 2, true)
}

func (d *Device) ReadConfigUint8(o uint) uint8 {
	v, err := d.ConfigRw(o, 0, 1, false)
	if err != nil {
		return 0xff
	}
	return uint8(v)
}

func (d *Device) MapResource(bar uint) (mem []byte, err error) {
	if bar >= uint(len(d.Resources)) {
		err = fmt.Errorf("%v: no resource %d", d, bar)
		return
	}
	r := &d.Resources[bar]
	var f *os.File
	f, err = d.SysfsOpenFile("resource%d", os.O_RDWR, r.Index)
	if err != nil {
		return
	}
	defer f.Close()
	r.Mem, err = unix.Mmap(int(f.Fd()), 0, int(r.Size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		err = fmt.Errorf("mmap resource%d: %w", r.Index, err)
		return
	}
	mem = r.Mem
	return
}

func (d *Device) UnmapResource(bar uint) (err error) {
	r := &d.Resources[bar]
	if r.Mem != nil {
		if err = unix.Munmap(r.Mem); err != nil {
			return fmt.Errorf("munmap resource%d: %w", bar, err)
		}
		r.Mem = nil
	}
	return
}

// Loop through BARs to find resources.
func (d *Device) findResources() (err error) {
	var f *os.File
	if f, err = d.SysfsOpenFile("resource", os.O_RDONLY); err != nil {
		return
	}
	defer f.Close()

	d.Resources = d.Resources[:0]
	s := bufio.NewScanner(f)
	for i := 0; s.Scan(); i++ {
		var (
			v [3]uint64
			n int
		)
		if n, err = fmt.Sscanf(s.Text(), "0x%x 0x%x 0x%x", &v[0], &v[1], &v[2]); n != 3 {
			if err == nil {
				err = fmt.Errorf("short read")
			}
			return fmt.Errorf("%s line %d: %w", d.SysfsPath("resource"), i, err)
		}
		size := v[0]
		if v[0] != 0 {
			size = 1 + v[1] - v[0]
		}
		d.Resources = append(d.Resources, Resource{
			Index: uint32(i),
			Base:  v[0],
			Size:  size,
			Flags: v[2],
		})
	}
	return s.Err()
}

func readDevice(name string) (d *Device, err error) {
	d = &Device{}
	if d.Addr, err = ParseBusAddress(name); err != nil {
		return
	}
	var v uint
	if v, err = d.SysfsReadHexFile("vendor"); err != nil {
		return
	}
	d.ID.Vendor = VendorID(v)
	if v, err = d.SysfsReadHexFile("device"); err != nil {
		return
	}
	d.ID.Device = VendorDeviceID(v)
	if v, err = d.SysfsReadHexFile("revision"); err == nil {
		d.Revision = uint8(v)
	} else if errors.Is(err, os.ErrNotExist) || errors.Is(err, io.EOF) {
		err = nil
	}
	return
}

// DiscoverDevices returns devices with registered drivers in bus address
// order, after calling each driver's DeviceMatch.
func DiscoverDevices() (devs []*Device, err error) {
	var names []string
	f, err := os.Open(sysBusPciPath)
	if errors.Is(err, os.ErrNotExist) {
		err = nil
		return
	}
	if err != nil {
		return
	}
	names, err = f.Readdirnames(-1)
	f.Close()
	if err != nil {
		return
	}
	sort.Strings(names)

	for _, n := range names {
		var d *Device
		if d, err = readDevice(n); err != nil {
			return
		}
		if d.Driver = GetDriver(d.ID); d.Driver == nil {
			continue
		}
		if err = d.findResources(); err != nil {
			return
		}
		if err = d.Driver.DeviceMatch(d); err != nil {
			return
		}
		devs = append(devs, d)
	}
	return
}
