// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pci

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

var (
	uioDriverPath = "/sys/bus/pci/drivers/uio_pci_generic"
	devPath       = "/dev"
)

// Uio is a device bound to uio_pci_generic.  Interrupts are delivered as
// reads of /dev/uioN returning the 32 bit interrupt count.
type Uio struct {
	*Device

	minor uint32
	fd    int

	// Eventfd used to wake Wait on Close.
	wake int
}

func uioWrite(path, format string, args ...interface{}) error {
	fn := filepath.Join(uioDriverPath, path)
	f, err := os.OpenFile(fn, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, format, args...)
	return err
}

func (d *Device) currentDriver() string {
	l, err := os.Readlink(d.SysfsPath("driver"))
	if err != nil {
		return ""
	}
	return filepath.Base(l)
}

func (u *Uio) bind() (err error) {
	switch drv := u.currentDriver(); drv {
	case "uio_pci_generic":
	case "":
		err = uioWrite("new_id", "%04x %04x", uint16(u.VendorID()), uint16(u.DeviceID()))
		// new_id already probes unbound devices; bind fails with EBUSY if so.
		if err == nil || errors.Is(err, unix.EEXIST) {
			err = uioWrite("bind", "%s", u.Addr)
			if errors.Is(err, unix.EBUSY) || errors.Is(err, unix.ENODEV) {
				err = nil
			}
		}
	default:
		err = fmt.Errorf("%v: bound to %s; unbind it first", u.Device, drv)
	}
	if err != nil {
		return
	}
	u.minor, err = u.findMinor()
	return
}

func (u *Uio) findMinor() (minor uint32, err error) {
	f, err := os.Open(u.SysfsPath("uio"))
	if err != nil {
		return
	}
	names, err := f.Readdirnames(-1)
	f.Close()
	if err != nil {
		return
	}
	for _, n := range names {
		if _, err = fmt.Sscanf(n, "uio%d", &minor); err == nil {
			return
		}
	}
	err = fmt.Errorf("%v: failed to get minor number for uio device", u.Device)
	return
}

func (u *Uio) unbind() (err error) {
	if err = uioWrite("unbind", "%s", u.Addr); err != nil {
		return
	}
	err = uioWrite("remove_id", "%04x %04x", uint16(u.VendorID()), uint16(u.DeviceID()))
	return
}

// OpenUio binds d to uio_pci_generic and opens its interrupt file.
func OpenUio(d *Device) (u *Uio, err error) {
	u = &Uio{Device: d, fd: -1, wake: -1}
	if err = u.bind(); err != nil {
		return
	}
	p := filepath.Join(devPath, fmt.Sprintf("uio%d", u.minor))
	if u.fd, err = unix.Open(p, unix.O_RDWR|unix.O_CLOEXEC, 0); err != nil {
		err = fmt.Errorf("open %s: %w", p, err)
		return
	}
	if u.wake, err = unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK); err != nil {
		unix.Close(u.fd)
		return
	}
	// Bus mastering is off after bind.
	c := Command(d.ReadConfigUint16(ConfigCommand))
	c |= MemoryEnable | BusMasterEnable
	c &^= INTxEmulationDisable
	d.WriteConfigUint16(ConfigCommand, uint16(c))
	return
}

func (u *Uio) Minor() uint32 { return u.minor }

// Unmask re-enables the legacy interrupt after it fired.
func (u *Uio) Unmask() error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], 1)
	_, err := unix.Write(u.fd, b[:])
	return err
}

// ErrClosed is returned by Wait after Close or context cancellation.
var ErrClosed = errors.New("pci: uio closed")

// Wait blocks until the next interrupt and returns the running count.
func (u *Uio) Wait(ctx context.Context) (count uint32, err error) {
	fds := []unix.PollFd{
		{Fd: int32(u.fd), Events: unix.POLLIN},
		{Fd: int32(u.wake), Events: unix.POLLIN},
	}
	for {
		if ctx.Err() != nil {
			return 0, ErrClosed
		}
		// Bounded wait so context cancellation is noticed.
		var n int
		n, err = unix.Poll(fds, 100)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return
		}
		if n == 0 {
			continue
		}
		if fds[1].Revents != 0 {
			return 0, ErrClosed
		}
		var b [4]byte
		if _, err = unix.Read(u.fd, b[:]); err != nil {
			return
		}
		count = binary.LittleEndian.Uint32(b[:])
		return
	}
}

func (u *Uio) Close() (err error) {
	if u.wake >= 0 {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], 1)
		unix.Write(u.wake, b[:])
	}
	if u.fd >= 0 {
		unix.Close(u.fd)
		u.fd = -1
	}
	if u.wake >= 0 {
		unix.Close(u.wake)
		u.wake = -1
	}
	return u.unbind()
}
