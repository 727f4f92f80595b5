// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hw

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	log2PageSize     = 12
	log2HugePageSize = log2PageSize + 9
	pageSize         = 1 << log2PageSize
)

// HugeHeap maps 2^log2Bytes of locked hugepage memory and builds the
// physical page table from /proc/self/pagemap.
func HugeHeap(log2Bytes uint) (h *Heap, err error) {
	n := 1 << log2Bytes
	if n < 1<<log2HugePageSize {
		n = 1 << log2HugePageSize
	}
	var data []byte
	data, err = unix.Mmap(-1, 0, n,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_SHARED|unix.MAP_ANONYMOUS|unix.MAP_HUGETLB|unix.MAP_LOCKED)
	if err != nil {
		err = fmt.Errorf("mmap %d hugepage bytes: %w", n, err)
		return
	}
	defer func() {
		if err != nil {
			unix.Munmap(data)
		}
	}()

	// Touch each page so it is faulted in before reading pagemap.
	for i := 0; i < n; i += 1 << log2HugePageSize {
		data[i] = 0
	}

	var f *os.File
	if f, err = os.Open("/proc/self/pagemap"); err != nil {
		return
	}
	defer f.Close()

	var t PageTable
	t, err = readPageTable(f, uintptr(unsafe.Pointer(&data[0])), uint(n), log2HugePageSize)
	if err != nil {
		return
	}
	h = NewHeap(data, t)
	return
}

// readPageTable reads one pagemap entry per page of size 2^log2Page.
func readPageTable(r io.ReaderAt, virt uintptr, n, log2Page uint) (t PageTable, err error) {
	t.Data = virt
	t.Log2BytesPerPage = log2Page
	t.Pages = make([]uint64, n>>log2Page)
	for i := range t.Pages {
		var b [8]byte
		a := virt + uintptr(i)<<log2Page
		pfn := int64(a) / pageSize
		if _, err = r.ReadAt(b[:], pfn*8); err != nil {
			err = fmt.Errorf("pagemap 0x%x: %w", a, err)
			return
		}
		v := binary.LittleEndian.Uint64(b[:])
		// Bit 63 is page present.
		if v&(1<<63) == 0 {
			err = fmt.Errorf("pagemap 0x%x: page not present", a)
			return
		}
		// Bits 0-54 are the physical page number.
		t.Pages[i] = (v & (1<<55 - 1)) * pageSize
	}
	return
}
