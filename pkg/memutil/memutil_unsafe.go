// Copyright 2026 The SimpleOS Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

//go:build linux

// Package memutil provides utilities for working with anonymous memory
// mappings, used as simulated physical memory.
package memutil

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// MapAnonymous maps size bytes of zeroed, private, read-write memory. The
// returned slice starts on a host page boundary and lives outside the Go heap.
func MapAnonymous(size uintptr) ([]byte, error) {
	if size == 0 {
		return nil, fmt.Errorf("zero-length mapping")
	}
	m, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("mmap(%d bytes): %w", size, err)
	}
	return m, nil
}

// UnmapSlice unmaps a mapping returned by MapAnonymous.
func UnmapSlice(slice []byte) error {
	return unix.Munmap(slice)
}

// SliceAddr returns the address of the first byte of slice.
func SliceAddr(slice []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(slice)))
}
