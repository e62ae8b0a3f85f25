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

//go:build !linux

package physmem

import (
	"unsafe"

	"simpleos.dev/simpleos/pkg/hostarch"
)

// mapMemory carves size bytes of page-aligned memory out of the Go heap.
// Large heap objects do not move.
func mapMemory(size uintptr) ([]byte, func([]byte) error, error) {
	buf := make([]byte, size+hostarch.PageSize)
	off := uintptr(hostarch.VirtualAddress(hostAddr(buf)).AlignUp(hostarch.PageSize)) - hostAddr(buf)
	return buf[off : off+size : off+size], func([]byte) error { return nil }, nil
}

func hostAddr(mem []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(mem)))
}
