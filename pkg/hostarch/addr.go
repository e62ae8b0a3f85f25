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

package hostarch

import (
	"fmt"
	"unsafe"

	"simpleos.dev/simpleos/pkg/bits"
)

// PhysicalAddress is a physical memory address.
//
// A PhysicalAddress is never dereferenced directly. It must first be turned
// into a VirtualAddress through whatever mapping convention is in force.
type PhysicalAddress uintptr

// VirtualAddress is a virtual memory address.
type VirtualAddress uintptr

// IsAligned returns true if p is a multiple of align, which must be a power
// of two.
//
//go:nosplit
func (p PhysicalAddress) IsAligned(align uintptr) bool {
	return bits.IsAligned(p, PhysicalAddress(align))
}

// AlignUp rounds p up to align, which must be a power of two. The result
// wraps around at the top of the address space.
//
//go:nosplit
func (p PhysicalAddress) AlignUp(align uintptr) PhysicalAddress {
	return bits.AlignUp(p, PhysicalAddress(align))
}

// AlignDown rounds p down to align, which must be a power of two.
//
//go:nosplit
func (p PhysicalAddress) AlignDown(align uintptr) PhysicalAddress {
	return bits.AlignDown(p, PhysicalAddress(align))
}

// PageOffset returns the offset of p within its base page.
//
//go:nosplit
func (p PhysicalAddress) PageOffset() uintptr {
	return uintptr(p) & (PageSize - 1)
}

// String implements fmt.Stringer.String.
func (p PhysicalAddress) String() string {
	return fmt.Sprintf("%#x", uintptr(p))
}

// IsAligned returns true if v is a multiple of align, which must be a power
// of two.
//
//go:nosplit
func (v VirtualAddress) IsAligned(align uintptr) bool {
	return bits.IsAligned(v, VirtualAddress(align))
}

// AlignUp rounds v up to align, which must be a power of two. The result
// wraps around at the top of the address space.
//
//go:nosplit
func (v VirtualAddress) AlignUp(align uintptr) VirtualAddress {
	return bits.AlignUp(v, VirtualAddress(align))
}

// AlignDown rounds v down to align, which must be a power of two.
//
//go:nosplit
func (v VirtualAddress) AlignDown(align uintptr) VirtualAddress {
	return bits.AlignDown(v, VirtualAddress(align))
}

// PageOffset returns the offset of v within its base page.
//
//go:nosplit
func (v VirtualAddress) PageOffset() uintptr {
	return uintptr(v) & (PageSize - 1)
}

// IsCanonical returns true if bits 63..47 of v are all equal.
//
//go:nosplit
func (v VirtualAddress) IsCanonical() bool {
	return v <= LowerTop || v >= UpperBottom
}

// Pointer returns v as a raw pointer.
//
// The caller must already hold a valid mapping for v. Nothing is checked.
//
//go:nosplit
func (v VirtualAddress) Pointer() unsafe.Pointer {
	return unsafe.Pointer(uintptr(v))
}

// String implements fmt.Stringer.String.
func (v VirtualAddress) String() string {
	return fmt.Sprintf("%#x", uintptr(v))
}
