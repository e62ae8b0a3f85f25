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

package pagetables

import (
	"simpleos.dev/simpleos/pkg/hostarch"
)

// FrameAllocator is the source of physical frames for page tables.
type FrameAllocator interface {
	// AllocateFrame returns a free, page-aligned frame, or false if none
	// is available. The frame's contents are arbitrary.
	AllocateFrame() (hostarch.PhysicalAddress, bool)

	// DeallocateFrame returns a frame obtained from AllocateFrame.
	DeallocateFrame(hostarch.PhysicalAddress)
}

// PhysicalMemory turns the physical address of a table into a virtual
// address the walker can dereference. The boot environment establishes the
// mapping before the first call.
type PhysicalMemory interface {
	PhysToVirt(hostarch.PhysicalAddress) hostarch.VirtualAddress
}

// OffsetMemory is a PhysicalMemory where all of physical memory is visible
// at a fixed virtual offset.
type OffsetMemory uintptr

const (
	// IdentityMemory is used while low memory is identity mapped.
	IdentityMemory OffsetMemory = 0

	// HigherHalfMemory is used once physical memory is mirrored at the
	// start of the upper canonical half.
	HigherHalfMemory = OffsetMemory(hostarch.UpperBottom)
)

// PhysToVirt implements PhysicalMemory.PhysToVirt.
//
//go:nosplit
func (o OffsetMemory) PhysToVirt(p hostarch.PhysicalAddress) hostarch.VirtualAddress {
	return hostarch.VirtualAddress(uintptr(o) + uintptr(p))
}
