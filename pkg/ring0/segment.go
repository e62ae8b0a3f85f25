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

package ring0

import (
	"fmt"
)

// Selector is a segment Selector: a descriptor table index shifted left by
// three, with the requested privilege level in the low two bits. Bit 2 is
// zero, selecting the GDT.
type Selector uint16

// NewSelector returns the selector for GDT slot index at privilege rpl.
func NewSelector(index int, rpl int) Selector {
	return Selector(index<<3 | rpl&3)
}

// Index returns the GDT slot the selector refers to.
func (s Selector) Index() int {
	return int(s >> 3)
}

// RPL returns the requested privilege level.
func (s Selector) RPL() int {
	return int(s & 3)
}

// String implements fmt.Stringer.
func (s Selector) String() string {
	return fmt.Sprintf("%#x", uint16(s))
}

// SegmentDescriptor is a segment descriptor in the legacy 8-byte encoding.
// In long mode the processor ignores base and limit for code and data
// segments, but they are still encoded.
type SegmentDescriptor struct {
	bits [2]uint32
}

// SegmentDescriptorFlags are typed flags within a descriptor.
type SegmentDescriptorFlags uint32

// SegmentDescriptorFlag declarations.
const (
	SegmentDescriptorAccess     SegmentDescriptorFlags = 1 << 8  // Access bit (always set).
	SegmentDescriptorWrite                             = 1 << 9  // Write permission (read for code).
	SegmentDescriptorExpandDown                        = 1 << 10 // Grows down, not used.
	SegmentDescriptorExecute                           = 1 << 11 // Execute permission.
	SegmentDescriptorSystem                            = 1 << 12 // Zero => system, 1 => user code/data.
	SegmentDescriptorPresent                           = 1 << 15 // Present.
	SegmentDescriptorAVL                               = 1 << 20 // Available.
	SegmentDescriptorLong                              = 1 << 21 // Long mode.
	SegmentDescriptorDB                                = 1 << 22 // 16 or 32-bit.
	SegmentDescriptorG                                 = 1 << 23 // Granularity: page or byte.
)

// flatLimit spans the whole 32-bit address space.
const flatLimit = 0xffffffff

// Base returns the descriptor's base linear address.
func (d *SegmentDescriptor) Base() uint32 {
	return d.bits[1]&0xFF000000 | (d.bits[1]&0x000000FF)<<16 | d.bits[0]>>16
}

// Limit returns the descriptor size.
func (d *SegmentDescriptor) Limit() uint32 {
	l := d.bits[0]&0xFFFF | d.bits[1]&0xF0000
	if d.bits[1]&uint32(SegmentDescriptorG) != 0 {
		l <<= 12
		l |= 0xFFF
	}
	return l
}

// Flags returns descriptor flags.
func (d *SegmentDescriptor) Flags() SegmentDescriptorFlags {
	return SegmentDescriptorFlags(d.bits[1] & 0x00F09F00)
}

// DPL returns the descriptor privilege level.
func (d *SegmentDescriptor) DPL() int {
	return int((d.bits[1] >> 13) & 3)
}

// Uint64 returns the descriptor as the processor reads it.
func (d *SegmentDescriptor) Uint64() uint64 {
	return uint64(d.bits[1])<<32 | uint64(d.bits[0])
}

// IsNull returns true for the null descriptor.
func (d *SegmentDescriptor) IsNull() bool {
	return d.bits[0] == 0 && d.bits[1] == 0
}

// String implements fmt.Stringer.
func (d *SegmentDescriptor) String() string {
	return fmt.Sprintf("%#016x", d.Uint64())
}

func (d *SegmentDescriptor) setNull() {
	d.bits[0] = 0
	d.bits[1] = 0
}

func (d *SegmentDescriptor) set(base, limit uint32, dpl int, flags SegmentDescriptorFlags) {
	flags |= SegmentDescriptorPresent
	if limit>>12 != 0 {
		limit >>= 12
		flags |= SegmentDescriptorG
	}
	d.bits[0] = base<<16 | limit&0xFFFF
	d.bits[1] = base&0xFF000000 | (base>>16)&0xFF | limit&0x000F0000 | uint32(flags) | uint32(dpl)<<13
}

// setCode64 sets a readable long mode code segment. DB must be clear when
// Long is set.
func (d *SegmentDescriptor) setCode64(dpl int) {
	d.set(0, flatLimit, dpl,
		SegmentDescriptorLong|
			SegmentDescriptorWrite|
			SegmentDescriptorExecute|
			SegmentDescriptorSystem)
}

func (d *SegmentDescriptor) setData(dpl int) {
	d.set(0, flatLimit, dpl,
		SegmentDescriptorDB|
			SegmentDescriptorWrite|
			SegmentDescriptorSystem)
}

// setTSS sets the low half of an available 64-bit TSS descriptor.
func (d *SegmentDescriptor) setTSS(base uint64, limit uint16) {
	d.set(uint32(base), uint32(limit), 0,
		SegmentDescriptorAccess|
			SegmentDescriptorExecute)
}

// setHi is only used for the TSS segment, which is magically 64-bits.
func (d *SegmentDescriptor) setHi(base uint32) {
	d.bits[0] = base
	d.bits[1] = 0
}
