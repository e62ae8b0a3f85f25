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

// Package memmap decodes the BIOS E820 memory map that the bootloader leaves
// in low memory.
package memmap

import (
	"fmt"
	"sort"
	"strings"

	"simpleos.dev/simpleos/pkg/binary"
	"simpleos.dev/simpleos/pkg/hostarch"
	"simpleos.dev/simpleos/pkg/physmem"
)

// Fixed locations agreed between the bootloader and the kernel.
const (
	// DiskNumberOffset holds the BIOS drive number the system booted from.
	DiskNumberOffset hostarch.PhysicalAddress = 0x7bff

	// SecondStageOffset is where the second bootloader stage is loaded.
	SecondStageOffset hostarch.PhysicalAddress = 0x7e00

	// MapOffset is where the bootloader stores the E820 entries.
	MapOffset hostarch.PhysicalAddress = 0x8000

	// MapLength is the size of the area reserved at MapOffset.
	MapLength = 0x7fff

	// Magic is the "SMAP" signature passed to and returned by int 0x15
	// function 0xe820.
	Magic uint32 = 0x534d4150

	// KernelOffset is the kernel load address, 1 MiB.
	KernelOffset hostarch.PhysicalAddress = 0x100000

	// VGABuffer is the VGA text mode buffer.
	VGABuffer hostarch.PhysicalAddress = 0xb8000

	// VGABufferLength covers 80x25 cells of two bytes.
	VGABufferLength = 80 * 25 * 2
)

// RegionType is the type of an E820 region.
type RegionType uint32

const (
	// Usable memory is free for the kernel.
	Usable RegionType = iota + 1

	// Reserved memory must not be touched.
	Reserved

	// AcpiReclaimable memory holds ACPI tables and can be reused once they
	// are parsed.
	AcpiReclaimable

	// AcpiNvs memory must be preserved across sleep states.
	AcpiNvs

	// BadMemory was reported faulty by the firmware.
	BadMemory

	// Any value >= regionUnknown is treated as Reserved.
	regionUnknown
)

// String implements fmt.Stringer.
func (t RegionType) String() string {
	switch t {
	case Usable:
		return "usable"
	case Reserved:
		return "reserved"
	case AcpiReclaimable:
		return "ACPI (reclaimable)"
	case AcpiNvs:
		return "ACPI NVS"
	case BadMemory:
		return "bad"
	default:
		return fmt.Sprintf("unknown (%d)", uint32(t))
	}
}

// regionTypeNames are the names accepted by ParseRegionType.
var regionTypeNames = map[string]RegionType{
	"usable":           Usable,
	"reserved":         Reserved,
	"acpi-reclaimable": AcpiReclaimable,
	"acpi-nvs":         AcpiNvs,
	"bad":              BadMemory,
}

// ParseRegionType parses a region type name as used in layout files.
func ParseRegionType(s string) (RegionType, error) {
	if t, ok := regionTypeNames[strings.ToLower(s)]; ok {
		return t, nil
	}
	return 0, fmt.Errorf("unknown memory region type %q", s)
}

// Entry is one E820 region, laid out as the BIOS returns it.
type Entry struct {
	// Base is the physical start of the region.
	Base uint64

	// Length is the size of the region in bytes.
	Length uint64

	// Type is the type of the region.
	Type RegionType

	// Attributes holds the ACPI 3.0 extended attributes.
	Attributes uint32
}

// EntrySize is the size of an encoded Entry.
const EntrySize = 24

// End returns the first address past the region. It saturates instead of
// wrapping.
func (e Entry) End() uint64 {
	end := e.Base + e.Length
	if end < e.Base {
		return ^uint64(0)
	}
	return end
}

// Range returns the region as a physical range.
func (e Entry) Range() physmem.Range {
	return physmem.Range{
		Start: hostarch.PhysicalAddress(e.Base),
		End:   hostarch.PhysicalAddress(e.End()),
	}
}

// String implements fmt.Stringer.
func (e Entry) String() string {
	return fmt.Sprintf("[%#016x, %#016x) %s", e.Base, e.End(), e.Type)
}

// Visitor is invoked for each decoded entry. It returns false to stop.
type Visitor func(e Entry) bool

// Visit decodes raw E820 entries from buf and calls fn for each. Decoding
// stops at an all-zero entry or at the end of buf. Unknown types are
// reported as Reserved.
//
// A buf whose length is not a multiple of EntrySize is an error, since the
// map was cut short.
func Visit(buf []byte, fn Visitor) error {
	for len(buf) > 0 {
		var e Entry
		rest, err := binary.Unmarshal(buf, binary.LittleEndian, &e)
		if err != nil {
			return fmt.Errorf("truncated memory map entry: %w", err)
		}
		buf = rest
		if e == (Entry{}) {
			return nil
		}
		if e.Type == 0 || e.Type >= regionUnknown {
			e.Type = Reserved
		}
		if !fn(e) {
			return nil
		}
	}
	return nil
}

// Parse decodes every entry in buf. See Visit.
func Parse(buf []byte) ([]Entry, error) {
	var entries []Entry
	err := Visit(buf, func(e Entry) bool {
		entries = append(entries, e)
		return true
	})
	return entries, err
}

// Encode returns the raw form of entries, as the bootloader would store it.
func Encode(entries []Entry) []byte {
	return binary.Marshal(make([]byte, 0, len(entries)*EntrySize), binary.LittleEndian, entries)
}

// UsableRanges returns the usable regions of entries, shrunk to whole pages and
// sorted by base. Regions smaller than a page after alignment are dropped.
// Overlap with non-usable regions is left to the frame allocator, which
// takes them as reservations.
func UsableRanges(entries []Entry) []physmem.Range {
	var out []physmem.Range
	for _, e := range entries {
		if e.Type != Usable {
			continue
		}
		r := e.Range()
		r.Start = r.Start.AlignUp(hostarch.PageSize)
		r.End = r.End.AlignDown(hostarch.PageSize)
		if r.End <= r.Start || r.Start < hostarch.PhysicalAddress(e.Base) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// ReservedRanges returns every region that is not usable, sorted by base.
func ReservedRanges(entries []Entry) []physmem.Range {
	var out []physmem.Range
	for _, e := range entries {
		if e.Type == Usable || e.Length == 0 {
			continue
		}
		out = append(out, e.Range())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// TotalUsable returns the number of bytes in the usable ranges.
func TotalUsable(entries []Entry) uint64 {
	var total uint64
	for _, r := range UsableRanges(entries) {
		total += uint64(r.Length())
	}
	return total
}
