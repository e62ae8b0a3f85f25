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
	"simpleos.dev/simpleos/pkg/errors/pagingerr"
	"simpleos.dev/simpleos/pkg/hostarch"
)

// Visitor is called for each present leaf. It returns false to stop the
// walk.
type Visitor func(addr hostarch.VirtualAddress, entry PTE, size Size) bool

// signExtend returns the canonical form of a 48-bit address.
//
//go:nosplit
func signExtend(addr uintptr) hostarch.VirtualAddress {
	if addr&(1<<(hostarch.AddressBits-1)) != 0 {
		addr |= ^uintptr(1<<hostarch.AddressBits - 1)
	}
	return hostarch.VirtualAddress(addr)
}

// ForEach calls fn for every present leaf in increasing address order,
// lower half first.
func (p *PageTables) ForEach(fn Visitor) {
	p.visit(p.rootTable(), p.root.Level, 0, fn)
}

// visit walks table t, whose entries are at level and start at base.
func (p *PageTables) visit(t *PTEs, level Level, base uintptr, fn Visitor) bool {
	for i := range t {
		entry := t[i]
		if !entry.IsPresent() {
			continue
		}
		addr := base | uintptr(i)<<level.Shift()
		if level.IsLowest() || (level.canBeLeaf() && entry.IsHuge()) {
			if !fn(signExtend(addr), entry, level.PageSize()) {
				return false
			}
			continue
		}
		lower, _ := level.NextLower()
		if !p.visit(p.tableAt(entry.Frame()), lower, addr, fn) {
			return false
		}
	}
	return true
}

// pickSize returns the largest page size permitted by opts that fits at
// addr and frame within length bytes.
func (p *PageTables) pickSize(addr hostarch.VirtualAddress, frame hostarch.PhysicalAddress, length uintptr) Size {
	for _, s := range []struct {
		size    Size
		allowed bool
	}{
		{Size1G, p.opts.GiantPages},
		{Size2M, p.opts.HugePages},
	} {
		if s.allowed && length >= uintptr(s.size) && addr.IsAligned(uintptr(s.size)) && frame.IsAligned(uintptr(s.size)) {
			return s.size
		}
	}
	return Size4K
}

// MapRange maps length bytes at addr to the physically contiguous range
// starting at frame, using huge pages where the options and alignment allow.
//
// addr, frame and length must be 4 KiB aligned. The first error stops the
// walk; pages already mapped stay mapped.
func (p *PageTables) MapRange(addr hostarch.VirtualAddress, frame hostarch.PhysicalAddress, length uintptr, opts MapOpts) error {
	if !addr.IsAligned(hostarch.PageSize) || !frame.IsAligned(hostarch.PageSize) || length%hostarch.PageSize != 0 {
		return pagingerr.ErrInvalidAlignment
	}
	for length > 0 {
		size := p.pickSize(addr, frame, length)
		if _, err := p.Map(addr, frame, size, opts); err != nil {
			return err
		}
		addr += hostarch.VirtualAddress(size)
		frame += hostarch.PhysicalAddress(size)
		length -= uintptr(size)
	}
	return nil
}

// UnmapRange removes every leaf in [addr, addr+length). Holes are skipped.
// A huge page that is only partly covered yields ErrInvalidAlignment, since
// pages are never split.
func (p *PageTables) UnmapRange(addr hostarch.VirtualAddress, length uintptr) error {
	if !addr.IsAligned(hostarch.PageSize) || length%hostarch.PageSize != 0 {
		return pagingerr.ErrInvalidAlignment
	}
	for length > 0 {
		_, level, err := p.Lookup(addr)
		size := uintptr(level.PageSize())
		// Distance to the end of the region this level covers.
		step := size - uintptr(addr)&(size-1)
		if err == nil {
			if step != size || length < size {
				return pagingerr.ErrInvalidAlignment
			}
			if _, err := p.Unmap(addr, level.PageSize()); err != nil {
				return err
			}
		} else if !pagingerr.Equals(pagingerr.ErrNoMapping, err) {
			return err
		}
		if step >= length {
			return nil
		}
		addr += hostarch.VirtualAddress(step)
		length -= step
	}
	return nil
}
