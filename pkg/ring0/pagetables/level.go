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
	"fmt"

	"simpleos.dev/simpleos/pkg/hostarch"
)

// Level is a level of the four-level x86_64 paging hierarchy.
//
// Levels are ordered: LevelPML4E > LevelPDPTE > LevelPDE > LevelPTE.
type Level uint8

const (
	// LevelPTE is the leaf level. Each entry maps a 4 KiB page.
	LevelPTE Level = iota + 1

	// LevelPDE is the page directory. Each entry covers 2 MiB.
	LevelPDE

	// LevelPDPTE is the page directory pointer table. Each entry covers
	// 1 GiB.
	LevelPDPTE

	// LevelPML4E is the root. Each entry covers 512 GiB.
	LevelPML4E
)

// numLevels is the depth of the hierarchy.
const numLevels = 4

const (
	// levelBits is the number of virtual address bits consumed per level.
	levelBits = 9

	// indexMask selects one index worth of bits after shifting.
	indexMask = 1<<levelBits - 1
)

// Shift returns the position of this level's index within a virtual
// address: 12, 21, 30 or 39.
//
//go:nosplit
func (l Level) Shift() uint {
	return hostarch.PageShift + uint(l-1)*levelBits
}

// IndexMask returns the mask applied to a shifted address to produce an
// index. It is the same for every level.
//
//go:nosplit
func (l Level) IndexMask() uintptr {
	return indexMask
}

// Index returns the index into a table at this level for addr. The result is
// always in [0, 511].
//
//go:nosplit
func (l Level) Index(addr hostarch.VirtualAddress) int {
	return int((uintptr(addr) >> l.Shift()) & l.IndexMask())
}

// NextLower returns the level one step closer to the leaf. It returns false
// at LevelPTE.
//
//go:nosplit
func (l Level) NextLower() (Level, bool) {
	if l.IsLowest() {
		return 0, false
	}
	return l - 1, true
}

// IsLowest returns true for the leaf level.
//
//go:nosplit
func (l Level) IsLowest() bool {
	return l == LevelPTE
}

// IsHighest returns true for the root level.
//
//go:nosplit
func (l Level) IsHighest() bool {
	return l == LevelPML4E
}

// PageSize returns the span of memory covered by one entry at this level.
//
//go:nosplit
func (l Level) PageSize() Size {
	return Size(1) << l.Shift()
}

// canBeLeaf returns true if an entry at this level may map memory directly.
//
//go:nosplit
func (l Level) canBeLeaf() bool {
	return l == LevelPTE || l == LevelPDE || l == LevelPDPTE
}

// String implements fmt.Stringer.String.
func (l Level) String() string {
	switch l {
	case LevelPTE:
		return "PTE"
	case LevelPDE:
		return "PDE"
	case LevelPDPTE:
		return "PDPTE"
	case LevelPML4E:
		return "PML4E"
	default:
		return fmt.Sprintf("Level(%d)", uint8(l))
	}
}

// Size is the size of a page that a leaf entry can map.
type Size uintptr

// Page sizes supported by four-level paging.
const (
	Size4K Size = hostarch.PageSize
	Size2M Size = hostarch.HugePageSize
	Size1G Size = hostarch.SuperPageSize
)

// Level returns the level at which a page of this size is a leaf. It
// returns false if s is not a supported page size.
func (s Size) Level() (Level, bool) {
	switch s {
	case Size4K:
		return LevelPTE, true
	case Size2M:
		return LevelPDE, true
	case Size1G:
		return LevelPDPTE, true
	default:
		return 0, false
	}
}

// String implements fmt.Stringer.String.
func (s Size) String() string {
	switch s {
	case Size4K:
		return "4K"
	case Size2M:
		return "2M"
	case Size1G:
		return "1G"
	default:
		return fmt.Sprintf("%#x", uintptr(s))
	}
}
