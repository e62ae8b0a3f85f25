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

// Package pagetables provides a generic implementation of x86_64 four-level
// page tables.
//
// The tables live in physical frames supplied by a FrameAllocator and are
// reached through a PhysicalMemory convention. All operations are
// single-threaded: callers serialize access to a PageTables.
package pagetables

import (
	"time"

	"simpleos.dev/simpleos/pkg/errors/pagingerr"
	"simpleos.dev/simpleos/pkg/hostarch"
	"simpleos.dev/simpleos/pkg/log"
)

// oomLog reports allocator exhaustion without flooding a retry loop.
var oomLog = log.BasicRateLimitedLogger(time.Second)

// Table is a handle to one page table in the hierarchy.
type Table struct {
	// Physical is the frame holding the table.
	Physical hostarch.PhysicalAddress

	// Level is the level of the entries in the table.
	Level Level
}

// RootTable returns a handle for a PML4 table at p.
func RootTable(p hostarch.PhysicalAddress) Table {
	return Table{Physical: p, Level: LevelPML4E}
}

// Opts are page table options.
type Opts struct {
	// ReclaimTables frees an intermediate table, and clears the entry
	// pointing at it, as soon as an unmap leaves it empty.
	ReclaimTables bool

	// DisableNX drops NoExecute requests, for processors without
	// EFER.NXE. Bit 63 is reserved there and would fault.
	DisableNX bool

	// HugePages lets MapRange use 2 MiB leaves.
	HugePages bool

	// GiantPages lets MapRange use 1 GiB leaves.
	GiantPages bool
}

// Stats count table frames moving through the allocator.
type Stats struct {
	// TablesAllocated is the number of table frames obtained.
	TablesAllocated uint64

	// TablesFreed is the number of table frames returned.
	TablesFreed uint64
}

// Live returns the number of table frames currently held.
func (s Stats) Live() uint64 {
	return s.TablesAllocated - s.TablesFreed
}

// PageTables is a page table hierarchy rooted at a PML4 table.
type PageTables struct {
	// allocator supplies and reclaims table frames.
	allocator FrameAllocator

	// memory locates tables by physical address.
	memory PhysicalMemory

	// root is the PML4 table.
	root Table

	opts  Opts
	stats Stats
}

// New returns page tables over an existing root, typically the one set up by
// the boot environment. The root is used as is and not cleared.
func New(root Table, allocator FrameAllocator, memory PhysicalMemory, opts Opts) (*PageTables, error) {
	if !root.Level.IsHighest() {
		return nil, pagingerr.ErrNotRootTable
	}
	if !root.Physical.IsAligned(hostarch.PageSize) {
		return nil, pagingerr.ErrInvalidAlignment
	}
	return &PageTables{
		allocator: allocator,
		memory:    memory,
		root:      root,
		opts:      opts,
	}, nil
}

// NewRoot returns empty page tables with a freshly allocated root.
func NewRoot(allocator FrameAllocator, memory PhysicalMemory, opts Opts) (*PageTables, error) {
	p := &PageTables{
		allocator: allocator,
		memory:    memory,
		opts:      opts,
	}
	phys, _, err := p.allocTable()
	if err != nil {
		return nil, err
	}
	p.root = RootTable(phys)
	return p, nil
}

// Root returns the root table.
func (p *PageTables) Root() Table {
	return p.root
}

// Stats returns table allocation counters.
func (p *PageTables) Stats() Stats {
	return p.stats
}

// CR3 returns the CR3 value for these tables. PCIDs are not used.
//
//go:nosplit
func (p *PageTables) CR3() uint64 {
	return uint64(p.root.Physical)
}

// tableAt returns the table held in frame phys.
//
//go:nosplit
func (p *PageTables) tableAt(phys hostarch.PhysicalAddress) *PTEs {
	return (*PTEs)(p.memory.PhysToVirt(phys).Pointer())
}

// rootTable returns the root table.
//
//go:nosplit
func (p *PageTables) rootTable() *PTEs {
	return p.tableAt(p.root.Physical)
}

// allocTable obtains a frame from the allocator and zeroes it. Frames come
// with no zeroing guarantee.
func (p *PageTables) allocTable() (hostarch.PhysicalAddress, *PTEs, error) {
	phys, ok := p.allocator.AllocateFrame()
	if !ok {
		oomLog.Warningf("Page table allocation failed: frame allocator exhausted (%d tables held)", p.stats.Live())
		return 0, nil, pagingerr.ErrOutOfMemory
	}
	if !phys.IsAligned(hostarch.PageSize) {
		p.allocator.DeallocateFrame(phys)
		return 0, nil, pagingerr.ErrInvalidAlignment
	}
	t := p.tableAt(phys)
	*t = PTEs{}
	p.stats.TablesAllocated++
	if log.IsLogging(log.Debug) {
		log.Debugf("Allocated page table at %v", phys)
	}
	return phys, t, nil
}

// freeTable returns a table frame to the allocator.
func (p *PageTables) freeTable(phys hostarch.PhysicalAddress) {
	p.allocator.DeallocateFrame(phys)
	p.stats.TablesFreed++
	if log.IsLogging(log.Debug) {
		log.Debugf("Freed page table at %v", phys)
	}
}

// releaseTable frees the table at phys, whose entries are at level, and
// every table below it. Leaf frames are not touched.
func (p *PageTables) releaseTable(phys hostarch.PhysicalAddress, level Level) {
	if lower, ok := level.NextLower(); ok {
		t := p.tableAt(phys)
		for i := range t {
			e := t[i]
			if !e.IsPresent() || (level.canBeLeaf() && e.IsHuge()) {
				continue
			}
			p.releaseTable(e.Frame(), lower)
		}
	}
	p.freeTable(phys)
}

// descend returns the sub-table that entry, at level, points to.
//
// An absent entry yields ErrNoMapping unless alloc is set, in which case a
// zeroed table is linked in. An entry mapping a huge page yields
// ErrNotATable.
func (p *PageTables) descend(entry *PTE, level Level, alloc bool, userAccess bool) (*PTEs, error) {
	switch {
	case !entry.IsPresent():
		if !alloc {
			return nil, pagingerr.ErrNoMapping
		}
		phys, t, err := p.allocTable()
		if err != nil {
			return nil, err
		}
		entry.setTable(phys, userAccess)
		return t, nil
	case level.canBeLeaf() && entry.IsHuge():
		return nil, pagingerr.ErrNotATable
	default:
		if userAccess && !entry.IsUser() {
			entry.SetUser(true)
		}
		return p.tableAt(entry.Frame()), nil
	}
}

// Map maps the page of the given size at addr to frame.
//
// addr and frame must both be aligned to size. Intermediate tables are
// allocated as needed; on failure, tables already linked in stay in place.
//
// An existing mapping at addr is replaced and returned. If a huge page
// replaces a sub-table, the sub-table and everything below it are freed.
// The caller must invalidate the TLB for a replaced present entry.
func (p *PageTables) Map(addr hostarch.VirtualAddress, frame hostarch.PhysicalAddress, size Size, opts MapOpts) (PTE, error) {
	leaf, ok := size.Level()
	if !ok || !addr.IsAligned(uintptr(size)) || !frame.IsAligned(uintptr(size)) {
		return 0, pagingerr.ErrInvalidAlignment
	}
	if p.opts.DisableNX {
		opts.NoExecute = false
	}

	table := p.rootTable()
	for level := p.root.Level; level != leaf; {
		next, err := p.descend(&table[level.Index(addr)], level, true, opts.User)
		if err != nil {
			return 0, err
		}
		table = next
		level, _ = level.NextLower()
	}

	entry := &table[leaf.Index(addr)]
	old := *entry
	if old.IsPresent() && !leaf.IsLowest() && !old.IsHuge() {
		lower, _ := leaf.NextLower()
		p.releaseTable(old.Frame(), lower)
	}
	entry.Set(frame, opts, !leaf.IsLowest())
	return old, nil
}

// Unmap removes the page of the given size mapped at addr and returns the
// entry that mapped it.
//
// If ReclaimTables is set, intermediate tables left empty are freed,
// walking upward. The root is never freed. The caller must invalidate the
// TLB for the returned entry.
func (p *PageTables) Unmap(addr hostarch.VirtualAddress, size Size) (PTE, error) {
	leaf, ok := size.Level()
	if !ok || !addr.IsAligned(uintptr(size)) {
		return 0, pagingerr.ErrInvalidAlignment
	}

	// tables[i] is the table visited at depth i; parents[i] is the entry
	// that points to it.
	var (
		tables  [numLevels]*PTEs
		parents [numLevels]*PTE
		depth   int
	)
	tables[0] = p.rootTable()
	for level := p.root.Level; level != leaf; depth++ {
		entry := &tables[depth][level.Index(addr)]
		next, err := p.descend(entry, level, false, false)
		if err != nil {
			return 0, err
		}
		tables[depth+1] = next
		parents[depth+1] = entry
		level, _ = level.NextLower()
	}

	entry := &tables[depth][leaf.Index(addr)]
	if !entry.IsPresent() {
		return 0, pagingerr.ErrNoMapping
	}
	if !leaf.IsLowest() && !entry.IsHuge() {
		// A sub-table, not a page of the requested size.
		return 0, pagingerr.ErrNoMapping
	}
	old := *entry
	entry.Clear()

	if p.opts.ReclaimTables {
		for ; depth > 0 && tables[depth].IsUnused(); depth-- {
			phys := parents[depth].Frame()
			parents[depth].Clear()
			p.freeTable(phys)
		}
	}
	return old, nil
}

// Lookup returns the leaf entry covering addr and the level it was found at.
func (p *PageTables) Lookup(addr hostarch.VirtualAddress) (PTE, Level, error) {
	table := p.rootTable()
	level := p.root.Level
	for {
		entry := &table[level.Index(addr)]
		if !entry.IsPresent() {
			return 0, level, pagingerr.ErrNoMapping
		}
		if level.IsLowest() || (level.canBeLeaf() && entry.IsHuge()) {
			return *entry, level, nil
		}
		table = p.tableAt(entry.Frame())
		level, _ = level.NextLower()
	}
}

// Translate returns the physical address addr maps to. The offset of addr
// within its page is carried over unchanged.
func (p *PageTables) Translate(addr hostarch.VirtualAddress) (hostarch.PhysicalAddress, error) {
	entry, level, err := p.Lookup(addr)
	if err != nil {
		return 0, err
	}
	size := uintptr(level.PageSize())
	// The frame field of a huge entry holds the PAT bit at bit 12.
	base := entry.Frame().AlignDown(size)
	return base + hostarch.PhysicalAddress(uintptr(addr)&(size-1)), nil
}

// Release frees every table, including the root, back to the allocator.
// Mapped frames are not touched. The PageTables must not be used afterwards.
func (p *PageTables) Release() {
	p.releaseTable(p.root.Physical, p.root.Level)
	p.root = Table{}
}
