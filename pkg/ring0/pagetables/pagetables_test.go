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
	"testing"

	"github.com/google/go-cmp/cmp"

	"simpleos.dev/simpleos/pkg/errors/pagingerr"
	"simpleos.dev/simpleos/pkg/hostarch"
	"simpleos.dev/simpleos/pkg/physmem"
)

// testFrames is the size of the simulated memory used by most tests.
const testFrames = 64

type mapping struct {
	Addr  hostarch.VirtualAddress
	Size  Size
	Frame hostarch.PhysicalAddress
	Opts  MapOpts
}

func checkMappings(t *testing.T, pt *PageTables, want []mapping) {
	t.Helper()
	var got []mapping
	pt.ForEach(func(addr hostarch.VirtualAddress, e PTE, size Size) bool {
		got = append(got, mapping{
			Addr:  addr,
			Size:  size,
			Frame: e.Frame(),
			Opts:  e.Opts(),
		})
		return true
	})
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mappings mismatch (-want +got):\n%s", diff)
	}
}

// newTestTables returns empty page tables over a fresh arena.
func newTestTables(t *testing.T, frames int, opts Opts) (*PageTables, *physmem.Arena) {
	t.Helper()
	a, err := physmem.NewArena(uintptr(frames) * hostarch.PageSize)
	if err != nil {
		t.Fatalf("NewArena: %v", err)
	}
	t.Cleanup(func() { a.Release() })
	// Dirty frames prove tables are zeroed by the engine.
	a.SetPoison(true)
	pt, err := NewRoot(a, a, opts)
	if err != nil {
		t.Fatalf("NewRoot: %v", err)
	}
	return pt, a
}

func mustMap(t *testing.T, pt *PageTables, addr hostarch.VirtualAddress, frame hostarch.PhysicalAddress, size Size, opts MapOpts) {
	t.Helper()
	if _, err := pt.Map(addr, frame, size, opts); err != nil {
		t.Fatalf("Map(%v, %v, %v): %v", addr, frame, size, err)
	}
}

func TestMapTranslate(t *testing.T) {
	pt, _ := newTestTables(t, testFrames, Opts{})
	rw := MapOpts{Writable: true}
	mustMap(t, pt, 0x1000, 0x200000, Size4K, rw)

	for _, tc := range []struct {
		addr hostarch.VirtualAddress
		want hostarch.PhysicalAddress
	}{
		{0x1000, 0x200000},
		{0x1fff, 0x200fff},
		{0x1234, 0x200234},
	} {
		got, err := pt.Translate(tc.addr)
		if err != nil || got != tc.want {
			t.Errorf("Translate(%v) = %v, %v; want %v, nil", tc.addr, got, err, tc.want)
		}
	}
	if _, err := pt.Translate(0x2000); !pagingerr.Equals(pagingerr.ErrNoMapping, err) {
		t.Errorf("Translate(0x2000) err = %v, want %v", err, pagingerr.ErrNoMapping)
	}
	checkMappings(t, pt, []mapping{
		{0x1000, Size4K, 0x200000, rw},
	})
}

func TestSignExtend(t *testing.T) {
	for _, tc := range []struct {
		addr uintptr
		want hostarch.VirtualAddress
	}{
		{0, 0},
		{0x7fffffffffff, 0x7fffffffffff},
		{0x800000000000, hostarch.UpperBottom},
		{0xffffffffffff, 0xffffffffffffffff},
	} {
		if got := signExtend(tc.addr); got != tc.want {
			t.Errorf("signExtend(%#x) = %v, want %v", tc.addr, got, tc.want)
		}
	}
}

func TestReadOnly(t *testing.T) {
	pt, _ := newTestTables(t, testFrames, Opts{})
	mustMap(t, pt, 0x400000, 0x2a000, Size4K, MapOpts{})

	e, level, err := pt.Lookup(0x400000)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if level != LevelPTE || e.IsWritable() || !e.IsPresent() {
		t.Errorf("Lookup = %v at %v, want read-only PTE", e, level)
	}
}

func TestSerialEntries(t *testing.T) {
	pt, a := newTestTables(t, testFrames, Opts{})
	rw := MapOpts{Writable: true}
	mustMap(t, pt, 0x400000, 0x2a000, Size4K, rw)
	mustMap(t, pt, 0x401000, 0x2f000, Size4K, rw)

	checkMappings(t, pt, []mapping{
		{0x400000, Size4K, 0x2a000, rw},
		{0x401000, Size4K, 0x2f000, rw},
	})
	// Root, PDPT, PD and one PT.
	if got := a.Allocated(); got != 4 {
		t.Errorf("Allocated() = %d, want 4", got)
	}
	if got := pt.Stats().Live(); got != 4 {
		t.Errorf("Stats().Live() = %d, want 4", got)
	}
}

func TestSpanningEntries(t *testing.T) {
	pt, _ := newTestTables(t, testFrames, Opts{})
	ro := MapOpts{NoExecute: true}
	// These straddle a PML4 boundary.
	mustMap(t, pt, 0x7fffffffe000, 0x2a000, Size4K, ro)
	mustMap(t, pt, 0x8000000000, 0x2b000, Size4K, ro)

	checkMappings(t, pt, []mapping{
		{0x8000000000, Size4K, 0x2b000, ro},
		{0x7fffffffe000, Size4K, 0x2a000, ro},
	})
}

func TestHigherHalf(t *testing.T) {
	pt, _ := newTestTables(t, testFrames, Opts{})
	rw := MapOpts{Writable: true, Global: true}
	mustMap(t, pt, hostarch.UpperBottom+0x100000, 0x100000, Size4K, rw)
	mustMap(t, pt, 0x100000, 0x100000, Size4K, rw)

	// Upper half addresses come back in canonical form, after the lower half.
	checkMappings(t, pt, []mapping{
		{0x100000, Size4K, 0x100000, rw},
		{hostarch.UpperBottom + 0x100000, Size4K, 0x100000, rw},
	})
	got, err := pt.Translate(hostarch.UpperBottom + 0x100abc)
	if err != nil || got != 0x100abc {
		t.Errorf("Translate = %v, %v; want 0x100abc, nil", got, err)
	}
}

func TestOverwrite(t *testing.T) {
	pt, a := newTestTables(t, testFrames, Opts{})
	mustMap(t, pt, 0x1000, 0x200000, Size4K, MapOpts{})
	before := a.Allocated()

	old, err := pt.Map(0x1000, 0x300000, Size4K, MapOpts{Writable: true})
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	if !old.IsPresent() || old.Frame() != 0x200000 {
		t.Errorf("Map returned previous entry %v, want frame 0x200000", old)
	}
	if got, _ := pt.Translate(0x1000); got != 0x300000 {
		t.Errorf("Translate(0x1000) = %v, want 0x300000", got)
	}
	if a.Allocated() != before {
		t.Errorf("overwrite allocated %d more frames", a.Allocated()-before)
	}

	// A first mapping reports no previous entry.
	old, err = pt.Map(0x2000, 0x300000, Size4K, MapOpts{})
	if err != nil || old.IsPresent() {
		t.Errorf("Map(0x2000) = %v, %v; want empty entry", old, err)
	}
}

func TestUnmap(t *testing.T) {
	pt, _ := newTestTables(t, testFrames, Opts{})
	mustMap(t, pt, 0x400000, 0x2a000, Size4K, MapOpts{Writable: true})

	old, err := pt.Unmap(0x400000, Size4K)
	if err != nil {
		t.Fatalf("Unmap: %v", err)
	}
	if old.Frame() != 0x2a000 {
		t.Errorf("Unmap returned %v, want frame 0x2a000", old)
	}
	checkMappings(t, pt, nil)

	if _, err := pt.Translate(0x400000); !pagingerr.Equals(pagingerr.ErrNoMapping, err) {
		t.Errorf("Translate after Unmap err = %v, want %v", err, pagingerr.ErrNoMapping)
	}
}

func TestUnmapNoMapping(t *testing.T) {
	pt, _ := newTestTables(t, testFrames, Opts{})
	for _, addr := range []hostarch.VirtualAddress{0x0, 0x400000, hostarch.UpperBottom} {
		if _, err := pt.Unmap(addr, Size4K); !pagingerr.Equals(pagingerr.ErrNoMapping, err) {
			t.Errorf("Unmap(%v) err = %v, want %v", addr, err, pagingerr.ErrNoMapping)
		}
	}

	// Intermediate tables exist but the leaf does not.
	mustMap(t, pt, 0x400000, 0x2a000, Size4K, MapOpts{})
	if _, err := pt.Unmap(0x401000, Size4K); !pagingerr.Equals(pagingerr.ErrNoMapping, err) {
		t.Errorf("Unmap(0x401000) err = %v, want %v", err, pagingerr.ErrNoMapping)
	}
	// Unmapping twice.
	if _, err := pt.Unmap(0x400000, Size4K); err != nil {
		t.Fatalf("Unmap: %v", err)
	}
	if _, err := pt.Unmap(0x400000, Size4K); !pagingerr.Equals(pagingerr.ErrNoMapping, err) {
		t.Errorf("second Unmap err = %v, want %v", err, pagingerr.ErrNoMapping)
	}
}

func TestUnmapLeavesTableUnused(t *testing.T) {
	pt, a := newTestTables(t, testFrames, Opts{})
	const base = 0x600000
	for i := 0; i < 8; i++ {
		addr := hostarch.VirtualAddress(base + i*hostarch.PageSize)
		mustMap(t, pt, addr, hostarch.PhysicalAddress(0x100000+i*hostarch.PageSize), Size4K, MapOpts{})
	}

	// Find the PT holding the leaves through the PDE that points at it.
	pde, level, err := lookupLevel(pt, base, LevelPDE)
	if err != nil || level != LevelPDE {
		t.Fatalf("PDE lookup = %v at %v, %v", pde, level, err)
	}
	table := (*PTEs)(a.PhysToVirt(pde.Frame()).Pointer())
	if table.IsUnused() {
		t.Fatalf("PT is unused while mapped")
	}

	for i := 0; i < 8; i++ {
		if _, err := pt.Unmap(hostarch.VirtualAddress(base+i*hostarch.PageSize), Size4K); err != nil {
			t.Fatalf("Unmap %d: %v", i, err)
		}
	}
	if !table.IsUnused() {
		t.Errorf("PT is still in use after every leaf was unmapped")
	}
	// Without reclamation the table stays linked.
	if got := pt.Stats().Live(); got != 4 {
		t.Errorf("Stats().Live() = %d, want 4", got)
	}
}

// lookupLevel returns the entry for addr at the given level.
func lookupLevel(pt *PageTables, addr hostarch.VirtualAddress, want Level) (PTE, Level, error) {
	table := pt.rootTable()
	level := pt.root.Level
	for {
		e := table[level.Index(addr)]
		if level == want || !e.IsPresent() {
			return e, level, nil
		}
		table = pt.tableAt(e.Frame())
		level, _ = level.NextLower()
	}
}

func TestReclaimTables(t *testing.T) {
	pt, a := newTestTables(t, testFrames, Opts{ReclaimTables: true})
	mustMap(t, pt, 0x400000, 0x2a000, Size4K, MapOpts{})
	mustMap(t, pt, 0x401000, 0x2b000, Size4K, MapOpts{})
	if got := a.Allocated(); got != 4 {
		t.Fatalf("Allocated() = %d, want 4", got)
	}

	// One leaf left: nothing reclaimed.
	if _, err := pt.Unmap(0x400000, Size4K); err != nil {
		t.Fatalf("Unmap: %v", err)
	}
	if got := a.Allocated(); got != 4 {
		t.Errorf("Allocated() = %d after first unmap, want 4", got)
	}

	// Last leaf: PT, PD and PDPT all go, the root stays.
	if _, err := pt.Unmap(0x401000, Size4K); err != nil {
		t.Fatalf("Unmap: %v", err)
	}
	if got := a.Allocated(); got != 1 {
		t.Errorf("Allocated() = %d after last unmap, want 1", got)
	}
	if !pt.rootTable().IsUnused() {
		t.Errorf("root still has present entries")
	}
	if s := pt.Stats(); s.TablesAllocated != 4 || s.TablesFreed != 3 {
		t.Errorf("Stats() = %+v, want 4 allocated and 3 freed", s)
	}

	// A later map allocates cleanly.
	mustMap(t, pt, 0x400000, 0x2a000, Size4K, MapOpts{})
	checkMappings(t, pt, []mapping{{0x400000, Size4K, 0x2a000, MapOpts{}}})
}

func TestReclaimKeepsSharedTables(t *testing.T) {
	pt, a := newTestTables(t, testFrames, Opts{ReclaimTables: true})
	// Same PD, different PTs.
	mustMap(t, pt, 0x400000, 0x2a000, Size4K, MapOpts{})
	mustMap(t, pt, 0x600000, 0x2b000, Size4K, MapOpts{})
	if got := a.Allocated(); got != 5 {
		t.Fatalf("Allocated() = %d, want 5", got)
	}
	if _, err := pt.Unmap(0x600000, Size4K); err != nil {
		t.Fatalf("Unmap: %v", err)
	}
	// Only the second PT goes.
	if got := a.Allocated(); got != 4 {
		t.Errorf("Allocated() = %d, want 4", got)
	}
	checkMappings(t, pt, []mapping{{0x400000, Size4K, 0x2a000, MapOpts{}}})
}

func TestOutOfMemory(t *testing.T) {
	pt, a := newTestTables(t, testFrames, Opts{})
	a.SetLimit(0)

	if _, err := pt.Map(0x1000, 0x200000, Size4K, MapOpts{Writable: true}); !pagingerr.Equals(pagingerr.ErrOutOfMemory, err) {
		t.Fatalf("Map err = %v, want %v", err, pagingerr.ErrOutOfMemory)
	}
	if !pt.rootTable().IsUnused() {
		t.Errorf("root has present entries after a failed map")
	}
	if got := pt.Stats().Live(); got != 1 {
		t.Errorf("Stats().Live() = %d, want 1", got)
	}
}

func TestOutOfMemoryKeepsPartialTables(t *testing.T) {
	pt, a := newTestTables(t, testFrames, Opts{})
	// Enough for the PDPT only.
	a.SetLimit(1)
	if _, err := pt.Map(0x1000, 0x200000, Size4K, MapOpts{}); !pagingerr.Equals(pagingerr.ErrOutOfMemory, err) {
		t.Fatalf("Map err = %v, want %v", err, pagingerr.ErrOutOfMemory)
	}
	if pt.rootTable().IsUnused() {
		t.Errorf("PDPT was rolled back")
	}

	// A retry reuses the PDPT.
	a.SetLimit(-1)
	mustMap(t, pt, 0x1000, 0x200000, Size4K, MapOpts{})
	if got := pt.Stats().TablesAllocated; got != 4 {
		t.Errorf("TablesAllocated = %d, want 4", got)
	}
}

func TestRootFromBootEnvironment(t *testing.T) {
	a, err := physmem.NewArena(testFrames * hostarch.PageSize)
	if err != nil {
		t.Fatalf("NewArena: %v", err)
	}
	defer a.Release()

	// A root handed over by the boot code, already mapping something.
	rootPhys, _ := a.AllocateFrame()
	root := (*PTEs)(a.PhysToVirt(rootPhys).Pointer())
	*root = PTEs{}

	pt, err := New(RootTable(rootPhys), a, a, Opts{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	mustMap(t, pt, 0x1000, 0x5000, Size4K, MapOpts{})
	if got := pt.CR3(); got != uint64(rootPhys) {
		t.Errorf("CR3() = %#x, want %#x", got, uint64(rootPhys))
	}

	// The same root is visible through a second handle.
	again, err := New(pt.Root(), a, a, Opts{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got, err := again.Translate(0x1000); err != nil || got != 0x5000 {
		t.Errorf("Translate through second handle = %v, %v", got, err)
	}
}

func TestNotRootTable(t *testing.T) {
	for _, level := range []Level{LevelPTE, LevelPDE, LevelPDPTE} {
		if _, err := New(Table{Physical: 0x1000, Level: level}, nil, IdentityMemory, Opts{}); !pagingerr.Equals(pagingerr.ErrNotRootTable, err) {
			t.Errorf("New(%v table) err = %v, want %v", level, err, pagingerr.ErrNotRootTable)
		}
	}
	if _, err := New(RootTable(0x1800), nil, IdentityMemory, Opts{}); !pagingerr.Equals(pagingerr.ErrInvalidAlignment, err) {
		t.Errorf("New(unaligned root) err = %v, want %v", err, pagingerr.ErrInvalidAlignment)
	}
}

func TestAlignment(t *testing.T) {
	pt, a := newTestTables(t, testFrames, Opts{})
	for _, tc := range []struct {
		addr  hostarch.VirtualAddress
		frame hostarch.PhysicalAddress
		size  Size
	}{
		{0x1001, 0x2000, Size4K},
		{0x1000, 0x2001, Size4K},
		{0x200000, 0x201000, Size2M},
		{0x201000, 0x200000, Size2M},
		{0x40000000, 0x200000, Size1G},
		{0x1000, 0x1000, Size(0x3000)},
	} {
		if _, err := pt.Map(tc.addr, tc.frame, tc.size, MapOpts{}); !pagingerr.Equals(pagingerr.ErrInvalidAlignment, err) {
			t.Errorf("Map(%v, %v, %v) err = %v, want %v", tc.addr, tc.frame, tc.size, err, pagingerr.ErrInvalidAlignment)
		}
	}
	// Nothing was allocated on the way.
	if got := a.Allocated(); got != 1 {
		t.Errorf("Allocated() = %d, want 1", got)
	}
	if _, err := pt.Unmap(0x1800, Size4K); !pagingerr.Equals(pagingerr.ErrInvalidAlignment, err) {
		t.Errorf("Unmap(0x1800) err = %v, want %v", err, pagingerr.ErrInvalidAlignment)
	}
}

func TestHugePages(t *testing.T) {
	pt, _ := newTestTables(t, testFrames, Opts{})
	rw := MapOpts{Writable: true}
	mustMap(t, pt, 0x400000, 0x2a00000, Size2M, rw)
	mustMap(t, pt, 0x80000000, 0x40000000, Size1G, rw)

	checkMappings(t, pt, []mapping{
		{0x400000, Size2M, 0x2a00000, rw},
		{0x80000000, Size1G, 0x40000000, rw},
	})
	for _, tc := range []struct {
		addr hostarch.VirtualAddress
		want hostarch.PhysicalAddress
	}{
		{0x400000, 0x2a00000},
		{0x5fffff, 0x2bfffff},
		{0x80000000, 0x40000000},
		{0xbfffffff, 0x7fffffff},
	} {
		got, err := pt.Translate(tc.addr)
		if err != nil || got != tc.want {
			t.Errorf("Translate(%v) = %v, %v; want %v, nil", tc.addr, got, err, tc.want)
		}
	}
	if _, level, _ := pt.Lookup(0x400000); level != LevelPDE {
		t.Errorf("Lookup(0x400000) level = %v, want PDE", level)
	}
}

func TestNotATable(t *testing.T) {
	pt, _ := newTestTables(t, testFrames, Opts{})
	mustMap(t, pt, 0x400000, 0x2a00000, Size2M, MapOpts{})

	// A 4K page cannot be forced under a 2M leaf.
	if _, err := pt.Map(0x401000, 0x1000, Size4K, MapOpts{}); !pagingerr.Equals(pagingerr.ErrNotATable, err) {
		t.Errorf("Map under huge page err = %v, want %v", err, pagingerr.ErrNotATable)
	}
	if _, err := pt.Unmap(0x401000, Size4K); !pagingerr.Equals(pagingerr.ErrNotATable, err) {
		t.Errorf("Unmap under huge page err = %v, want %v", err, pagingerr.ErrNotATable)
	}
	// The huge page is intact and can be removed at its own size.
	if _, err := pt.Unmap(0x400000, Size2M); err != nil {
		t.Errorf("Unmap(2M): %v", err)
	}

	// A 2M unmap over a PT finds no 2M page.
	mustMap(t, pt, 0x800000, 0x1000, Size4K, MapOpts{})
	if _, err := pt.Unmap(0x800000, Size2M); !pagingerr.Equals(pagingerr.ErrNoMapping, err) {
		t.Errorf("Unmap(2M) over a table err = %v, want %v", err, pagingerr.ErrNoMapping)
	}
}

func TestHugePageReplacesTable(t *testing.T) {
	pt, a := newTestTables(t, testFrames, Opts{})
	mustMap(t, pt, 0x200000, 0x1000, Size4K, MapOpts{})
	mustMap(t, pt, 0x201000, 0x2000, Size4K, MapOpts{})
	if got := a.Allocated(); got != 4 {
		t.Fatalf("Allocated() = %d, want 4", got)
	}

	old, err := pt.Map(0x200000, 0x400000, Size2M, MapOpts{})
	if err != nil {
		t.Fatalf("Map(2M): %v", err)
	}
	if !old.IsPresent() || old.IsHuge() {
		t.Errorf("Map returned %v, want the table entry", old)
	}
	// The PT was freed.
	if got := a.Allocated(); got != 3 {
		t.Errorf("Allocated() = %d, want 3", got)
	}
	checkMappings(t, pt, []mapping{{0x200000, Size2M, 0x400000, MapOpts{}}})
}

func TestUserPropagates(t *testing.T) {
	pt, _ := newTestTables(t, testFrames, Opts{})
	mustMap(t, pt, 0x400000, 0x1000, Size4K, MapOpts{})
	mustMap(t, pt, 0x401000, 0x2000, Size4K, MapOpts{User: true})

	for l := LevelPML4E; l > LevelPTE; l-- {
		e, _, _ := lookupLevel(pt, 0x401000, l)
		if !e.IsUser() || !e.IsWritable() {
			t.Errorf("%v entry %v lacks user or write access", l, e)
		}
	}
	// The leaf keeps its own permissions.
	if e, _, _ := pt.Lookup(0x400000); e.IsUser() {
		t.Errorf("kernel leaf became user: %v", e)
	}
}

func TestDisableNX(t *testing.T) {
	pt, _ := newTestTables(t, testFrames, Opts{DisableNX: true})
	mustMap(t, pt, 0x1000, 0x2000, Size4K, MapOpts{NoExecute: true})
	if e, _, _ := pt.Lookup(0x1000); e.IsNoExecute() {
		t.Errorf("NX set with DisableNX: %v", e)
	}
}

func TestMapRange(t *testing.T) {
	pt, _ := newTestTables(t, testFrames, Opts{HugePages: true})
	rw := MapOpts{Writable: true}
	// 4K, then 2M twice, then 4K.
	if err := pt.MapRange(0x1ff000, 0x1ff000, 0x402000, rw); err != nil {
		t.Fatalf("MapRange: %v", err)
	}
	checkMappings(t, pt, []mapping{
		{0x1ff000, Size4K, 0x1ff000, rw},
		{0x200000, Size2M, 0x200000, rw},
		{0x400000, Size2M, 0x400000, rw},
		{0x600000, Size4K, 0x600000, rw},
	})

	if err := pt.MapRange(0x1000, 0x2000, 0x1800, rw); !pagingerr.Equals(pagingerr.ErrInvalidAlignment, err) {
		t.Errorf("MapRange(unaligned length) err = %v, want %v", err, pagingerr.ErrInvalidAlignment)
	}
}

func TestMapRangeSmallPagesOnly(t *testing.T) {
	pt, _ := newTestTables(t, testFrames, Opts{})
	if err := pt.MapRange(0x200000, 0x200000, 0x200000, MapOpts{}); err != nil {
		t.Fatalf("MapRange: %v", err)
	}
	n := 0
	pt.ForEach(func(_ hostarch.VirtualAddress, _ PTE, size Size) bool {
		if size != Size4K {
			t.Errorf("found a %v page with huge pages off", size)
		}
		n++
		return true
	})
	if n != 512 {
		t.Errorf("found %d pages, want 512", n)
	}
}

func TestMapRangeGiantPages(t *testing.T) {
	pt, _ := newTestTables(t, testFrames, Opts{HugePages: true, GiantPages: true})
	if err := pt.MapRange(hostarch.UpperBottom, 0, 0x40200000, MapOpts{}); err != nil {
		t.Fatalf("MapRange: %v", err)
	}
	checkMappings(t, pt, []mapping{
		{hostarch.UpperBottom, Size1G, 0, MapOpts{}},
		{hostarch.UpperBottom + 0x40000000, Size2M, 0x40000000, MapOpts{}},
	})
}

func TestUnmapRange(t *testing.T) {
	pt, a := newTestTables(t, testFrames, Opts{HugePages: true, ReclaimTables: true})
	if err := pt.MapRange(0x1ff000, 0x1ff000, 0x402000, MapOpts{}); err != nil {
		t.Fatalf("MapRange: %v", err)
	}
	mustMap(t, pt, 0x40000000, 0x5000, Size4K, MapOpts{})

	// Covering only half of a huge page fails.
	if err := pt.UnmapRange(0x300000, 0x100000); !pagingerr.Equals(pagingerr.ErrInvalidAlignment, err) {
		t.Errorf("UnmapRange(half huge page) err = %v, want %v", err, pagingerr.ErrInvalidAlignment)
	}

	// The hole between 0x601000 and 0x40000000 is skipped.
	if err := pt.UnmapRange(0, 0x40001000); err != nil {
		t.Fatalf("UnmapRange: %v", err)
	}
	checkMappings(t, pt, nil)
	if got := a.Allocated(); got != 1 {
		t.Errorf("Allocated() = %d, want 1", got)
	}
}

func TestForEachStops(t *testing.T) {
	pt, _ := newTestTables(t, testFrames, Opts{})
	mustMap(t, pt, 0x1000, 0x1000, Size4K, MapOpts{})
	mustMap(t, pt, 0x2000, 0x2000, Size4K, MapOpts{})
	n := 0
	pt.ForEach(func(hostarch.VirtualAddress, PTE, Size) bool {
		n++
		return false
	})
	if n != 1 {
		t.Errorf("visited %d leaves, want 1", n)
	}
}

func TestRelease(t *testing.T) {
	pt, a := newTestTables(t, testFrames, Opts{HugePages: true})
	if err := pt.MapRange(0x1ff000, 0x1ff000, 0x402000, MapOpts{}); err != nil {
		t.Fatalf("MapRange: %v", err)
	}
	mustMap(t, pt, hostarch.UpperBottom, 0x1000, Size4K, MapOpts{})
	pt.Release()
	if got := a.Allocated(); got != 0 {
		t.Errorf("Allocated() = %d after Release, frames %v", got, a.AllocatedFrames())
	}
}

func TestOffsetMemory(t *testing.T) {
	if got := IdentityMemory.PhysToVirt(0x1000); got != 0x1000 {
		t.Errorf("IdentityMemory.PhysToVirt(0x1000) = %v", got)
	}
	if got := HigherHalfMemory.PhysToVirt(0x1000); got != hostarch.UpperBottom+0x1000 {
		t.Errorf("HigherHalfMemory.PhysToVirt(0x1000) = %v", got)
	}
}
