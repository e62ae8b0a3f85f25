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

package physmem

import (
	"fmt"

	"github.com/google/btree"

	"simpleos.dev/simpleos/pkg/hostarch"
)

// Range is the physical address range [Start, End).
type Range struct {
	Start hostarch.PhysicalAddress
	End   hostarch.PhysicalAddress
}

// Length returns the size of r in bytes.
func (r Range) Length() uintptr {
	return uintptr(r.End - r.Start)
}

// String implements fmt.Stringer.String.
func (r Range) String() string {
	return fmt.Sprintf("[%v, %v)", r.Start, r.End)
}

// pageAlignedInward shrinks r to whole pages. The result may be empty.
func (r Range) pageAlignedInward() Range {
	out := Range{Start: r.Start.AlignUp(hostarch.PageSize), End: r.End.AlignDown(hostarch.PageSize)}
	if out.End < out.Start || out.Start < r.Start {
		return Range{}
	}
	return out
}

// pageAlignedOutward grows r to whole pages.
func (r Range) pageAlignedOutward() Range {
	out := Range{Start: r.Start.AlignDown(hostarch.PageSize), End: r.End.AlignUp(hostarch.PageSize)}
	if out.End < r.End {
		// Wrapped at the top of the address space.
		out.End = hostarch.PhysicalAddress(^uintptr(0)).AlignDown(hostarch.PageSize)
	}
	return out
}

// btreeDegree is the degree of the free range tree.
const btreeDegree = 8

// RegionAllocator hands out frames from a set of free physical ranges, such
// as the usable entries of a firmware memory map. It allocates the lowest
// free frame first and coalesces frames as they are returned.
type RegionAllocator struct {
	// free holds disjoint, non-adjacent, page-aligned ranges ordered by
	// Start.
	free *btree.BTreeG[Range]

	// freeBytes is the total length of free.
	freeBytes uintptr
}

// NewRegionAllocator returns an allocator over usable, minus reserved.
// Usable ranges are shrunk to whole pages and reserved ones grown to whole
// pages. Overlapping ranges are fine.
func NewRegionAllocator(usable []Range, reserved []Range) *RegionAllocator {
	r := &RegionAllocator{
		free: btree.NewG(btreeDegree, func(a, b Range) bool { return a.Start < b.Start }),
	}
	for _, u := range usable {
		if u = u.pageAlignedInward(); u.Length() > 0 {
			r.insert(u)
		}
	}
	for _, res := range reserved {
		if res = res.pageAlignedOutward(); res.Length() > 0 {
			r.remove(res)
		}
	}
	return r
}

// overlapping returns the free ranges that overlap or touch rng.
func (r *RegionAllocator) overlapping(rng Range, touching bool) []Range {
	var out []Range
	r.free.DescendLessOrEqual(Range{Start: rng.Start}, func(prev Range) bool {
		if prev.End > rng.Start || (touching && prev.End == rng.Start) {
			out = append(out, prev)
		}
		return false
	})
	r.free.AscendGreaterOrEqual(Range{Start: rng.Start + 1}, func(next Range) bool {
		if next.Start > rng.End || (!touching && next.Start == rng.End) {
			return false
		}
		out = append(out, next)
		return true
	})
	return out
}

// insert adds rng to the free set, merging neighbours.
func (r *RegionAllocator) insert(rng Range) {
	for _, o := range r.overlapping(rng, true) {
		r.free.Delete(o)
		r.freeBytes -= o.Length()
		rng.Start = min(rng.Start, o.Start)
		rng.End = max(rng.End, o.End)
	}
	r.free.ReplaceOrInsert(rng)
	r.freeBytes += rng.Length()
}

// remove takes rng out of the free set, splitting ranges as needed.
func (r *RegionAllocator) remove(rng Range) {
	for _, o := range r.overlapping(rng, false) {
		r.free.Delete(o)
		r.freeBytes -= o.Length()
		if o.Start < rng.Start {
			left := Range{Start: o.Start, End: rng.Start}
			r.free.ReplaceOrInsert(left)
			r.freeBytes += left.Length()
		}
		if o.End > rng.End {
			right := Range{Start: rng.End, End: o.End}
			r.free.ReplaceOrInsert(right)
			r.freeBytes += right.Length()
		}
	}
}

// contains returns true if p lies in a free range.
func (r *RegionAllocator) contains(p hostarch.PhysicalAddress) bool {
	found := false
	r.free.DescendLessOrEqual(Range{Start: p}, func(prev Range) bool {
		found = p < prev.End
		return false
	})
	return found
}

// AllocateFrame implements pagetables.FrameAllocator.AllocateFrame.
func (r *RegionAllocator) AllocateFrame() (hostarch.PhysicalAddress, bool) {
	first, ok := r.free.DeleteMin()
	if !ok {
		return 0, false
	}
	p := first.Start
	if rest := (Range{Start: p + hostarch.PageSize, End: first.End}); rest.Length() > 0 {
		r.free.ReplaceOrInsert(rest)
	}
	r.freeBytes -= hostarch.PageSize
	return p, true
}

// DeallocateFrame implements pagetables.FrameAllocator.DeallocateFrame.
//
// It panics on an unaligned or already free frame.
func (r *RegionAllocator) DeallocateFrame(p hostarch.PhysicalAddress) {
	if !p.IsAligned(hostarch.PageSize) {
		panic(fmt.Sprintf("deallocating unaligned frame %v", p))
	}
	if r.contains(p) {
		panic(fmt.Sprintf("deallocating free frame %v", p))
	}
	r.insert(Range{Start: p, End: p + hostarch.PageSize})
}

// FreeBytes returns the number of free bytes.
func (r *RegionAllocator) FreeBytes() uintptr {
	return r.freeBytes
}

// Ranges returns the free ranges in increasing order.
func (r *RegionAllocator) Ranges() []Range {
	out := make([]Range, 0, r.free.Len())
	r.free.Ascend(func(rng Range) bool {
		out = append(out, rng)
		return true
	})
	return out
}
