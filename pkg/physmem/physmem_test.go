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
	"testing"

	"github.com/google/go-cmp/cmp"

	"simpleos.dev/simpleos/pkg/hostarch"
)

func newArena(t *testing.T, frames int) *Arena {
	t.Helper()
	a, err := NewArena(uintptr(frames) * hostarch.PageSize)
	if err != nil {
		t.Fatalf("NewArena: %v", err)
	}
	t.Cleanup(func() {
		if err := a.Release(); err != nil {
			t.Errorf("Release: %v", err)
		}
	})
	return a
}

func TestArenaAllocate(t *testing.T) {
	a := newArena(t, 4)
	var got []hostarch.PhysicalAddress
	for {
		p, ok := a.AllocateFrame()
		if !ok {
			break
		}
		got = append(got, p)
	}
	want := []hostarch.PhysicalAddress{0x0, 0x1000, 0x2000, 0x3000}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("frames mismatch (-want +got):\n%s", diff)
	}
	if n := a.Allocated(); n != 4 {
		t.Errorf("Allocated() = %d, want 4", n)
	}

	a.DeallocateFrame(0x2000)
	if p, ok := a.AllocateFrame(); !ok || p != 0x2000 {
		t.Errorf("AllocateFrame() = %v, %v; want 0x2000, true", p, ok)
	}
}

func TestArenaReserve(t *testing.T) {
	a := newArena(t, 4)
	if err := a.Reserve(0x0, 0x1001); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if p, ok := a.AllocateFrame(); !ok || p != 0x2000 {
		t.Errorf("AllocateFrame() = %v, %v; want 0x2000, true", p, ok)
	}
	if err := a.Reserve(0x3000, 0x2000); err == nil {
		t.Errorf("Reserve beyond the arena succeeded")
	}
}

func TestArenaLimit(t *testing.T) {
	a := newArena(t, 8)
	a.SetLimit(2)
	for i := 0; i < 2; i++ {
		if _, ok := a.AllocateFrame(); !ok {
			t.Fatalf("allocation %d failed under limit", i)
		}
	}
	if p, ok := a.AllocateFrame(); ok {
		t.Errorf("AllocateFrame() = %v past the limit", p)
	}
	a.SetLimit(-1)
	if _, ok := a.AllocateFrame(); !ok {
		t.Errorf("AllocateFrame() failed with no limit")
	}
}

func TestArenaPoison(t *testing.T) {
	a := newArena(t, 2)
	a.SetPoison(true)
	p, _ := a.AllocateFrame()
	for i, b := range a.Frame(p) {
		if b != poisonByte {
			t.Fatalf("byte %d of fresh frame = %#x, want %#x", i, b, poisonByte)
		}
	}
}

func TestArenaPhysToVirt(t *testing.T) {
	a := newArena(t, 2)
	a.Frame(0x1000)[8] = 0x42
	v := a.PhysToVirt(0x1008)
	if got := *(*byte)(v.Pointer()); got != 0x42 {
		t.Errorf("byte at %v = %#x, want 0x42", v, got)
	}
	if !a.PhysToVirt(0).IsAligned(hostarch.PageSize) {
		t.Errorf("arena base %v is not page aligned", a.PhysToVirt(0))
	}
}

func TestArenaDoubleFree(t *testing.T) {
	a := newArena(t, 2)
	p, _ := a.AllocateFrame()
	a.DeallocateFrame(p)
	defer func() {
		if recover() == nil {
			t.Errorf("double free did not panic")
		}
	}()
	a.DeallocateFrame(p)
}

func TestRegionAllocatorConstruction(t *testing.T) {
	r := NewRegionAllocator(
		[]Range{
			{0x0, 0x9fc00},       // Conventional memory, shrunk to 0x9f000.
			{0x100000, 0x400000}, // Extended memory.
			{0x300000, 0x500000}, // Overlaps the previous one.
			{0x800800, 0x801000}, // Less than a page once aligned.
			{0xa00000, 0xa00000}, // Empty.
		},
		[]Range{
			{0x0, 0x1},           // The real mode IVT, grown to a page.
			{0x100000, 0x180000}, // Kernel image.
		},
	)
	want := []Range{
		{0x1000, 0x9f000},
		{0x180000, 0x500000},
	}
	if diff := cmp.Diff(want, r.Ranges()); diff != "" {
		t.Errorf("ranges mismatch (-want +got):\n%s", diff)
	}
	if got, want := r.FreeBytes(), uintptr(0x9e000+0x380000); got != want {
		t.Errorf("FreeBytes() = %#x, want %#x", got, want)
	}
}

func TestRegionAllocatorCoalesce(t *testing.T) {
	r := NewRegionAllocator([]Range{{0x1000, 0x4000}}, nil)
	var frames []hostarch.PhysicalAddress
	for {
		p, ok := r.AllocateFrame()
		if !ok {
			break
		}
		frames = append(frames, p)
	}
	if diff := cmp.Diff([]hostarch.PhysicalAddress{0x1000, 0x2000, 0x3000}, frames); diff != "" {
		t.Errorf("frames mismatch (-want +got):\n%s", diff)
	}
	if r.FreeBytes() != 0 {
		t.Errorf("FreeBytes() = %#x, want 0", r.FreeBytes())
	}

	r.DeallocateFrame(0x3000)
	r.DeallocateFrame(0x1000)
	if diff := cmp.Diff([]Range{{0x1000, 0x2000}, {0x3000, 0x4000}}, r.Ranges()); diff != "" {
		t.Errorf("ranges mismatch (-want +got):\n%s", diff)
	}
	r.DeallocateFrame(0x2000)
	if diff := cmp.Diff([]Range{{0x1000, 0x4000}}, r.Ranges()); diff != "" {
		t.Errorf("ranges mismatch after coalescing (-want +got):\n%s", diff)
	}
	if r.FreeBytes() != 0x3000 {
		t.Errorf("FreeBytes() = %#x, want 0x3000", r.FreeBytes())
	}
}

func TestRegionAllocatorDoubleFree(t *testing.T) {
	r := NewRegionAllocator([]Range{{0x1000, 0x3000}}, nil)
	defer func() {
		if recover() == nil {
			t.Errorf("freeing a free frame did not panic")
		}
	}()
	r.DeallocateFrame(0x2000)
}
