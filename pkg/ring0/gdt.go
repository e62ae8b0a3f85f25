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
	"unsafe"

	"simpleos.dev/simpleos/pkg/binary"
	"simpleos.dev/simpleos/pkg/errors/pagingerr"
	"simpleos.dev/simpleos/pkg/log"
)

// GDTCapacity is the number of descriptor slots in a GDT: null, kernel code
// and data, a user code and data pair and a two-slot TSS.
const GDTCapacity = 7

// GDT is a global descriptor table with a fixed set of slots. Slot zero is
// always the null descriptor.
//
// A GDT must not be copied or moved once loaded.
type GDT struct {
	entries [GDTCapacity]SegmentDescriptor

	// n is the number of slots in use, including the null descriptor.
	n int

	// code and data are the first kernel segments added, used to reload
	// the segment registers on Load.
	code Selector
	data Selector
}

// NewGDT returns a table holding only the null descriptor.
func NewGDT() *GDT {
	g := new(GDT)
	g.entries[0].setNull()
	g.n = 1
	return g
}

// add claims the next count slots and returns the first.
func (g *GDT) add(count int) (int, error) {
	if g.n+count > len(g.entries) {
		return 0, pagingerr.ErrTableFull
	}
	i := g.n
	g.n += count
	return i, nil
}

// AddCodeSegment appends a 64-bit code segment at privilege dpl and
// returns its selector.
func (g *GDT) AddCodeSegment(dpl int) (Selector, error) {
	i, err := g.add(1)
	if err != nil {
		return 0, err
	}
	g.entries[i].setCode64(dpl)
	sel := NewSelector(i, dpl)
	if dpl == 0 && g.code == 0 {
		g.code = sel
	}
	return sel, nil
}

// AddDataSegment appends a data segment at privilege dpl and returns its
// selector.
func (g *GDT) AddDataSegment(dpl int) (Selector, error) {
	i, err := g.add(1)
	if err != nil {
		return 0, err
	}
	g.entries[i].setData(dpl)
	sel := NewSelector(i, dpl)
	if dpl == 0 && g.data == 0 {
		g.data = sel
	}
	return sel, nil
}

// AddTSS appends a 64-bit TSS descriptor, which spans two slots, and returns
// its selector.
func (g *GDT) AddTSS(base uint64, limit uint16) (Selector, error) {
	i, err := g.add(2)
	if err != nil {
		return 0, err
	}
	g.entries[i].setTSS(base, limit)
	g.entries[i+1].setHi(uint32(base >> 32))
	return NewSelector(i, 0), nil
}

// Len returns the number of slots in use.
func (g *GDT) Len() int {
	return g.n
}

// Entry returns the descriptor in slot i.
func (g *GDT) Entry(i int) SegmentDescriptor {
	if i < 0 || i >= g.n {
		panic("GDT slot out of range")
	}
	return g.entries[i]
}

// Bytes returns the in-memory image of the slots in use.
func (g *GDT) Bytes() []byte {
	return binary.Marshal(make([]byte, 0, 8*g.n), binary.LittleEndian, g.entries[:g.n])
}

// Descriptor returns the GDT base and limit.
//
//go:nosplit
func (g *GDT) Descriptor() (uint64, uint16) {
	return uint64(uintptr(unsafe.Pointer(&g.entries[0]))), uint16(8*g.n - 1)
}

// PseudoDescriptor is the 10-byte operand of lgdt.
type PseudoDescriptor struct {
	Limit uint16
	Base  uint64
}

// Bytes returns the packed form the processor reads.
func (p PseudoDescriptor) Bytes() []byte {
	return binary.Marshal(make([]byte, 0, 10), binary.LittleEndian, p)
}

// PseudoDescriptor returns the lgdt operand for g.
func (g *GDT) PseudoDescriptor() PseudoDescriptor {
	base, limit := g.Descriptor()
	return PseudoDescriptor{Limit: limit, Base: base}
}

// Selectors returns the kernel code and data selectors used by Load.
func (g *GDT) Selectors() (code, data Selector) {
	return g.code, g.data
}

// Load installs g in GDTR and, when the table has kernel code and data
// segments, reloads the segment registers from them.
//
// The contents must be final: the processor reads descriptors from the
// table on every segment load.
func (g *GDT) Load() {
	pd := g.PseudoDescriptor()
	var operand [10]byte
	copy(operand[:], pd.Bytes())
	loadGDTFn(&operand)
	log.Infof("Loaded GDT at %#x, %d entries", pd.Base, g.n)
	if g.code != 0 && g.data != 0 {
		reloadSegmentsFn(g.code, g.data)
	}
}
