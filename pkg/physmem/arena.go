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

// Package physmem provides simulated physical memory and frame allocators
// for page tables.
package physmem

import (
	"fmt"

	"simpleos.dev/simpleos/pkg/bitmap"
	"simpleos.dev/simpleos/pkg/hostarch"
	"simpleos.dev/simpleos/pkg/log"
)

// poisonByte fills frames on allocation and release when poisoning is on.
const poisonByte = 0xa5

// Arena is a block of simulated physical memory. Physical address zero is
// the first byte of the block, and the whole block is reachable through
// PhysToVirt.
//
// Arena is also a FrameAllocator over its own frames, tracked in a bitmap.
type Arena struct {
	// mem is the backing memory. It never moves.
	mem []byte

	// unmap releases mem.
	unmap func([]byte) error

	// frames has a bit set for every frame handed out or reserved.
	frames bitmap.Bitmap

	// hint is where the next free frame search starts.
	hint uint32

	// limit is the number of further allocations permitted, or negative
	// for no limit.
	limit int

	// poison fills frames with poisonByte as they change hands.
	poison bool
}

// NewArena returns an arena of size bytes, rounded up to a whole page.
func NewArena(size uintptr) (*Arena, error) {
	size = uintptr(hostarch.PhysicalAddress(size).AlignUp(hostarch.PageSize))
	if size == 0 {
		return nil, fmt.Errorf("arena size must be non-zero")
	}
	n := size / hostarch.PageSize
	if n > uintptr(^uint32(0)) {
		return nil, fmt.Errorf("arena of %d frames is too large", n)
	}
	mem, unmap, err := mapMemory(size)
	if err != nil {
		return nil, err
	}
	log.Debugf("Simulated physical memory: %d frames at host %#x", n, hostAddr(mem))
	return &Arena{
		mem:    mem,
		unmap:  unmap,
		frames: bitmap.New(uint32(n)),
		limit:  -1,
	}, nil
}

// Release unmaps the arena. Nothing may touch its memory afterwards.
func (a *Arena) Release() error {
	mem := a.mem
	a.mem = nil
	return a.unmap(mem)
}

// Size returns the arena size in bytes.
func (a *Arena) Size() uintptr {
	return uintptr(len(a.mem))
}

// SetPoison turns poisoning of frames on or off.
func (a *Arena) SetPoison(on bool) {
	a.poison = on
}

// SetLimit permits only n more allocations. A negative n removes the limit.
func (a *Arena) SetLimit(n int) {
	a.limit = n
}

// Reserve marks the frames covering [start, start+length) as in use, so
// they are never handed out.
func (a *Arena) Reserve(start hostarch.PhysicalAddress, length uintptr) error {
	first := start.AlignDown(hostarch.PageSize)
	end := (start + hostarch.PhysicalAddress(length)).AlignUp(hostarch.PageSize)
	if end < first || uintptr(end) > a.Size() {
		return fmt.Errorf("reserved range [%v, %v) outside arena of %#x bytes", start, start+hostarch.PhysicalAddress(length), a.Size())
	}
	for p := first; p < end; p += hostarch.PageSize {
		a.frames.Add(frameNumber(p))
	}
	return nil
}

// AllocateFrame implements pagetables.FrameAllocator.AllocateFrame.
func (a *Arena) AllocateFrame() (hostarch.PhysicalAddress, bool) {
	if a.limit == 0 {
		return 0, false
	}
	n, err := a.frames.FirstZero(a.hint)
	if err != nil && a.hint != 0 {
		n, err = a.frames.FirstZero(0)
	}
	if err != nil {
		return 0, false
	}
	a.frames.Add(n)
	a.hint = n + 1
	if a.hint == a.frames.Size() {
		a.hint = 0
	}
	if a.limit > 0 {
		a.limit--
	}
	p := frameAddress(n)
	if a.poison {
		a.fill(p, poisonByte)
	}
	return p, true
}

// DeallocateFrame implements pagetables.FrameAllocator.DeallocateFrame.
//
// It panics on a frame that is not allocated, since that is a double free
// or a stray pointer.
func (a *Arena) DeallocateFrame(p hostarch.PhysicalAddress) {
	if !p.IsAligned(hostarch.PageSize) || uintptr(p) >= a.Size() {
		panic(fmt.Sprintf("deallocating %v outside arena of %#x bytes", p, a.Size()))
	}
	n := frameNumber(p)
	if !a.frames.IsSet(n) {
		panic(fmt.Sprintf("deallocating free frame %v", p))
	}
	a.frames.Remove(n)
	if a.poison {
		a.fill(p, poisonByte)
	}
}

// PhysToVirt implements pagetables.PhysicalMemory.PhysToVirt.
//
//go:nosplit
func (a *Arena) PhysToVirt(p hostarch.PhysicalAddress) hostarch.VirtualAddress {
	return hostarch.VirtualAddress(hostAddr(a.mem) + uintptr(p))
}

// Allocated returns the number of frames in use, including reserved ones.
func (a *Arena) Allocated() int {
	return int(a.frames.Count())
}

// AllocatedFrames returns the frames in use in increasing order.
func (a *Arena) AllocatedFrames() []hostarch.PhysicalAddress {
	ns := a.frames.ToSlice()
	out := make([]hostarch.PhysicalAddress, len(ns))
	for i, n := range ns {
		out[i] = frameAddress(n)
	}
	return out
}

// Frame returns the bytes of the frame at p.
func (a *Arena) Frame(p hostarch.PhysicalAddress) []byte {
	off := uintptr(p.AlignDown(hostarch.PageSize))
	return a.mem[off : off+hostarch.PageSize]
}

func (a *Arena) fill(p hostarch.PhysicalAddress, b byte) {
	f := a.Frame(p)
	for i := range f {
		f[i] = b
	}
}

func frameNumber(p hostarch.PhysicalAddress) uint32 {
	return uint32(p >> hostarch.PageShift)
}

func frameAddress(n uint32) hostarch.PhysicalAddress {
	return hostarch.PhysicalAddress(n) << hostarch.PageShift
}
