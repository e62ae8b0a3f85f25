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
	"unsafe"

	"simpleos.dev/simpleos/pkg/hostarch"
	"simpleos.dev/simpleos/pkg/log"
	"simpleos.dev/simpleos/pkg/ring0/pagetables"
)

// TaskState64 is a 64-bit task state structure. Only the stack pointers and
// the I/O map base are used; hardware task switching does not exist in long
// mode.
type TaskState64 struct {
	_              uint32
	rsp0Lo, rsp0Hi uint32
	rsp1Lo, rsp1Hi uint32
	rsp2Lo, rsp2Hi uint32
	_              [2]uint32
	ist1Lo, ist1Hi uint32
	ist2Lo, ist2Hi uint32
	ist3Lo, ist3Hi uint32
	ist4Lo, ist4Hi uint32
	ist5Lo, ist5Hi uint32
	ist6Lo, ist6Hi uint32
	ist7Lo, ist7Hi uint32
	_              [2]uint32
	_              uint16
	ioPerm         uint16
}

// tssLimit is the TSS limit: its size minus one.
const tssLimit = uint16(unsafe.Sizeof(TaskState64{}) - 1)

// SetStack sets the ring 0 and first interrupt stack to top.
func (t *TaskState64) SetStack(top uint64) {
	t.rsp0Lo = uint32(top)
	t.rsp0Hi = uint32(top >> 32)
	t.ist1Lo = uint32(top)
	t.ist1Hi = uint32(top >> 32)
}

// Region is a range of physical memory mapped into the kernel.
type Region struct {
	// Name describes the region in errors and logs.
	Name string

	// Virtual is where the region appears.
	Virtual hostarch.VirtualAddress

	// Physical is the start of the backing memory.
	Physical hostarch.PhysicalAddress

	// Length is the size of the region in bytes.
	Length uintptr

	// Opts are the mapping permissions.
	Opts pagetables.MapOpts
}

// String implements fmt.Stringer.
func (r Region) String() string {
	return fmt.Sprintf("%s: %v-%v -> %v (%s)", r.Name, r.Virtual, r.Virtual+hostarch.VirtualAddress(r.Length), r.Physical, r.Opts)
}

// KernelOpts has initialization options for the kernel.
type KernelOpts struct {
	// Allocator supplies page table frames; this must be provided.
	Allocator pagetables.FrameAllocator

	// Memory reaches page tables by physical address; this must be
	// provided.
	Memory pagetables.PhysicalMemory

	// PageTables are the page table options.
	PageTables pagetables.Opts

	// Regions are mapped in order.
	Regions []Region

	// TSS adds a task state segment to the GDT.
	TSS bool

	// StackTop is the ring 0 stack recorded in the TSS.
	StackTop uint64
}

// Kernel is the processor state established at bring-up: a GDT and the
// kernel page tables.
//
// The zero value is not usable; see NewKernel. A Kernel must not be copied:
// the GDT refers to the TSS inside it.
type Kernel struct {
	// GDT is the descriptor table.
	GDT *GDT

	// PageTables are the kernel page tables.
	PageTables *pagetables.PageTables

	// Code and Data are the kernel selectors.
	Code Selector
	Data Selector

	// TSS is the task state selector, or zero.
	TSS Selector

	tss TaskState64

	// active is set once the GDT and page tables are installed. From then
	// on, changes to present mappings flush the TLB.
	active bool
}

// NewKernel builds the GDT and page tables described by opts. Nothing is
// installed in the processor; see Activate.
func NewKernel(opts KernelOpts) (*Kernel, error) {
	k := &Kernel{GDT: NewGDT()}
	var err error
	if k.Code, err = k.GDT.AddCodeSegment(0); err != nil {
		return nil, fmt.Errorf("adding kernel code segment: %w", err)
	}
	if k.Data, err = k.GDT.AddDataSegment(0); err != nil {
		return nil, fmt.Errorf("adding kernel data segment: %w", err)
	}
	if opts.TSS {
		k.tss.SetStack(opts.StackTop)
		// Block all I/O ports.
		k.tss.ioPerm = tssLimit + 1
		if k.TSS, err = k.GDT.AddTSS(uint64(uintptr(unsafe.Pointer(&k.tss))), tssLimit); err != nil {
			return nil, fmt.Errorf("adding TSS: %w", err)
		}
	}

	if k.PageTables, err = pagetables.NewRoot(opts.Allocator, opts.Memory, opts.PageTables); err != nil {
		return nil, fmt.Errorf("allocating root page table: %w", err)
	}
	for _, r := range opts.Regions {
		if err := k.PageTables.MapRange(r.Virtual, r.Physical, r.Length, r.Opts); err != nil {
			return nil, fmt.Errorf("mapping %s: %w", r, err)
		}
		log.Infof("Mapped %s", r)
	}
	return k, nil
}

// Activate loads the GDT and then installs the page tables. The GDT goes
// first: the segment reload must not depend on mappings the new tables
// may lack.
func (k *Kernel) Activate() {
	k.GDT.Load()
	writeCR3Fn(k.PageTables.CR3())
	log.Infof("Installed page tables, CR3 %#x", k.PageTables.CR3())
	k.active = true
}

// Active returns true once Activate has run.
func (k *Kernel) Active() bool {
	return k.active
}

// Map maps a single page. On an active kernel, a replaced mapping is
// flushed from the TLB. A huge page that replaces a sub-table flushes every
// base page it covers, since any of them may be cached.
func (k *Kernel) Map(addr hostarch.VirtualAddress, frame hostarch.PhysicalAddress, size pagetables.Size, opts pagetables.MapOpts) error {
	old, err := k.PageTables.Map(addr, frame, size, opts)
	if err != nil {
		return err
	}
	if !k.active || !old.IsPresent() {
		return nil
	}
	if size == pagetables.Size4K || old.IsHuge() {
		invlpgFn(uintptr(addr))
		return nil
	}
	// Global entries survive a CR3 reload, so flush page by page.
	for off := uintptr(0); off < uintptr(size); off += hostarch.PageSize {
		invlpgFn(uintptr(addr) + off)
	}
	return nil
}

// Unmap removes a single page. On an active kernel, it is flushed from the
// TLB.
func (k *Kernel) Unmap(addr hostarch.VirtualAddress, size pagetables.Size) error {
	if _, err := k.PageTables.Unmap(addr, size); err != nil {
		return err
	}
	if k.active {
		invlpgFn(uintptr(addr))
	}
	return nil
}

// BringUp builds and activates a kernel. Any failure is fatal: it is
// logged and the processor halted, since nothing can run without a
// complete address space.
func BringUp(opts KernelOpts) *Kernel {
	k, err := NewKernel(opts)
	if err != nil {
		log.Warningf("Kernel bring-up failed: %v", err)
		Halt()
		return nil
	}
	k.Activate()
	return k
}

// Halt halts execution. On bare metal it does not return.
func Halt() {
	haltFn()
}
