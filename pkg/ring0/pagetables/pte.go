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
	"strings"
	"unsafe"

	"simpleos.dev/simpleos/pkg/bits"
	"simpleos.dev/simpleos/pkg/hostarch"
)

// Bits in page table entries.
const (
	present        = 0x001
	writable       = 0x002
	user           = 0x004
	writeThrough   = 0x008
	cacheDisable   = 0x010
	accessed       = 0x020
	dirty          = 0x040
	huge           = 0x080
	global         = 0x100
	executeDisable = 1 << 63

	// frameMask selects the physical frame, bits 12 through 51.
	frameMask = 0x000ffffffffff000
)

// entriesPerPage is the number of entries in one table.
const entriesPerPage = 512

// PTE is a page table entry, in the hardware format.
type PTE uint64

// PTEs is one page table: 512 entries filling exactly one 4 KiB frame.
type PTEs [entriesPerPage]PTE

// A table must exactly fill one frame.
var _ = [1]struct{}{}[unsafe.Sizeof(PTEs{})-hostarch.PageSize]

// IsUnused returns true if no entry in the table is present.
//
//go:nosplit
func (t *PTEs) IsUnused() bool {
	for i := range t {
		if t[i].IsPresent() {
			return false
		}
	}
	return true
}

// MapOpts are the per-mapping options a caller may request.
type MapOpts struct {
	// Writable allows writes. Reads are always allowed.
	Writable bool

	// User allows ring 3 access.
	User bool

	// NoExecute forbids instruction fetch. It requires EFER.NXE.
	NoExecute bool

	// Global keeps the translation across CR3 reloads.
	Global bool

	// MemoryType selects caching behaviour.
	MemoryType hostarch.MemoryType
}

// String returns a compact rwxug form, followed by the memory type.
func (o MapOpts) String() string {
	var b strings.Builder
	b.WriteByte('r')
	for _, f := range []struct {
		on bool
		c  byte
	}{
		{o.Writable, 'w'},
		{!o.NoExecute, 'x'},
		{o.User, 'u'},
		{o.Global, 'g'},
	} {
		if f.on {
			b.WriteByte(f.c)
		} else {
			b.WriteByte('-')
		}
	}
	b.WriteByte(' ')
	b.WriteString(o.MemoryType.ShortString())
	return b.String()
}

// IsPresent returns true if the entry is present.
//
//go:nosplit
func (p PTE) IsPresent() bool {
	return bits.IsOn64(uint64(p), present)
}

// IsWritable returns true if writes are allowed through this entry.
//
//go:nosplit
func (p PTE) IsWritable() bool {
	return bits.IsOn64(uint64(p), writable)
}

// IsUser returns true if ring 3 may use this entry.
//
//go:nosplit
func (p PTE) IsUser() bool {
	return bits.IsOn64(uint64(p), user)
}

// IsHuge returns true if the entry maps a 2 MiB or 1 GiB page. It is only
// meaningful at LevelPDE and LevelPDPTE.
//
//go:nosplit
func (p PTE) IsHuge() bool {
	return bits.IsOn64(uint64(p), huge)
}

// IsNoExecute returns true if instruction fetch is forbidden.
//
//go:nosplit
func (p PTE) IsNoExecute() bool {
	return bits.IsOn64(uint64(p), executeDisable)
}

// IsAccessed returns true if the processor has used the entry.
//
//go:nosplit
func (p PTE) IsAccessed() bool {
	return bits.IsOn64(uint64(p), accessed)
}

// IsDirty returns true if the processor has written through the entry.
//
//go:nosplit
func (p PTE) IsDirty() bool {
	return bits.IsOn64(uint64(p), dirty)
}

// Frame returns the physical frame recorded in the entry.
//
//go:nosplit
func (p PTE) Frame() hostarch.PhysicalAddress {
	return hostarch.PhysicalAddress(uint64(p) & frameMask)
}

// Opts returns the options encoded in the entry.
func (p PTE) Opts() MapOpts {
	o := MapOpts{
		Writable:  p.IsWritable(),
		User:      p.IsUser(),
		NoExecute: p.IsNoExecute(),
		Global:    bits.IsOn64(uint64(p), global),
	}
	switch {
	case bits.IsOn64(uint64(p), cacheDisable|writeThrough):
		o.MemoryType = hostarch.MemoryTypeUncached
	case bits.IsOn64(uint64(p), writeThrough):
		o.MemoryType = hostarch.MemoryTypeWriteThrough
	}
	return o
}

// SetPresent sets or clears the present bit.
//
//go:nosplit
func (p *PTE) SetPresent(on bool) {
	*p = PTE(bits.Set64(uint64(*p), present, on))
}

// SetWritable sets or clears the writable bit.
//
//go:nosplit
func (p *PTE) SetWritable(on bool) {
	*p = PTE(bits.Set64(uint64(*p), writable, on))
}

// SetUser sets or clears the user bit.
//
//go:nosplit
func (p *PTE) SetUser(on bool) {
	*p = PTE(bits.Set64(uint64(*p), user, on))
}

// SetHuge sets or clears the huge page bit.
//
//go:nosplit
func (p *PTE) SetHuge(on bool) {
	*p = PTE(bits.Set64(uint64(*p), huge, on))
}

// SetNoExecute sets or clears the execute-disable bit.
//
//go:nosplit
func (p *PTE) SetNoExecute(on bool) {
	*p = PTE(bits.Set64(uint64(*p), executeDisable, on))
}

// SetFrame records frame in the entry, leaving the flags untouched.
//
// frame must be 4 KiB aligned. Debug builds panic otherwise; release builds
// mask the stray bits.
func (p *PTE) SetFrame(frame hostarch.PhysicalAddress) {
	if checkInvariants && uint64(frame)&^frameMask != 0 {
		panic(fmt.Sprintf("frame %v is not a 4 KiB aligned physical address", frame))
	}
	*p = PTE(uint64(*p)&^frameMask | uint64(frame)&frameMask)
}

// Clear zeroes the entry. This does not release any frame it refers to.
//
//go:nosplit
func (p *PTE) Clear() {
	*p = 0
}

// Set writes a present leaf for frame with the given options. It overwrites
// all previous contents.
//
//go:nosplit
func (p *PTE) Set(frame hostarch.PhysicalAddress, opts MapOpts, isHuge bool) {
	p.Clear()
	p.SetFrame(frame)
	p.SetPresent(true)
	p.SetWritable(opts.Writable)
	p.SetUser(opts.User)
	p.SetNoExecute(opts.NoExecute)
	p.SetHuge(isHuge)
	v := uint64(*p)
	v = bits.Set64(v, global, opts.Global)
	switch opts.MemoryType {
	case hostarch.MemoryTypeWriteThrough:
		v |= writeThrough
	case hostarch.MemoryTypeUncached:
		v |= writeThrough | cacheDisable
	}
	*p = PTE(v)
}

// setTable points the entry at a sub-table. Intermediate entries are
// always present and writable; the leaf decides the final permission.
//
//go:nosplit
func (p *PTE) setTable(frame hostarch.PhysicalAddress, userAccess bool) {
	p.Clear()
	p.SetFrame(frame)
	p.SetPresent(true)
	p.SetWritable(true)
	p.SetUser(userAccess)
}

// String implements fmt.Stringer.String.
func (p PTE) String() string {
	if !p.IsPresent() {
		return "[not present]"
	}
	s := fmt.Sprintf("%v %v", p.Frame(), p.Opts())
	if p.IsHuge() {
		s += " huge"
	}
	if p.IsAccessed() {
		s += " A"
	}
	if p.IsDirty() {
		s += " D"
	}
	return s
}
