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

//go:build amd64 && baremetal
// +build amd64,baremetal

package ring0

// lgdt loads GDTR from a packed pseudo-descriptor.
func lgdt(pd *[10]byte)

// reloadSegments reloads CS with a far return and the data segment
// registers with data.
func reloadSegments(code, data Selector)

// farret is reloadSegments' far return. It must only be called from there.
func farret()

// writeCR3 installs a page table root and flushes non-global TLB entries.
func writeCR3(cr3 uint64)

// invlpg invalidates the TLB entry for addr.
func invlpg(addr uintptr)

// halt stops the processor with interrupts disabled. It does not return.
func halt()
