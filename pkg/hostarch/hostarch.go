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

// Package hostarch contains x86_64 address types and page geometry.
package hostarch

const (
	// PageShift is the binary log of the base page size.
	PageShift = 12

	// PageSize is the base page size, 4 KiB.
	PageSize = 1 << PageShift

	// HugePageShift is the binary log of a PDE-level large page.
	HugePageShift = 21

	// HugePageSize is the size of a PDE-level large page, 2 MiB.
	HugePageSize = 1 << HugePageShift

	// SuperPageShift is the binary log of a PDPTE-level page.
	SuperPageShift = 30

	// SuperPageSize is the size of a PDPTE-level page, 1 GiB.
	SuperPageSize = 1 << SuperPageShift

	// AddressBits is the number of implemented virtual address bits with
	// four-level paging.
	AddressBits = 48

	// LowerTop is the highest canonical address of the lower half.
	LowerTop = VirtualAddress(0x00007fffffffffff)

	// UpperBottom is the lowest canonical address of the upper half. It is
	// also the conventional higher-half base for kernel mappings.
	UpperBottom = VirtualAddress(0xffff800000000000)
)
