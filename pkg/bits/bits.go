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

// Package bits includes all bit related types and operations.
package bits

import (
	"golang.org/x/exp/constraints"
)

// IsPowerOfTwo64 returns true if v is a power of two. Zero is not.
//
//go:nosplit
func IsPowerOfTwo64(v uint64) bool {
	return v != 0 && v&(v-1) == 0
}

// AlignUp rounds a length up to an alignment. align must be a power of 2.
// The result wraps when length is within align of the top of the type.
func AlignUp[T constraints.Integer](length T, align T) T {
	return (length + align - 1) & ^(align - 1)
}

// AlignDown rounds a length down to an alignment. align must be a power of 2.
func AlignDown[T constraints.Integer](length T, align T) T {
	return length & ^(align - 1)
}

// IsAligned returns true if v is a multiple of align. align must be a power
// of 2.
func IsAligned[T constraints.Integer](v T, align T) bool {
	return v&(align-1) == 0
}

// IsOn64 returns true if *all* bits set in 'bits' are set in 'mask'.
//
//go:nosplit
func IsOn64(mask, bits uint64) bool {
	return mask&bits == bits
}

// IsAnyOn64 returns true if *any* bit set in 'bits' is set in 'mask'.
//
//go:nosplit
func IsAnyOn64(mask, bits uint64) bool {
	return mask&bits != 0
}

// Mask64 returns a uint64 with all of the given bits set.
func Mask64(is ...int) uint64 {
	ret := uint64(0)
	for _, i := range is {
		ret |= MaskOf64(i)
	}
	return ret
}

// MaskOf64 is like Mask64, but sets only a single bit (more efficiently).
//
//go:nosplit
func MaskOf64(i int) uint64 {
	return uint64(1) << uint64(i)
}

// Set64 returns mask with bits set when on is true and cleared otherwise.
//
//go:nosplit
func Set64(mask, bits uint64, on bool) uint64 {
	if on {
		return mask | bits
	}
	return mask &^ bits
}
