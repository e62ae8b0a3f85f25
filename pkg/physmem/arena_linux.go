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

//go:build linux

package physmem

import (
	"simpleos.dev/simpleos/pkg/memutil"
)

// mapMemory maps size bytes of zeroed memory outside the Go heap.
func mapMemory(size uintptr) ([]byte, func([]byte) error, error) {
	mem, err := memutil.MapAnonymous(size)
	if err != nil {
		return nil, nil, err
	}
	return mem, memutil.UnmapSlice, nil
}

func hostAddr(mem []byte) uintptr {
	return memutil.SliceAddr(mem)
}
