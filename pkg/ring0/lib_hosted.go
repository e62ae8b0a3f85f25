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

//go:build !(amd64 && baremetal)
// +build !amd64 !baremetal

package ring0

// The hosted build runs as an ordinary process, where privileged
// instructions fault. Callers must go through the function variables,
// which tests replace.

func lgdt(*[10]byte) {
	panic("lgdt requires ring 0")
}

func reloadSegments(Selector, Selector) {
	panic("segment reload requires ring 0")
}

func writeCR3(uint64) {
	panic("writing CR3 requires ring 0")
}

func invlpg(uintptr) {
	panic("invlpg requires ring 0")
}

func halt() {
	panic("hlt requires ring 0")
}
