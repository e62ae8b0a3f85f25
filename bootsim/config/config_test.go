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

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"simpleos.dev/simpleos/pkg/hostarch"
	"simpleos.dev/simpleos/pkg/memmap"
	"simpleos.dev/simpleos/pkg/ring0"
	"simpleos.dev/simpleos/pkg/ring0/pagetables"
)

func writeFile(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	c := Default()
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	regions, err := c.KernelRegions()
	if err != nil {
		t.Fatalf("KernelRegions: %v", err)
	}
	want := []ring0.Region{
		{
			Name:   "identity",
			Length: 2 << 20,
			Opts:   pagetables.MapOpts{Writable: true},
		},
		{
			Name:    "higher-half",
			Virtual: hostarch.UpperBottom,
			Length:  2 << 20,
			Opts:    pagetables.MapOpts{Writable: true, Global: true},
		},
	}
	if diff := cmp.Diff(want, regions); diff != "" {
		t.Errorf("KernelRegions mismatch (-want +got):\n%s", diff)
	}
	entries, err := c.Entries()
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if got, want := memmap.TotalUsable(entries), uint64(0x9f000+0x7ee0000); got != want {
		t.Errorf("usable memory = %#x, want %#x", got, want)
	}
}

func TestDefaultIsCopy(t *testing.T) {
	c := Default()
	c.Regions[0].Name = "changed"
	c.MemoryMap = c.MemoryMap[:1]
	if d := Default(); d.Regions[0].Name != "identity" || len(d.MemoryMap) != 6 {
		t.Errorf("changes to one Default leaked into the next: %+v", d)
	}
}

const tomlLayout = `
memory_frames = 64
huge_pages = true
tss = true

[[region]]
name = "kernel"
virtual = "0xffff_8000_0010_0000"
physical = "0x100000"
length = "1M"
writable = true
no_execute = false

[[region]]
name = "vga"
virtual = "0xb8000"
physical = "0xb8000"
length = 4096
writable = true
memory_type = "UC"
`

func TestLoadTOML(t *testing.T) {
	c, err := Load(writeFile(t, "layout.toml", tomlLayout))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.MemoryFrames != 64 || !c.HugePages || !c.TSS || c.GiantPages {
		t.Errorf("options = %+v", c)
	}
	want := []Region{
		{
			Name:     "kernel",
			Virtual:  0xffff800000100000,
			Physical: 0x100000,
			Length:   1 << 20,
			Writable: true,
		},
		{
			Name:       "vga",
			Virtual:    0xb8000,
			Physical:   0xb8000,
			Length:     4096,
			Writable:   true,
			MemoryType: "UC",
		},
	}
	if diff := cmp.Diff(want, c.Regions); diff != "" {
		t.Errorf("Regions mismatch (-want +got):\n%s", diff)
	}
	// Left out, so defaulted.
	if diff := cmp.Diff(defaults.MemoryMap, c.MemoryMap); diff != "" {
		t.Errorf("MemoryMap mismatch (-want +got):\n%s", diff)
	}
	opts, err := c.Regions[1].MapOpts()
	if err != nil || opts.MemoryType != hostarch.MemoryTypeUncached {
		t.Errorf("MapOpts() = %+v, %v", opts, err)
	}
	if got := c.PageTableOpts(); got != (pagetables.Opts{HugePages: true}) {
		t.Errorf("PageTableOpts() = %+v", got)
	}
}

const yamlLayout = `
memory_frames: 32
reclaim_tables: true
regions:
  - name: low
    virtual: 0x0
    physical: 0x0
    length: 2M
    writable: true
memory_map:
  - base: 0x0
    length: 0x9fc00
    type: usable
  - base: 0x100000
    length: 64M
    type: acpi-nvs
`

func TestLoadYAML(t *testing.T) {
	c, err := Load(writeFile(t, "layout.yaml", yamlLayout))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.MemoryFrames != 32 || !c.ReclaimTables {
		t.Errorf("options = %+v", c)
	}
	if len(c.Regions) != 1 || c.Regions[0].Length != 2<<20 {
		t.Errorf("Regions = %+v", c.Regions)
	}
	entries, err := c.Entries()
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	want := []memmap.Entry{
		{Base: 0, Length: 0x9fc00, Type: memmap.Usable},
		{Base: 0x100000, Length: 64 << 20, Type: memmap.AcpiNvs},
	}
	if diff := cmp.Diff(want, entries); diff != "" {
		t.Errorf("Entries mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadErrors(t *testing.T) {
	for _, tc := range []struct {
		name     string
		file     string
		contents string
		want     string
	}{
		{"format", "layout.json", "{}", "unsupported format"},
		{"toml unknown key", "a.toml", "frames = 3\n", "unknown keys"},
		{"yaml unknown key", "a.yml", "frames: 3\n", "not found"},
		{"bad address", "a.toml", "[[region]]\nname = \"x\"\nvirtual = \"zz\"\nlength = 4096\n", "invalid address"},
		{"bad size", "a.yaml", "regions:\n  - name: x\n    length: 2Q\n", "invalid size"},
		{"unaligned", "a.toml", "[[region]]\nname = \"x\"\nphysical = \"0x1800\"\nlength = 4096\n", "not page aligned"},
		{"empty", "a.toml", "[[region]]\nname = \"x\"\n", "is empty"},
		{"unnamed", "a.toml", "[[region]]\nlength = 4096\n", "no name"},
		{"non-canonical", "a.toml", "[[region]]\nname = \"x\"\nvirtual = \"0x800000000000\"\nlength = 4096\n", "not canonical"},
		{"memory type", "a.toml", "[[region]]\nname = \"x\"\nlength = 4096\nmemory_type = \"WC\"\n", "unknown memory type"},
		{"overlap", "a.toml", "[[region]]\nname = \"a\"\nlength = \"8K\"\n[[region]]\nname = \"b\"\nvirtual = \"0x1000\"\nlength = 4096\n", "overlap"},
		{"region type", "a.toml", "[[memory_map]]\nbase = \"0\"\nlength = 4096\ntype = \"ram\"\n", "unknown memory region type"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tc.file, tc.contents))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("Load err = %v, want %q", err, tc.want)
			}
		})
	}
}

func TestSize(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want Size
	}{
		{"4096", 4096},
		{"0x1000", 4096},
		{"4k", 4096},
		{"2M", 2 << 20},
		{"1G", 1 << 30},
		{" 0x2M ", 2 << 20},
	} {
		var s Size
		if err := s.UnmarshalText([]byte(tc.in)); err != nil || s != tc.want {
			t.Errorf("Size(%q) = %#x, %v; want %#x", tc.in, uint64(s), err, uint64(tc.want))
		}
	}
	var s Size
	if err := s.UnmarshalText([]byte("0xffffffffffffG")); err == nil {
		t.Errorf("overflowing size accepted")
	}
}
