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

// Package config provides basic infrastructure to set configuration settings
// for bootsim. A layout file describes the simulated machine: the memory the
// page tables live in, the regions the kernel maps and the firmware memory
// map.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/mohae/deepcopy"
	"gopkg.in/yaml.v3"

	"simpleos.dev/simpleos/pkg/hostarch"
	"simpleos.dev/simpleos/pkg/log"
	"simpleos.dev/simpleos/pkg/memmap"
	"simpleos.dev/simpleos/pkg/ring0"
	"simpleos.dev/simpleos/pkg/ring0/pagetables"
)

// Address is a 64-bit address. Layout files write it as a string, since
// upper half addresses do not fit in a TOML integer.
type Address uint64

// UnmarshalText implements encoding.TextUnmarshaler. Any base accepted by
// strconv.ParseUint with base 0 is allowed, as are underscores.
func (a *Address) UnmarshalText(text []byte) error {
	v, err := strconv.ParseUint(strings.TrimSpace(string(text)), 0, 64)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", text, err)
	}
	*a = Address(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(fmt.Sprintf("%#x", uint64(a))), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (a *Address) UnmarshalYAML(value *yaml.Node) error {
	return a.UnmarshalText([]byte(value.Value))
}

// sizeSuffixes are the units accepted by Size.
var sizeSuffixes = []struct {
	suffix string
	shift  uint
}{
	{"K", 10},
	{"M", 20},
	{"G", 30},
}

// Size is a length in bytes. Layout files may write it as a plain number or
// with a K, M or G suffix.
type Size uint64

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Size) UnmarshalText(text []byte) error {
	str := strings.ToUpper(strings.TrimSpace(string(text)))
	shift := uint(0)
	for _, u := range sizeSuffixes {
		if trimmed, ok := strings.CutSuffix(str, u.suffix); ok {
			str, shift = trimmed, u.shift
			break
		}
	}
	v, err := strconv.ParseUint(str, 0, 64)
	if err != nil {
		return fmt.Errorf("invalid size %q: %w", text, err)
	}
	if v<<shift>>shift != v {
		return fmt.Errorf("size %q overflows", text)
	}
	*s = Size(v << shift)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Size) UnmarshalYAML(value *yaml.Node) error {
	return s.UnmarshalText([]byte(value.Value))
}

// Region is a kernel mapping.
type Region struct {
	Name       string  `toml:"name" yaml:"name"`
	Virtual    Address `toml:"virtual" yaml:"virtual"`
	Physical   Address `toml:"physical" yaml:"physical"`
	Length     Size    `toml:"length" yaml:"length"`
	Writable   bool    `toml:"writable" yaml:"writable"`
	User       bool    `toml:"user" yaml:"user"`
	NoExecute  bool    `toml:"no_execute" yaml:"no_execute"`
	Global     bool    `toml:"global" yaml:"global"`
	MemoryType string  `toml:"memory_type" yaml:"memory_type"`
}

// MapOpts returns the mapping permissions of r.
func (r *Region) MapOpts() (pagetables.MapOpts, error) {
	mt, err := hostarch.ParseMemoryType(r.MemoryType)
	if err != nil {
		return pagetables.MapOpts{}, err
	}
	return pagetables.MapOpts{
		Writable:   r.Writable,
		User:       r.User,
		NoExecute:  r.NoExecute,
		Global:     r.Global,
		MemoryType: mt,
	}, nil
}

// MemoryRegion is an entry of the firmware memory map.
type MemoryRegion struct {
	Base   Address `toml:"base" yaml:"base"`
	Length Size    `toml:"length" yaml:"length"`
	Type   string  `toml:"type" yaml:"type"`
}

// Config holds configuration for the simulated machine.
type Config struct {
	// MemoryFrames is the number of frames of simulated physical memory
	// available for page tables.
	MemoryFrames int `toml:"memory_frames" yaml:"memory_frames"`

	// HugePages lets the layout use 2 MiB pages.
	HugePages bool `toml:"huge_pages" yaml:"huge_pages"`

	// GiantPages lets the layout use 1 GiB pages.
	GiantPages bool `toml:"giant_pages" yaml:"giant_pages"`

	// ReclaimTables frees page tables left empty by unmaps.
	ReclaimTables bool `toml:"reclaim_tables" yaml:"reclaim_tables"`

	// DisableNX models a processor without no-execute support.
	DisableNX bool `toml:"disable_nx" yaml:"disable_nx"`

	// TSS adds a task state segment to the GDT.
	TSS bool `toml:"tss" yaml:"tss"`

	// Regions are the kernel mappings, applied in order.
	Regions []Region `toml:"region" yaml:"regions"`

	// MemoryMap is the firmware memory map.
	MemoryMap []MemoryRegion `toml:"memory_map" yaml:"memory_map"`
}

// DefaultMemoryFrames is the default simulated memory size, 2 MiB.
const DefaultMemoryFrames = 512

// defaults is the stock SimpleOS layout: the low 2 MiB, which hold the VGA
// buffer and the kernel image, identity mapped and mirrored at the start of
// the upper half. The memory map is what SeaBIOS reports for 128 MiB.
var defaults = Config{
	MemoryFrames: DefaultMemoryFrames,
	Regions: []Region{
		{
			Name:     "identity",
			Length:   2 << 20,
			Writable: true,
		},
		{
			Name:     "higher-half",
			Virtual:  Address(hostarch.UpperBottom),
			Length:   2 << 20,
			Writable: true,
			Global:   true,
		},
	},
	MemoryMap: []MemoryRegion{
		{Base: 0x0, Length: 0x9fc00, Type: "usable"},
		{Base: 0x9fc00, Length: 0x400, Type: "reserved"},
		{Base: 0xf0000, Length: 0x10000, Type: "reserved"},
		{Base: 0x100000, Length: 0x7ee0000, Type: "usable"},
		{Base: 0x7fe0000, Length: 0x20000, Type: "reserved"},
		{Base: 0xfffc0000, Length: 0x40000, Type: "reserved"},
	},
}

// Default returns a copy of the stock layout. Callers may modify it.
func Default() *Config {
	return deepcopy.Copy(&defaults).(*Config)
}

// Load reads a layout file. The format follows the extension: .toml, or
// .yaml and .yml. Unknown keys are an error. Settings the file leaves out
// keep their defaults.
func Load(path string) (*Config, error) {
	var c Config
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		md, err := toml.DecodeFile(path, &c)
		if err != nil {
			return nil, fmt.Errorf("decoding %q: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("decoding %q: unknown keys %v", path, undecoded)
		}
	case ".yaml", ".yml":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("unable to open layout: %w", err)
		}
		defer f.Close()
		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(&c); err != nil {
			return nil, fmt.Errorf("decoding %q: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("layout %q: unsupported format %q, want .toml, .yaml or .yml", path, ext)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("layout %q: %w", path, err)
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	d := Default()
	if c.MemoryFrames == 0 {
		c.MemoryFrames = d.MemoryFrames
	}
	if c.Regions == nil {
		c.Regions = d.Regions
	}
	if c.MemoryMap == nil {
		c.MemoryMap = d.MemoryMap
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.MemoryFrames <= 0 {
		return fmt.Errorf("memory_frames must be positive, got %d", c.MemoryFrames)
	}
	type span struct {
		name       string
		start, end uint64
	}
	var spans []span
	for i := range c.Regions {
		r := &c.Regions[i]
		if r.Name == "" {
			return fmt.Errorf("region %d has no name", i)
		}
		if r.Length == 0 {
			return fmt.Errorf("region %q is empty", r.Name)
		}
		for _, v := range []struct {
			what  string
			value uint64
		}{
			{"virtual address", uint64(r.Virtual)},
			{"physical address", uint64(r.Physical)},
			{"length", uint64(r.Length)},
		} {
			if v.value%hostarch.PageSize != 0 {
				return fmt.Errorf("region %q: %s %#x is not page aligned", r.Name, v.what, v.value)
			}
		}
		end := uint64(r.Virtual) + uint64(r.Length) - 1
		if end < uint64(r.Virtual) {
			return fmt.Errorf("region %q wraps around the address space", r.Name)
		}
		if !hostarch.VirtualAddress(r.Virtual).IsCanonical() || !hostarch.VirtualAddress(end).IsCanonical() {
			return fmt.Errorf("region %q is not canonical", r.Name)
		}
		if _, err := r.MapOpts(); err != nil {
			return fmt.Errorf("region %q: %w", r.Name, err)
		}
		spans = append(spans, span{r.Name, uint64(r.Virtual), end})
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	for i := 1; i < len(spans); i++ {
		if spans[i].start <= spans[i-1].end {
			return fmt.Errorf("regions %q and %q overlap", spans[i-1].name, spans[i].name)
		}
	}
	if _, err := c.Entries(); err != nil {
		return err
	}
	return nil
}

// PageTableOpts returns the page table options.
func (c *Config) PageTableOpts() pagetables.Opts {
	return pagetables.Opts{
		ReclaimTables: c.ReclaimTables,
		DisableNX:     c.DisableNX,
		HugePages:     c.HugePages,
		GiantPages:    c.GiantPages,
	}
}

// KernelRegions returns the regions in the form ring0 maps them.
func (c *Config) KernelRegions() ([]ring0.Region, error) {
	out := make([]ring0.Region, 0, len(c.Regions))
	for i := range c.Regions {
		r := &c.Regions[i]
		opts, err := r.MapOpts()
		if err != nil {
			return nil, fmt.Errorf("region %q: %w", r.Name, err)
		}
		out = append(out, ring0.Region{
			Name:     r.Name,
			Virtual:  hostarch.VirtualAddress(r.Virtual),
			Physical: hostarch.PhysicalAddress(r.Physical),
			Length:   uintptr(r.Length),
			Opts:     opts,
		})
	}
	return out, nil
}

// Entries returns the memory map as E820 entries.
func (c *Config) Entries() ([]memmap.Entry, error) {
	out := make([]memmap.Entry, 0, len(c.MemoryMap))
	for i, m := range c.MemoryMap {
		t, err := memmap.ParseRegionType(m.Type)
		if err != nil {
			return nil, fmt.Errorf("memory map entry %d: %w", i, err)
		}
		out = append(out, memmap.Entry{Base: uint64(m.Base), Length: uint64(m.Length), Type: t})
	}
	return out, nil
}

// Log logs important aspects of the configuration.
func (c *Config) Log() {
	log.Infof("Config.MemoryFrames: %d", c.MemoryFrames)
	log.Infof("Config.HugePages: %t, GiantPages: %t", c.HugePages, c.GiantPages)
	log.Infof("Config.ReclaimTables: %t, DisableNX: %t, TSS: %t", c.ReclaimTables, c.DisableNX, c.TSS)
	for _, r := range c.Regions {
		log.Infof("Config.Region: %s %#x+%#x -> %#x", r.Name, uint64(r.Virtual), uint64(r.Length), uint64(r.Physical))
	}
}
