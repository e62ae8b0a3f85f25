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

// Package cmd holds implementations of the bootsim commands.
package cmd

import (
	"fmt"

	"simpleos.dev/simpleos/bootsim/config"
	"simpleos.dev/simpleos/pkg/hostarch"
	"simpleos.dev/simpleos/pkg/log"
	"simpleos.dev/simpleos/pkg/physmem"
	"simpleos.dev/simpleos/pkg/ring0"
)

// machine is a simulated machine: page tables built in an arena standing in
// for physical memory. Nothing is installed in the host processor.
type machine struct {
	arena  *physmem.Arena
	kernel *ring0.Kernel
}

// newMachine builds the kernel address space described by conf.
func newMachine(conf *config.Config) (*machine, error) {
	regions, err := conf.KernelRegions()
	if err != nil {
		return nil, err
	}
	a, err := physmem.NewArena(uintptr(conf.MemoryFrames) * hostarch.PageSize)
	if err != nil {
		return nil, fmt.Errorf("creating simulated memory: %w", err)
	}
	k, err := ring0.NewKernel(ring0.KernelOpts{
		Allocator:  a,
		Memory:     a,
		PageTables: conf.PageTableOpts(),
		Regions:    regions,
		TSS:        conf.TSS,
	})
	if err != nil {
		a.Release()
		return nil, err
	}
	log.Debugf("Built layout: %d regions, %d frames in use", len(regions), a.Allocated())
	return &machine{arena: a, kernel: k}, nil
}

// release frees the page tables and the simulated memory.
func (m *machine) release() {
	m.kernel.PageTables.Release()
	if n := m.arena.Allocated(); n != 0 {
		log.Warningf("%d frames still allocated after release", n)
	}
	if err := m.arena.Release(); err != nil {
		log.Warningf("Releasing simulated memory: %v", err)
	}
}

// machineFromArgs returns the machine for the configuration passed to a
// command by Execute.
func machineFromArgs(args []any) (*config.Config, *machine, error) {
	conf := args[0].(*config.Config)
	m, err := newMachine(conf)
	return conf, m, err
}
