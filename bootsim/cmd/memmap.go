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

package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/google/subcommands"

	"simpleos.dev/simpleos/bootsim/cmd/util"
	"simpleos.dev/simpleos/bootsim/config"
	"simpleos.dev/simpleos/pkg/hostarch"
	"simpleos.dev/simpleos/pkg/log"
	"simpleos.dev/simpleos/pkg/memmap"
	"simpleos.dev/simpleos/pkg/physmem"
	"simpleos.dev/simpleos/pkg/ring0"
)

// MemoryMap implements subcommands.Command for the "memmap" command.
type MemoryMap struct {
	write string
}

// Name implements subcommands.Command.Name.
func (*MemoryMap) Name() string {
	return "memmap"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*MemoryMap) Synopsis() string {
	return "Decode a BIOS E820 memory map and print usable memory."
}

// Usage implements subcommands.Command.Usage.
func (*MemoryMap) Usage() string {
	return `memmap [options] [FILE] - Decode the raw E820 map in FILE, or the
memory map of the configuration when FILE is not given, and print its
entries, the usable ranges and the memory left for frames once the kernel
regions are reserved.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (m *MemoryMap) SetFlags(f *flag.FlagSet) {
	f.StringVar(&m.write, "write", "", "Write the map in raw E820 form to this file.")
}

// Execute implements subcommands.Command.Execute.
func (m *MemoryMap) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() > 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	var (
		entries []memmap.Entry
		err     error
	)
	if f.NArg() == 1 {
		entries, err = readMemoryMap(f.Arg(0))
	} else {
		entries, err = conf.Entries()
	}
	if err != nil {
		util.Fatalf("reading memory map: %v", err)
	}
	if m.write != "" {
		if err := os.WriteFile(m.write, memmap.Encode(entries), 0644); err != nil {
			util.Fatalf("writing memory map: %v", err)
		}
		log.Infof("Wrote %d entries to %q", len(entries), m.write)
	}

	regions, err := conf.KernelRegions()
	if err != nil {
		util.Fatalf("%v", err)
	}
	if err := writeMemoryMap(os.Stdout, entries, kernelReservations(regions)); err != nil {
		util.Fatalf("Error writing output: %v", err)
	}
	return subcommands.ExitSuccess
}

func readMemoryMap(path string) ([]memmap.Entry, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	// The bootloader stores at most MapLength bytes.
	if len(buf) > memmap.MapLength {
		return nil, fmt.Errorf("%q is %d bytes, more than the %d bytes reserved for the map", path, len(buf), memmap.MapLength)
	}
	return memmap.Parse(buf)
}

// kernelReservations returns the physical ranges that may not be handed out
// as frames: the kernel regions and the VGA text buffer.
func kernelReservations(regions []ring0.Region) []physmem.Range {
	out := make([]physmem.Range, 0, len(regions)+1)
	for _, r := range regions {
		out = append(out, physmem.Range{
			Start: r.Physical,
			End:   r.Physical + hostarch.PhysicalAddress(r.Length),
		})
	}
	return append(out, physmem.Range{
		Start: memmap.VGABuffer,
		End:   memmap.VGABuffer + memmap.VGABufferLength,
	})
}

func writeMemoryMap(w io.Writer, entries []memmap.Entry, reserved []physmem.Range) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "BASE\tEND\tLENGTH\tTYPE")
	for _, e := range entries {
		fmt.Fprintf(tw, "%#016x\t%#016x\t%#x\t%v\n", e.Base, e.End(), e.Length, e.Type)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	usable := memmap.UsableRanges(entries)
	fmt.Fprintf(w, "\nUsable ranges:\n")
	for _, r := range usable {
		fmt.Fprintf(w, "  %v\n", r)
	}
	fmt.Fprintf(w, "Total usable: %d bytes (%d frames)\n", memmap.TotalUsable(entries), memmap.TotalUsable(entries)/hostarch.PageSize)

	reserved = append(reserved, memmap.ReservedRanges(entries)...)
	frames := physmem.NewRegionAllocator(usable, reserved)
	_, err := fmt.Fprintf(w, "Free after kernel reservations: %d bytes (%d frames)\n", frames.FreeBytes(), frames.FreeBytes()/hostarch.PageSize)
	return err
}
