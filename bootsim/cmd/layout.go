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
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/google/subcommands"

	"simpleos.dev/simpleos/bootsim/cmd/util"
	"simpleos.dev/simpleos/pkg/hostarch"
	"simpleos.dev/simpleos/pkg/ring0/pagetables"
)

// Layout implements subcommands.Command for the "layout" command.
type Layout struct {
	output string
	all    bool
}

// Name implements subcommands.Command.Name.
func (*Layout) Name() string {
	return "layout"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Layout) Synopsis() string {
	return "Build the kernel address space and print its mappings."
}

// Usage implements subcommands.Command.Usage.
func (*Layout) Usage() string {
	return `layout [options] - Build the kernel address space in simulated memory
and print every mapping, then the page table statistics.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (l *Layout) SetFlags(f *flag.FlagSet) {
	f.StringVar(&l.output, "o", "table", "Output format (table, json).")
	f.BoolVar(&l.all, "all", false, "Print every page instead of merging contiguous runs.")
}

// Execute implements subcommands.Command.Execute.
func (l *Layout) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	_, m, err := machineFromArgs(args)
	if err != nil {
		util.Fatalf("building layout: %v", err)
	}
	defer m.release()

	runs := collectRuns(m.kernel.PageTables, !l.all)
	st := m.kernel.PageTables.Stats()
	stats := layoutStats{
		TablesAllocated: st.TablesAllocated,
		TablesFreed:     st.TablesFreed,
		FramesInUse:     m.arena.Allocated(),
		CR3:             fmt.Sprintf("%#x", m.kernel.PageTables.CR3()),
	}
	switch l.output {
	case "table":
		err = writeLayoutTable(os.Stdout, runs, stats)
	case "json":
		err = writeLayoutJSON(os.Stdout, runs, stats)
	default:
		util.Fatalf("Unsupported output format %q", l.output)
	}
	if err != nil {
		util.Fatalf("Error writing output: %v", err)
	}
	return subcommands.ExitSuccess
}

// run is a set of pages with contiguous virtual and physical addresses and
// equal size and permissions.
type run struct {
	Virtual  hostarch.VirtualAddress
	Physical hostarch.PhysicalAddress
	Size     pagetables.Size
	Count    int
	Opts     pagetables.MapOpts
}

// MarshalJSON implements json.Marshaler.
func (r run) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Virtual  string `json:"virtual"`
		Physical string `json:"physical"`
		PageSize string `json:"page_size"`
		Count    int    `json:"count"`
		Opts     string `json:"opts"`
	}{r.Virtual.String(), r.Physical.String(), r.Size.String(), r.Count, r.Opts.String()})
}

// extends returns true if the page at v, p continues r.
func (r *run) extends(v hostarch.VirtualAddress, p hostarch.PhysicalAddress, size pagetables.Size, opts pagetables.MapOpts) bool {
	span := uintptr(r.Count) * uintptr(r.Size)
	return size == r.Size && opts == r.Opts &&
		v == r.Virtual+hostarch.VirtualAddress(span) &&
		p == r.Physical+hostarch.PhysicalAddress(span)
}

// collectRuns returns the leaves of pt in address order, merged into runs
// if merge is set.
func collectRuns(pt *pagetables.PageTables, merge bool) []run {
	var runs []run
	pt.ForEach(func(v hostarch.VirtualAddress, e pagetables.PTE, size pagetables.Size) bool {
		p, opts := e.Frame().AlignDown(uintptr(size)), e.Opts()
		if merge && len(runs) > 0 && runs[len(runs)-1].extends(v, p, size, opts) {
			runs[len(runs)-1].Count++
			return true
		}
		runs = append(runs, run{Virtual: v, Physical: p, Size: size, Count: 1, Opts: opts})
		return true
	})
	return runs
}

type layoutStats struct {
	TablesAllocated uint64 `json:"tables_allocated"`
	TablesFreed     uint64 `json:"tables_freed"`
	FramesInUse     int    `json:"frames_in_use"`
	CR3             string `json:"cr3"`
}

func writeLayoutTable(w io.Writer, runs []run, stats layoutStats) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VIRTUAL\tPHYSICAL\tPAGES\tOPTS")
	for _, r := range runs {
		fmt.Fprintf(tw, "%v\t%v\t%d x %v\t%v\n", r.Virtual, r.Physical, r.Count, r.Size, r.Opts)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\nCR3 %s, %d tables allocated, %d freed, %d frames in use\n",
		stats.CR3, stats.TablesAllocated, stats.TablesFreed, stats.FramesInUse)
	return err
}

func writeLayoutJSON(w io.Writer, runs []run, stats layoutStats) error {
	if runs == nil {
		runs = []run{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Mappings []run       `json:"mappings"`
		Stats    layoutStats `json:"stats"`
	}{runs, stats})
}
