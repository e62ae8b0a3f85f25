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
	"strings"
	"text/tabwriter"

	"github.com/google/subcommands"

	"simpleos.dev/simpleos/bootsim/cmd/util"
	"simpleos.dev/simpleos/pkg/ring0"
)

// Segments implements subcommands.Command for the "gdt" command.
type Segments struct{}

// Name implements subcommands.Command.Name.
func (*Segments) Name() string {
	return "gdt"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Segments) Synopsis() string {
	return "Print the kernel GDT."
}

// Usage implements subcommands.Command.Usage.
func (*Segments) Usage() string {
	return `gdt - Build the kernel GDT and print each descriptor with its
selector, then the operand lgdt would be given.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Segments) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Segments) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	_, m, err := machineFromArgs(args)
	if err != nil {
		util.Fatalf("building GDT: %v", err)
	}
	defer m.release()

	if err := writeGDT(os.Stdout, m.kernel); err != nil {
		util.Fatalf("Error writing output: %v", err)
	}
	return subcommands.ExitSuccess
}

// segmentKind names the descriptor in slot i.
func segmentKind(k *ring0.Kernel, i int) string {
	sel := ring0.NewSelector(i, 0)
	switch {
	case i == 0:
		return "null"
	case sel == k.Code:
		return "kernel code"
	case sel == k.Data:
		return "kernel data"
	case k.TSS != 0 && sel == k.TSS:
		return "tss"
	case k.TSS != 0 && i == k.TSS.Index()+1:
		return "tss (high)"
	}
	e := k.GDT.Entry(i)
	if e.Flags()&ring0.SegmentDescriptorExecute != 0 {
		return "code"
	}
	return "data"
}

// flagNames lists the set descriptor flags.
func flagNames(flags ring0.SegmentDescriptorFlags) string {
	var names []string
	for _, fl := range []struct {
		bit  ring0.SegmentDescriptorFlags
		name string
	}{
		{ring0.SegmentDescriptorPresent, "P"},
		{ring0.SegmentDescriptorSystem, "S"},
		{ring0.SegmentDescriptorExecute, "X"},
		{ring0.SegmentDescriptorWrite, "W"},
		{ring0.SegmentDescriptorAccess, "A"},
		{ring0.SegmentDescriptorLong, "L"},
		{ring0.SegmentDescriptorDB, "DB"},
		{ring0.SegmentDescriptorG, "G"},
	} {
		if flags&fl.bit != 0 {
			names = append(names, fl.name)
		}
	}
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, "|")
}

func writeGDT(w io.Writer, k *ring0.Kernel) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SLOT\tSELECTOR\tDESCRIPTOR\tBASE\tLIMIT\tDPL\tFLAGS\tKIND")
	for i := 0; i < k.GDT.Len(); i++ {
		e := k.GDT.Entry(i)
		fmt.Fprintf(tw, "%d\t%v\t%v\t%#x\t%#x\t%d\t%s\t%s\n",
			i, ring0.NewSelector(i, 0), &e, e.Base(), e.Limit(), e.DPL(), flagNames(e.Flags()), segmentKind(k, i))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	pd := k.GDT.PseudoDescriptor()
	_, err := fmt.Fprintf(w, "\nGDTR base %#x limit %#x\nlgdt operand % x\n", pd.Base, pd.Limit, pd.Bytes())
	return err
}
