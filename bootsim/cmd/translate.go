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
	"strconv"

	"github.com/google/subcommands"

	"simpleos.dev/simpleos/bootsim/cmd/util"
	"simpleos.dev/simpleos/pkg/hostarch"
	"simpleos.dev/simpleos/pkg/ring0/pagetables"
)

// Translate implements subcommands.Command for the "translate" command.
type Translate struct{}

// Name implements subcommands.Command.Name.
func (*Translate) Name() string {
	return "translate"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Translate) Synopsis() string {
	return "Translate virtual addresses through the kernel page tables."
}

// Usage implements subcommands.Command.Usage.
func (*Translate) Usage() string {
	return `translate ADDR... - Build the kernel address space and print the
physical address and leaf entry for each virtual address. Addresses may be
given in decimal, hex (0x) or octal (0).
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Translate) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Translate) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() == 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	addrs := make([]hostarch.VirtualAddress, 0, f.NArg())
	for _, arg := range f.Args() {
		v, err := strconv.ParseUint(arg, 0, 64)
		if err != nil {
			f.Usage()
			return subcommands.ExitUsageError
		}
		addrs = append(addrs, hostarch.VirtualAddress(v))
	}

	_, m, err := machineFromArgs(args)
	if err != nil {
		util.Fatalf("building layout: %v", err)
	}
	defer m.release()

	if failed := translateAll(os.Stdout, m.kernel.PageTables, addrs); failed != 0 {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// translateAll writes one line per address to w and returns the number of
// addresses that did not translate.
func translateAll(w io.Writer, pt *pagetables.PageTables, addrs []hostarch.VirtualAddress) int {
	failed := 0
	for _, v := range addrs {
		e, level, err := pt.Lookup(v)
		if err != nil {
			fmt.Fprintf(w, "%v: %v\n", v, err)
			failed++
			continue
		}
		// The lookup reached a leaf, so this cannot fail.
		p, _ := pt.Translate(v)
		fmt.Fprintf(w, "%v -> %v (%v page, %v)\n", v, p, level.PageSize(), e.Opts())
	}
	return failed
}
