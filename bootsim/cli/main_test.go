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

package cli

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/subcommands"

	"simpleos.dev/simpleos/pkg/log"
)

func TestCommands(t *testing.T) {
	groups := map[string][]string{}
	forEachCmd(func(c subcommands.Command, group string) {
		groups[group] = append(groups[group], c.Name())
	})
	want := map[string][]string{
		"":        {"help", "flags", "commands", "layout", "translate"},
		"inspect": {"gdt", "memmap"},
	}
	if diff := cmp.Diff(want, groups); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
}

func TestNewEmitter(t *testing.T) {
	var text, json bytes.Buffer
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	newEmitter("text", &text).Emit(0, log.Info, ts, "mapped %s", "identity")
	newEmitter("json", &json).Emit(0, log.Info, ts, "mapped %s", "identity")

	if got := text.String(); !strings.HasPrefix(got, "I0102 ") || !strings.HasSuffix(got, "mapped identity\n") {
		t.Errorf("text log = %q", got)
	}
	if got := json.String(); !strings.Contains(got, `"msg":"mapped identity"`) || !strings.Contains(got, `"level":"info"`) {
		t.Errorf("json log = %q", got)
	}
}

func TestLoadConfig(t *testing.T) {
	conf, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig(\"\"): %v", err)
	}
	if len(conf.Regions) == 0 {
		t.Errorf("stock layout has no regions")
	}
	if _, err := loadConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Errorf("loadConfig of a missing file succeeded")
	}
}
