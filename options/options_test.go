// Copyright 2017 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package options

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultMatchesReferenceConstants(t *testing.T) {
	opts := Default()
	if opts.Check.NumEntries != 200 || opts.Check.FlushInterval != 500*time.Millisecond || opts.Check.Expiration != time.Second {
		t.Fatalf("unexpected check defaults: %+v", opts.Check)
	}
	if opts.Quota.NumEntries != 1000 || opts.Quota.FlushInterval != time.Second || opts.Quota.Expiration != time.Minute {
		t.Fatalf("unexpected quota defaults: %+v", opts.Quota)
	}
	if opts.Report.NumEntries != 200 || opts.Report.FlushInterval != time.Second {
		t.Fatalf("unexpected report defaults: %+v", opts.Report)
	}
}

func TestLoadWithoutEnvVarReturnsDefaults(t *testing.T) {
	os.Unsetenv(ConfigFileEnvVar)
	opts := Load()
	if opts.Check.NumEntries != Default().Check.NumEntries {
		t.Fatalf("expected defaults when env var is unset")
	}
}

func TestLoadOverridesFromConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	contents := `{"check": {"numEntries": 50, "flushInterval": "250ms"}, "report": {"numEntries": 10}}`
	if err := ioutil.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}
	os.Setenv(ConfigFileEnvVar, path)
	defer os.Unsetenv(ConfigFileEnvVar)

	opts := Load()
	if opts.Check.NumEntries != 50 {
		t.Fatalf("Check.NumEntries = %d, want 50", opts.Check.NumEntries)
	}
	if opts.Check.FlushInterval != 250*time.Millisecond {
		t.Fatalf("Check.FlushInterval = %v, want 250ms", opts.Check.FlushInterval)
	}
	if opts.Report.NumEntries != 10 {
		t.Fatalf("Report.NumEntries = %d, want 10", opts.Report.NumEntries)
	}
	// Unset fields keep their defaults.
	if opts.Check.Expiration != Default().Check.Expiration {
		t.Fatalf("expected unset Check.Expiration to keep its default")
	}
	if opts.Quota.NumEntries != Default().Quota.NumEntries {
		t.Fatalf("expected unset Quota section to keep its defaults")
	}
}

func TestLoadFallsBackToDefaultsOnMissingFile(t *testing.T) {
	os.Setenv(ConfigFileEnvVar, "/nonexistent/path/config.json")
	defer os.Unsetenv(ConfigFileEnvVar)

	opts := Load()
	if opts.Check.NumEntries != Default().Check.NumEntries {
		t.Fatalf("expected defaults when the config file is missing")
	}
}

func TestLoadFallsBackToDefaultsOnMalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := ioutil.WriteFile(path, []byte("{not valid json"), 0644); err != nil {
		t.Fatal(err)
	}
	os.Setenv(ConfigFileEnvVar, path)
	defer os.Unsetenv(ConfigFileEnvVar)

	opts := Load()
	if opts.Check.NumEntries != Default().Check.NumEntries {
		t.Fatalf("expected defaults when the config file is malformed")
	}
}
