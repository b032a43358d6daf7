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

// Package options loads the tuning values for the Check, Quota, and
// Report caches, defaulting to the reference implementation's constants
// and optionally overriding them from a JSON file named by the
// ENDPOINTS_SERVICE_CONFIG_FILE environment variable.
package options

import (
	"io/ioutil"
	"os"
	"time"

	"github.com/ghodss/yaml"
	"github.com/golang/glog"

	"github.com/GoogleCloudPlatform/controlaggregator/check"
	"github.com/GoogleCloudPlatform/controlaggregator/quota"
	"github.com/GoogleCloudPlatform/controlaggregator/report"
)

// ConfigFileEnvVar names the environment variable that, if set, points to
// a JSON (or YAML) file overriding the default cache tuning values.
const ConfigFileEnvVar = "ENDPOINTS_SERVICE_CONFIG_FILE"

// jsonDuration unmarshals a duration from either a Go duration string
// ("500ms") or a number of milliseconds, since hand-authored config files
// commonly use one or the other.
type jsonDuration time.Duration

func (d *jsonDuration) UnmarshalJSON(data []byte) error {
	var asString string
	// yaml.Unmarshal turns a bare number into a string here, so a string
	// that doesn't parse as a duration falls through to the millisecond form.
	if err := yaml.Unmarshal(data, &asString); err == nil {
		if parsed, err := time.ParseDuration(asString); err == nil {
			*d = jsonDuration(parsed)
			return nil
		}
	}
	var millis int64
	if err := yaml.Unmarshal(data, &millis); err != nil {
		return err
	}
	*d = jsonDuration(time.Duration(millis) * time.Millisecond)
	return nil
}

// fileOptions mirrors the subset of fields a config file may override.
// Zero/absent fields leave the corresponding default untouched.
type fileOptions struct {
	Check struct {
		NumEntries    int          `json:"numEntries"`
		FlushInterval jsonDuration `json:"flushInterval"`
		Expiration    jsonDuration `json:"expiration"`
	} `json:"check"`
	Quota struct {
		NumEntries    int          `json:"numEntries"`
		FlushInterval jsonDuration `json:"flushInterval"`
		Expiration    jsonDuration `json:"expiration"`
	} `json:"quota"`
	Report struct {
		NumEntries    int          `json:"numEntries"`
		FlushInterval jsonDuration `json:"flushInterval"`
	} `json:"report"`
}

// Options bundles the three caches' tuning values.
type Options struct {
	Check  check.Options
	Quota  quota.Options
	Report report.Options
}

// Default returns the reference implementation's tuning values.
func Default() Options {
	return Options{
		Check:  check.DefaultOptions(),
		Quota:  quota.DefaultOptions(),
		Report: report.DefaultOptions(),
	}
}

// Load returns Default(), overridden by the file named in the
// ENDPOINTS_SERVICE_CONFIG_FILE environment variable if it's set. Any
// error reading or parsing that file is logged as a warning and Default()
// is returned unmodified, since a bad override shouldn't prevent the
// aggregator from starting with sane defaults.
func Load() Options {
	opts := Default()
	path := os.Getenv(ConfigFileEnvVar)
	if path == "" {
		return opts
	}

	data, err := ioutil.ReadFile(path)
	if err != nil {
		glog.Warningf("options: could not read %s=%s: %v; using defaults", ConfigFileEnvVar, path, err)
		return opts
	}

	var fo fileOptions
	if err := yaml.Unmarshal(data, &fo); err != nil {
		glog.Warningf("options: could not parse %s=%s: %v; using defaults", ConfigFileEnvVar, path, err)
		return opts
	}

	applyOverrides(&opts, fo)
	return opts
}

func applyOverrides(opts *Options, fo fileOptions) {
	if fo.Check.NumEntries != 0 {
		opts.Check.NumEntries = fo.Check.NumEntries
	}
	if fo.Check.FlushInterval != 0 {
		opts.Check.FlushInterval = time.Duration(fo.Check.FlushInterval)
	}
	if fo.Check.Expiration != 0 {
		opts.Check.Expiration = time.Duration(fo.Check.Expiration)
	}

	if fo.Quota.NumEntries != 0 {
		opts.Quota.NumEntries = fo.Quota.NumEntries
	}
	if fo.Quota.FlushInterval != 0 {
		opts.Quota.FlushInterval = time.Duration(fo.Quota.FlushInterval)
	}
	if fo.Quota.Expiration != 0 {
		opts.Quota.Expiration = time.Duration(fo.Quota.Expiration)
	}

	if fo.Report.NumEntries != 0 {
		opts.Report.NumEntries = fo.Report.NumEntries
	}
	if fo.Report.FlushInterval != 0 {
		opts.Report.FlushInterval = time.Duration(fo.Report.FlushInterval)
	}
}
