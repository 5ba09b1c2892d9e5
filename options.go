/*
 * Copyright 2022 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package pandajit

import (
	`fmt`

	`github.com/cloudwego/pandajit/internal/opts`
)

// Option is the property setter function for opts.Options.
type Option func(*opts.Options)

const (
	_MaxHoistLimit = 1 << 20
)

// WithLicm enables or disables loop invariant code motion.
//
// The default value of this option is "true", and can also be configured
// with the `PANDAJIT_COMPILER_LICM` environment variable.
func WithLicm(enable bool) Option {
	return func(o *opts.Options) { o.IsCompilerLicm = enable }
}

// WithLicmConditions enables or disables the hoisting of loop invariant
// condition chains.
//
// The default value of this option is "true".
func WithLicmConditions(enable bool) Option {
	return func(o *opts.Options) { o.IsCompilerLicmConditions = enable }
}

// WithHoistLimit sets the maximum number of instructions LICM hoists out of
// a single loop.
//
// Set this option to "0" disables this limit, which means hoisting every
// invariant instruction.
//
// The default value of this option is "200".
func WithHoistLimit(limit int) Option {
	if limit < 0 || limit > _MaxHoistLimit {
		panic(fmt.Sprintf("pandajit: invalid hoist limit: %d", limit))
	} else {
		return func(o *opts.Options) { o.LicmHoistLimit = limit }
	}
}

// WithCondRounds caps the number of discovery rounds of the condition chain
// hoisting on a single loop, "0" means bounded by the size of the loop.
func WithCondRounds(rounds int) Option {
	if rounds < 0 || rounds > _MaxHoistLimit {
		panic(fmt.Sprintf("pandajit: invalid condition rounds: %d", rounds))
	} else {
		return func(o *opts.Options) { o.LicmCondMaxRounds = rounds }
	}
}

// WithPassDump makes the optimizer print the graph to stderr after every
// pass that changed it.
func WithPassDump(enable bool) Option {
	return func(o *opts.Options) { o.DumpPasses = enable }
}

// WithLSE selects the ARMv8.1 atomic instructions on arm64. It defaults to
// what the host CPU supports.
func WithLSE(enable bool) Option {
	return func(o *opts.Options) { o.UseLSE = enable }
}

// WithLrAsTemp lets the arm64 encoder use the link register as a scratch
// register, for code that never returns through it.
func WithLrAsTemp(enable bool) Option {
	return func(o *opts.Options) { o.UseLrAsTemp = enable }
}

// SetLicm sets the default LICM switch for all compilations from now on.
//
// Returns the old opts.IsCompilerLicm value.
func SetLicm(enable bool) bool {
	enable, opts.IsCompilerLicm = opts.IsCompilerLicm, enable
	return enable
}

// SetLicmConditions sets the default condition chain hoisting switch for all
// compilations from now on.
//
// Returns the old opts.IsCompilerLicmConditions value.
func SetLicmConditions(enable bool) bool {
	enable, opts.IsCompilerLicmConditions = opts.IsCompilerLicmConditions, enable
	return enable
}

// SetHoistLimit sets the default per-loop hoist limit.
//
// This value can also be configured with the `PANDAJIT_LICM_HOIST_LIMIT`
// environment variable.
//
// Returns the old opts.LicmHoistLimit value.
func SetHoistLimit(limit int) int {
	limit, opts.LicmHoistLimit = opts.LicmHoistLimit, limit
	return limit
}

// SetPassDump sets the default pass dump switch.
//
// Returns the old opts.DumpPasses value.
func SetPassDump(enable bool) bool {
	enable, opts.DumpPasses = opts.DumpPasses, enable
	return enable
}

func makeOptions(options []Option) opts.Options {
	ret := opts.GetDefaultOptions()
	for _, fn := range options {
		fn(&ret)
	}
	return ret
}
