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

package opts

import (
	`os`
	`strconv`

	`github.com/cloudwego/pandajit/internal/cpu`
)

const (
	_DefaultLicmHoistLimit    = 200 // per loop
	_DefaultLicmCondMaxRounds = 0   // 0 means "bounded by the loop size"
	_MaxOptionValue           = 1 << 20
)

var (
	IsCompilerLicm           = parseBoolOrDefault("PANDAJIT_COMPILER_LICM", true)
	IsCompilerLicmConditions = parseBoolOrDefault("PANDAJIT_COMPILER_LICM_CONDITIONS", true)
	LicmHoistLimit           = parseOrDefault("PANDAJIT_LICM_HOIST_LIMIT", _DefaultLicmHoistLimit, 0)
	LicmCondMaxRounds        = parseOrDefault("PANDAJIT_LICM_COND_MAX_ROUNDS", _DefaultLicmCondMaxRounds, 0)
	DumpPasses               = parseBoolOrDefault("PANDAJIT_DEBUG_PASSES", false)
)

func parseOrDefault(key string, def int, min int) int {
	if env := os.Getenv(key); env == "" {
		return def
	} else if val, err := strconv.ParseUint(env, 0, 64); err != nil {
		panic("pandajit: invalid value for " + key)
	} else if ret := int(val); ret < min || ret > _MaxOptionValue {
		panic("pandajit: value out of range for " + key)
	} else {
		return ret
	}
}

func parseBoolOrDefault(key string, def bool) bool {
	if env := os.Getenv(key); env == "" {
		return def
	} else if val, err := strconv.ParseBool(env); err != nil {
		panic("pandajit: invalid value for " + key)
	} else {
		return val
	}
}

// The instruction set extensions default to what the host CPU reports, and
// only matter when the host is the code generation target.
var (
	UseLSE    = cpu.HasLSE
	UseLRCPC  = cpu.HasLRCPC
	UsePOPCNT = cpu.HasPOPCNT
	UseLZCNT  = cpu.HasLZCNT
	UseBMI1   = cpu.HasBMI1
)
