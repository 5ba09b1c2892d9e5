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

// Options is threaded explicitly through every pass and encoder. Nothing
// below the root package reads the package-level defaults directly.
type Options struct {
	IsCompilerLicm           bool
	IsCompilerLicmConditions bool
	LicmHoistLimit           int
	LicmCondMaxRounds        int
	DumpPasses               bool
	UseLSE                   bool
	UseLRCPC                 bool
	UseLrAsTemp              bool
	UsePOPCNT                bool
	UseLZCNT                 bool
	UseBMI1                  bool
}

// CanHoist reports whether another instruction fits the per-loop budget.
func (self *Options) CanHoist(n int) bool {
	return self.LicmHoistLimit == 0 || n < self.LicmHoistLimit
}

// CondRounds returns the number of discovery rounds LICM-conditions may run
// on a loop with nb blocks.
func (self *Options) CondRounds(nb int) int {
	if self.LicmCondMaxRounds != 0 && self.LicmCondMaxRounds < nb {
		return self.LicmCondMaxRounds
	} else {
		return nb
	}
}

func GetDefaultOptions() Options {
	return Options{
		IsCompilerLicm:           IsCompilerLicm,
		IsCompilerLicmConditions: IsCompilerLicmConditions,
		LicmHoistLimit:           LicmHoistLimit,
		LicmCondMaxRounds:        LicmCondMaxRounds,
		DumpPasses:               DumpPasses,
		UseLSE:                   UseLSE,
		UseLRCPC:                 UseLRCPC,
		UsePOPCNT:                UsePOPCNT,
		UseLZCNT:                 UseLZCNT,
		UseBMI1:                  UseBMI1,
	}
}
