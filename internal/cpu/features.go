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

package cpu

import (
	`github.com/klauspost/cpuid/v2`
)

// Host features that change which instruction sequences the encoders pick.
var (
	HasLSE    = cpuid.CPU.Supports(cpuid.ATOMICS)
	HasLRCPC  = cpuid.CPU.Supports(cpuid.LRCPC)
	HasPOPCNT = cpuid.CPU.Supports(cpuid.POPCNT)
	HasLZCNT  = cpuid.CPU.Supports(cpuid.LZCNT)
	HasBMI1   = cpuid.CPU.Supports(cpuid.BMI1)
)

// Brand returns a human readable description of the host, used in dumps.
func Brand() string {
	if cpuid.CPU.BrandName != "" {
		return cpuid.CPU.BrandName
	} else {
		return cpuid.CPU.VendorString
	}
}
