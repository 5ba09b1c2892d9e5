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

package debug

import (
	`sync/atomic`

	`github.com/cloudwego/pandajit/internal/codegen`
	`github.com/cloudwego/pandajit/internal/ssa`
)

// A Stats records statistics about the optimizer and the encoders.
type Stats struct {
	Optimizer OptimizerStats
	Encoder   EncoderStats
}

// An OptimizerStats records statistics about the optimization passes.
type OptimizerStats struct {
	Graphs        int
	LoopsVisited  int
	InstsHoisted  int
	ChainsHoisted int
}

// An EncoderStats records statistics about the machine code encoders.
type EncoderStats struct {
	BytesEmitted  int
	Failures      int
	BuffersPooled int
}

// GetStats returns statistics of the optimizer and the encoders.
func GetStats() Stats {
	return Stats{
		Optimizer: OptimizerStats{
			Graphs:        int(atomic.LoadUint32(&ssa.GraphCount)),
			LoopsVisited:  int(atomic.LoadUint32(&ssa.LicmLoopCount)),
			InstsHoisted:  int(atomic.LoadUint32(&ssa.LicmHoistedCount)),
			ChainsHoisted: int(atomic.LoadUint32(&ssa.CondChainCount)),
		},
		Encoder: EncoderStats{
			BytesEmitted:  int(atomic.LoadUint64(&codegen.BytesEmitted)),
			Failures:      int(atomic.LoadUint64(&codegen.EncodeFailures)),
			BuffersPooled: int(atomic.LoadUint64(&codegen.BuffersPooled)),
		},
	}
}
