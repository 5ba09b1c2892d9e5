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
	`github.com/cloudwego/pandajit/internal/codegen`
	`github.com/cloudwego/pandajit/internal/ssa`
)

// EncodeError occures when an encoder could not encode an operation for its
// target. The code produced so far must be discarded.
type EncodeError = codegen.EncodeError

// VerifyError occures when a graph violates one of its structural rules,
// either as loaded or after an optimization pass.
type VerifyError = ssa.VerifyError
