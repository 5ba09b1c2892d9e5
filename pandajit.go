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

// Package pandajit is the optimizer and machine code encoder core of a JIT
// compiler backend. Graphs are optimized in place by Optimize, and the
// encoders returned by NewEncoder turn register-allocated operations into
// machine code for arm64 or amd64.
package pandajit

import (
	`fmt`
	`io`
	`runtime`

	`github.com/cloudwego/pandajit/internal/codegen`
	`github.com/cloudwego/pandajit/internal/codegen/amd64`
	`github.com/cloudwego/pandajit/internal/codegen/arm64`
	`github.com/cloudwego/pandajit/internal/ssa`
)

type (
	Graph   = ssa.Graph
	Encoder = codegen.Encoder
)

// Supported target architectures.
const (
	ArchAMD64 = "amd64"
	ArchARM64 = "arm64"
)

// LoadGraph reads a graph in the YAML fixture format.
func LoadGraph(r io.Reader) (*Graph, error) {
	return ssa.LoadGraph(r)
}

// MarshalGraph serializes g into the YAML fixture format under name.
func MarshalGraph(g *Graph, name string) ([]byte, error) {
	return ssa.MarshalGraph(g, name)
}

// Optimize runs the optimization pipeline over g in place, and returns the
// names of the passes that changed it. The graph is verified before the
// first pass and after every change, a violation is reported as a
// VerifyError.
func Optimize(g *Graph, options ...Option) ([]string, error) {
	o := makeOptions(options)
	return ssa.Optimize(g, &o)
}

// NewEncoder creates an encoder for arch, an empty arch selects the host
// architecture. The encoder must be freed with Free after use.
func NewEncoder(arch string, options ...Option) (Encoder, error) {
	o := makeOptions(options)
	if arch == "" {
		arch = runtime.GOARCH
	}

	/* select the implementation */
	switch arch {
	case ArchAMD64:
		return amd64.NewEncoder(&o), nil
	case ArchARM64:
		return arm64.NewEncoder(&o), nil
	default:
		return nil, fmt.Errorf("pandajit: unsupported architecture: %s", arch)
	}
}

// Disasm prints the machine code for arch in GNU syntax, one instruction per
// line.
func Disasm(w io.Writer, arch string, code []byte) error {
	switch arch {
	case ArchAMD64:
		amd64.Disasm(w, code)
	case ArchARM64:
		arm64.Disasm(w, code)
	default:
		return fmt.Errorf("pandajit: unsupported architecture: %s", arch)
	}
	return nil
}
