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

package ssa

import (
	`fmt`
	`os`
	`sync/atomic`

	`github.com/cloudwego/pandajit/internal/opts`
)

// Pass transforms a graph in place, and reports whether anything changed.
type Pass interface {
	Apply(*Graph) bool
}

type PassDescriptor struct {
	Name    string
	Enabled func(o *opts.Options) bool
	Create  func(o *opts.Options) Pass
}

type _LoopAnalysis struct{}

func (_LoopAnalysis) Apply(g *Graph) bool {
	g.AnalyzeLoops()
	return false
}

func always(_ *opts.Options) bool {
	return true
}

var Passes = [...]PassDescriptor{
	{Name: "Loop Analysis", Enabled: always, Create: func(_ *opts.Options) Pass { return _LoopAnalysis{} }},
	{Name: "Loop Invariant Code Motion", Enabled: licmEnabled, Create: func(o *opts.Options) Pass { return NewLicm(o) }},
	{Name: "Condition Chain Hoisting", Enabled: licmCondEnabled, Create: func(o *opts.Options) Pass { return NewLicmConditions(o) }},
	{Name: "Cleanup", Enabled: always, Create: func(_ *opts.Options) Pass { return Cleanup{} }},
}

func licmEnabled(o *opts.Options) bool {
	return o.IsCompilerLicm
}

func licmCondEnabled(o *opts.Options) bool {
	return o.IsCompilerLicmConditions
}

// Optimize runs the enabled passes over the graph, and returns the names of
// the passes that changed it. The graph is verified after every change.
func Optimize(g *Graph, o *opts.Options) ([]string, error) {
	var ret []string
	atomic.AddUint32(&GraphCount, 1)

	/* the input must be well-formed */
	if err := g.Verify(); err != nil {
		return nil, err
	}

	/* run every enabled pass */
	for _, p := range Passes {
		if !p.Enabled(o) {
			continue
		}

		/* nothing to check if unchanged */
		if !p.Create(o).Apply(g) {
			continue
		}

		/* dump the graph if requested */
		ret = append(ret, p.Name)
		if o.DumpPasses {
			fmt.Fprintf(os.Stderr, "=== after %s ===\n%s\n", p.Name, g)
		}

		/* the pass must keep the graph valid */
		if err := g.Verify(); err != nil {
			return ret, fmt.Errorf("after %s: %w", p.Name, err)
		}
	}
	return ret, nil
}
