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

package main

import (
	`fmt`
	`path/filepath`
	`strings`

	`github.com/davecgh/go-spew/spew`
	`github.com/spf13/cobra`

	`github.com/cloudwego/pandajit`
	`github.com/cloudwego/pandajit/debug`
)

type _OptFlags struct {
	licm       bool
	conditions bool
	hoistLimit int
	condRounds int
	dumpPasses bool
	asYAML     bool
	stats      bool
}

func newOptCmd() *cobra.Command {
	var f _OptFlags
	cmd := &cobra.Command{
		Use:   "opt [file]",
		Short: "Load a YAML graph, optimize it and print the result",
		Long: `Load a graph in the YAML fixture format from file, or stdin if
omitted, run the optimization pipeline over it and print the result. Flags
that are not given keep the defaults from the environment.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOpt(cmd, args, &f)
		},
	}

	/* pipeline flags */
	fs := cmd.Flags()
	fs.BoolVar(&f.licm, "licm", true, "hoist loop invariant instructions")
	fs.BoolVar(&f.conditions, "licm-conditions", true, "hoist loop invariant condition chains")
	fs.IntVar(&f.hoistLimit, "hoist-limit", 0, "maximum number of instructions hoisted per loop, 0 means unlimited")
	fs.IntVar(&f.condRounds, "cond-rounds", 0, "maximum condition chain discovery rounds per loop, 0 means the loop size")
	fs.BoolVar(&f.dumpPasses, "dump-passes", false, "print the graph to stderr after every pass that changed it")

	/* output flags */
	fs.BoolVar(&f.asYAML, "yaml", false, "print the result in the YAML fixture format")
	fs.BoolVar(&f.stats, "stats", false, "print the optimizer statistics to stderr")
	return cmd
}

func (self *_OptFlags) options(cmd *cobra.Command) ([]pandajit.Option, error) {
	var ret []pandajit.Option
	fs := cmd.Flags()

	/* the limits are checked before building the options */
	if self.hoistLimit < 0 {
		return nil, fmt.Errorf("invalid hoist limit: %d", self.hoistLimit)
	} else if self.condRounds < 0 {
		return nil, fmt.Errorf("invalid condition rounds: %d", self.condRounds)
	}

	/* only the flags given on the command line */
	if fs.Changed("licm") {
		ret = append(ret, pandajit.WithLicm(self.licm))
	}
	if fs.Changed("licm-conditions") {
		ret = append(ret, pandajit.WithLicmConditions(self.conditions))
	}
	if fs.Changed("hoist-limit") {
		ret = append(ret, pandajit.WithHoistLimit(self.hoistLimit))
	}
	if fs.Changed("cond-rounds") {
		ret = append(ret, pandajit.WithCondRounds(self.condRounds))
	}
	if fs.Changed("dump-passes") {
		ret = append(ret, pandajit.WithPassDump(self.dumpPasses))
	}
	return ret, nil
}

func runOpt(cmd *cobra.Command, args []string, f *_OptFlags) error {
	options, err := f.options(cmd)
	if err != nil {
		return err
	}

	/* load the graph */
	fp, name, err := openInput(cmd, args)
	if err != nil {
		return err
	}

	/* parse it */
	g, err := pandajit.LoadGraph(fp)
	fp.Close()
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	/* run the pipeline */
	passes, err := pandajit.Optimize(g, options...)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	/* report the passes that changed something */
	if len(passes) == 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "changed: none")
	} else {
		fmt.Fprintln(cmd.ErrOrStderr(), "changed:", strings.Join(passes, ", "))
	}

	/* statistics if requested */
	if f.stats {
		spew.Fdump(cmd.ErrOrStderr(), debug.GetStats().Optimizer)
	}

	/* the textual dump */
	if !f.asYAML {
		fmt.Fprintln(cmd.OutOrStdout(), g.String())
		return nil
	}

	/* or the fixture format */
	buf, err := pandajit.MarshalGraph(g, strings.TrimSuffix(filepath.Base(name), filepath.Ext(name)))
	if err != nil {
		return err
	}

	/* write it out */
	_, err = cmd.OutOrStdout().Write(buf)
	return err
}
