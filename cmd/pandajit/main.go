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

// Command pandajit drives the optimizer and the disassemblers, for debugging
// graphs and encoded code by hand.
package main

import (
	`fmt`
	`io`
	`os`

	`github.com/spf13/cobra`
)

var version = "0.1.0"

func main() {
	os.Exit(run())
}

func run() int {
	if err := newRootCmd(os.Stdin, os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "pandajit:", err)
		return 1
	} else {
		return 0
	}
}

func newRootCmd(in io.Reader, out io.Writer, errOut io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "pandajit",
		Short:         "pandajit optimizes graphs and disassembles encoded code",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	/* the sub commands */
	cmd.SetIn(in)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.AddCommand(newOptCmd())
	cmd.AddCommand(newDisasmCmd())
	return cmd
}

// openInput opens the named file, or stdin for "-" and no name at all.
func openInput(cmd *cobra.Command, args []string) (io.ReadCloser, string, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.NopCloser(cmd.InOrStdin()), "stdin", nil
	} else if fp, err := os.Open(args[0]); err != nil {
		return nil, "", err
	} else {
		return fp, args[0], nil
	}
}
