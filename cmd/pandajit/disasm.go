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
	`encoding/binary`
	`encoding/hex`
	`fmt`
	`io`
	`runtime`
	`strconv`
	`strings`

	`github.com/spf13/cobra`

	`github.com/cloudwego/pandajit`
)

func newDisasmCmd() *cobra.Command {
	var arch string
	var words bool
	cmd := &cobra.Command{
		Use:   "disasm [hex...]",
		Short: "Disassemble hex encoded machine code",
		Long: `Disassemble machine code given as hex strings, or read from stdin if
none is given. The strings are concatenated in order, "0x" prefixes are
ignored. With --words every string is a 32-bit instruction
word written most significant digit first, as arm64 listings print them.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				if buf, err := io.ReadAll(cmd.InOrStdin()); err != nil {
					return err
				} else {
					args = strings.Fields(string(buf))
				}
			}

			/* decode the code */
			code, err := parseCode(args, words)
			if err != nil {
				return err
			}

			/* print the instructions */
			return pandajit.Disasm(cmd.OutOrStdout(), arch, code)
		},
	}

	/* target selection */
	cmd.Flags().StringVar(&arch, "arch", runtime.GOARCH, "target architecture, amd64 or arm64")
	cmd.Flags().BoolVar(&words, "words", false, "read every argument as a 32-bit instruction word")
	return cmd
}

func parseCode(args []string, words bool) ([]byte, error) {
	var ret []byte
	for _, arg := range args {
		arg = strings.TrimPrefix(strings.TrimPrefix(arg, "0x"), "0X")

		/* a byte string */
		if !words {
			if buf, err := hex.DecodeString(arg); err != nil {
				return nil, fmt.Errorf("invalid hex string %q: %w", arg, err)
			} else {
				ret = append(ret, buf...)
				continue
			}
		}

		/* a little-endian instruction word */
		if v, err := strconv.ParseUint(arg, 16, 32); err != nil {
			return nil, fmt.Errorf("invalid instruction word %q: %w", arg, err)
		} else {
			var buf [4]byte
			binary.LittleEndian.PutUint32(buf[:], uint32(v))
			ret = append(ret, buf[:]...)
		}
	}
	return ret, nil
}
