// Package repl is an interactive shell over the VM's bytecode assembly
// format (internal/asm), adapted from the teacher's internal/repl/repl.go:
// same bufio.Scanner read-eval loop and fresh-chunk-per-input structure,
// generalized from "parse and recompile a line of script source" (out of
// scope here, per spec.md's Non-goals) to "assemble and run a block of
// bytecode assembly", exercising vm.Reset's globals-preserving contract
// (§6) the way the teacher's ResetWithChunk did.
package repl

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"piscript/internal/asm"
	"piscript/internal/vm"
)

const terminator = "."

// Start runs an interactive loop: each block of assembly lines up to a
// line containing only "." is assembled and run against v, with globals
// persisting across blocks.
func Start(v *vm.VM) {
	fmt.Println("pi REPL | terminate a block with a line of '.' | 'exit' to quit")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print(">>> ")
		var block []string
		for {
			if !scanner.Scan() {
				return
			}
			line := scanner.Text()
			if strings.TrimSpace(line) == "exit" {
				return
			}
			if strings.TrimSpace(line) == terminator {
				break
			}
			block = append(block, line)
			fmt.Print("... ")
		}

		code, err := asm.Assemble(strings.Join(block, "\n"))
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			continue
		}
		v.Reset(code)
		if err := v.Run(); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}
}
