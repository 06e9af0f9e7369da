// cmd/pi/main.go
package main

import (
	"fmt"
	"log"
	"os"

	"piscript/internal/asm"
	"piscript/internal/natives"
	"piscript/internal/repl"
	"piscript/internal/vm"
)

const version = "0.1.0"

// commandAliases mirrors the teacher's single-letter shortcuts.
var commandAliases = map[string]string{
	"r": "run",
	"i": "repl",
}

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		showUsage()
		return
	}

	cmd := args[0]
	if alias, ok := commandAliases[cmd]; ok {
		cmd = alias
	}

	switch cmd {
	case "--help", "-h", "help":
		showUsage()
	case "--version", "-v", "version":
		fmt.Printf("pi %s\n", version)
	case "repl":
		repl.Start(newVM())
	case "run":
		if len(args) < 2 {
			log.Fatal("no filename provided to run command")
		}
		runFile(args[1])
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", args[0])
		showUsage()
		os.Exit(1)
	}
}

// newVM builds a VM with the host-provided native library and built-in
// constants installed, the way the teacher's main wired its registered
// built-ins before handing the VM to the REPL or a run.
func newVM() *vm.VM {
	code, err := asm.Assemble("HALT\n")
	if err != nil {
		log.Fatalf("internal error assembling bootstrap code: %v", err)
	}
	v := vm.New(code)
	natives.RegisterDatabase(v)
	natives.RegisterWebsocket(v)
	natives.RegisterKeys(v)
	return v
}

func runFile(filename string) {
	source, err := os.ReadFile(filename)
	if err != nil {
		log.Fatalf("could not read file: %v", err)
	}

	code, err := asm.Assemble(string(source))
	if err != nil {
		log.Fatalf("assemble error: %v", err)
	}

	v := newVM()
	v.Reset(code)
	if err := v.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err.Error())
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println("pi - stack-based bytecode VM")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  pi run <file.pia>   Assemble and run a bytecode-assembly file  (alias: r)")
	fmt.Println("  pi repl             Start interactive bytecode-assembly REPL   (alias: i)")
	fmt.Println("  pi version          Show version")
	fmt.Println("  pi help             Show this message")
}
