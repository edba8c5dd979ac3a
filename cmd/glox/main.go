// Command glox is the REPL/file driver for the virtual machine, kept to
// the shape of the teacher's cmd/smog/main.go: no arguments starts a
// line-at-a-time REPL over stdin, one argument runs that file, and exit
// codes follow the convention clox suggests (0 success, 65 compile
// error, 70 runtime error).
package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/kristofer/glox/pkg/vm"
)

func main() {
	switch len(os.Args) {
	case 1:
		runREPL()
	case 2:
		runFile(os.Args[1])
	default:
		fmt.Fprintln(os.Stderr, "Usage: glox [path]")
		os.Exit(64)
	}
}

func runREPL() {
	v := vm.New()
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return
		}
		line := scanner.Text()
		if err := v.Interpret(line); err != nil {
			// A bad line doesn't end the session, matching the
			// original driver's REPL loop.
			fmt.Fprintln(os.Stderr, err)
		}
	}
}

func runFile(path string) {
	source, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not open file %q: %v\n", path, err)
		os.Exit(74)
	}

	v := vm.New()
	switch err := v.Interpret(string(source)); {
	case err == nil:
		return
	case err == vm.ErrCompile:
		os.Exit(65)
	default:
		fmt.Fprintln(os.Stderr, err)
		os.Exit(70)
	}
}
