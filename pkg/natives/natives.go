// Package natives registers glox's built-in callables (spec §6): clock,
// show, exit, append, delete. Grounded on original_source/src/native.c's
// flat defineNative(name, fn) registration pattern, which installs a
// table of {name, arity, fn} as VM globals at startup time rather than
// wiring them through the compiler as keywords.
//
// Install takes a Heap rather than a concrete *vm.VM so this package
// never imports pkg/vm: pkg/vm imports pkg/natives to call Install at
// construction time, and a reverse import would cycle.
package natives

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/kristofer/glox/pkg/value"
)

// Heap is the slice of VM behavior native registration needs: defining a
// global callable, and the output sink "show" must print through so it
// obeys the same WithOutput redirection as PRINT rather than writing
// straight to os.Stdout.
type Heap interface {
	DefineNative(name string, arity int, fn value.NativeFn)
	Output() io.Writer
}

var start = time.Now()

// Install registers every native listed in spec §6 as a global on h.
func Install(h Heap) {
	h.DefineNative("clock", 0, clockNative)
	h.DefineNative("show", -1, showNativeFor(h))
	h.DefineNative("exit", 0, exitNative)
	h.DefineNative("append", 2, appendNative)
	h.DefineNative("delete", 2, deleteNative)
}

// clockNative reports seconds of process time since startup. Go exposes
// no portable CPU-time clock as cheaply as C's clock(), so wall time since
// package init approximates it for this single-threaded interpreter.
func clockNative(args []value.Value) (value.Value, error) {
	return value.Number(time.Since(start).Seconds()), nil
}

// showNativeFor binds "show" to h's output sink so it prints
// "show(a1, a2, ...)" through the same writer PRINT uses (the VM's
// WithOutput option, os.Stdout by default) and returns the argument
// count, per spec §6.
func showNativeFor(h Heap) value.NativeFn {
	return func(args []value.Value) (value.Value, error) {
		w := h.Output()
		fmt.Fprint(w, "show(")
		for i, a := range args {
			if i > 0 {
				fmt.Fprint(w, ", ")
			}
			fmt.Fprint(w, value.Stringify(a))
		}
		fmt.Fprintln(w, ")")
		return value.Number(float64(len(args))), nil
	}
}

func exitNative(args []value.Value) (value.Value, error) {
	os.Exit(0)
	return value.Nil, nil
}

func appendNative(args []value.Value) (value.Value, error) {
	if !args[0].IsObjType(value.ObjTypeList) {
		return value.Nil, fmt.Errorf("Argument to 'append' must be a list.")
	}
	list := value.AsList(args[0])
	list.Items = append(list.Items, args[1])
	return value.Nil, nil
}

func deleteNative(args []value.Value) (value.Value, error) {
	if !args[0].IsObjType(value.ObjTypeList) {
		return value.Nil, fmt.Errorf("Argument to 'delete' must be a list.")
	}
	list := value.AsList(args[0])
	if !args[1].IsNumber() {
		return value.Nil, fmt.Errorf("Index to 'delete' must be a number.")
	}
	idx := int(args[1].AsNumber())
	if idx < 0 || idx >= len(list.Items) {
		return value.Nil, fmt.Errorf("Index out of bounds.")
	}
	list.Items = append(list.Items[:idx], list.Items[idx+1:]...)
	return value.Nil, nil
}
