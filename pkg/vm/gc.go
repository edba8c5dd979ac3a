// Allocation and the tri-color mark-sweep collector (spec §4.E/§9).
//
// Every heap object constructor in this file funnels through
// registerObject, which accounts the object's size, triggers a
// collection if the running total crosses nextGC (or unconditionally
// under WithGCStressTest), and only then links the object into the VM's
// intrusive `objects` list. That ordering — size-check before linking —
// mirrors the original's reallocate() running before `object->next =
// vm.objects` is assigned: a just-allocated object is invisible to the
// very collection its own allocation triggered, so it never needs to be
// pushed onto the value stack purely for GC protection. Values that must
// survive an allocation they don't yet own a root to (a fresh string
// being inserted into the intern table, a fresh constant being added to
// a chunk) are still push/pop-protected at their call sites, the same
// discipline the teacher's pkg/vm/vm.go constant-pool insertion uses.
package vm

import (
	"unsafe"

	"github.com/kristofer/glox/pkg/value"
)

func (v *VM) registerObject(o *value.Object) {
	if v.gcStress {
		v.collectGarbage()
	}
	v.bytesAllocated += objectSize(o)
	if v.bytesAllocated > v.nextGC {
		v.collectGarbage()
	}
	o.Next = v.objects
	v.objects = o
}

// objectSize approximates an object's heap footprint from its own
// already-populated fields. Used both to account growth at allocation
// time and to account shrinkage when sweep reclaims it. The two sides of
// bytesAllocated agree for objects whose size does not change after
// allocation; a list is measured by its item count at each of the two
// moments, so one resized by append/delete in between is accounted at
// different sizes.
func objectSize(o *value.Object) int {
	switch o.Type {
	case value.ObjTypeString:
		s := value.AsString(value.Obj(o))
		return int(unsafe.Sizeof(*s)) + len(s.Chars)
	case value.ObjTypeFunction:
		fn := value.AsFunction(value.Obj(o))
		return int(unsafe.Sizeof(*fn))
	case value.ObjTypeClosure:
		cl := value.AsClosure(value.Obj(o))
		return int(unsafe.Sizeof(*cl)) + len(cl.Upvalues)*int(unsafe.Sizeof((*value.OUpvalue)(nil)))
	case value.ObjTypeUpvalue:
		up := value.AsUpvalue(value.Obj(o))
		return int(unsafe.Sizeof(*up))
	case value.ObjTypeClass:
		c := value.AsClass(value.Obj(o))
		return int(unsafe.Sizeof(*c))
	case value.ObjTypeInstance:
		i := value.AsInstance(value.Obj(o))
		return int(unsafe.Sizeof(*i))
	case value.ObjTypeBoundMethod:
		b := value.AsBoundMethod(value.Obj(o))
		return int(unsafe.Sizeof(*b))
	case value.ObjTypeNative:
		n := value.AsNative(value.Obj(o))
		return int(unsafe.Sizeof(*n)) + len(n.Name)
	case value.ObjTypeList:
		l := value.AsList(value.Obj(o))
		return int(unsafe.Sizeof(*l)) + len(l.Items)*int(unsafe.Sizeof(value.Value{}))
	default:
		return 0
	}
}

// InternString returns the canonical OString for s, allocating and
// interning a new one only on the first occurrence. Satisfies
// compiler.Heap and is also used internally by concatenate and native
// registration.
func (v *VM) InternString(s string) *value.OString {
	hash := value.FNV1a(s)
	if interned := v.strings.FindString(s, hash); interned != nil {
		return interned
	}

	str := &value.OString{Object: value.Object{Type: value.ObjTypeString}, Chars: s, Hash: hash}
	v.registerObject(&str.Object)

	v.push(str.Val())
	v.strings.Set(str, struct{}{})
	v.pop()
	return str
}

// NewFunction satisfies compiler.Heap: the compiler allocates a fresh
// OFunction per function declaration (and one for the implicit
// top-level script), via the heap so it participates in GC accounting
// and rooting from the very first instruction emitted into its chunk.
func (v *VM) NewFunction() *value.OFunction {
	fn := value.NewFunction()
	v.registerObject(&fn.Object)
	return fn
}

func (v *VM) newClosure(fn *value.OFunction) *value.OClosure {
	cl := value.NewClosure(fn)
	v.registerObject(&cl.Object)
	return cl
}

func (v *VM) newUpvalue(stackIndex int) *value.OUpvalue {
	up := value.NewUpvalue(stackIndex)
	v.registerObject(&up.Object)
	return up
}

func (v *VM) newClass(name *value.OString) *value.OClass {
	c := value.NewClass(name)
	v.registerObject(&c.Object)
	return c
}

func (v *VM) newInstance(class *value.OClass) *value.OInstance {
	inst := value.NewInstance(class)
	v.registerObject(&inst.Object)
	return inst
}

func (v *VM) newBoundMethod(receiver value.Value, method *value.OClosure) *value.OBoundMethod {
	b := value.NewBoundMethod(receiver, method)
	v.registerObject(&b.Object)
	return b
}

func (v *VM) newList(items []value.Value) *value.OList {
	l := value.NewList(items)
	v.registerObject(&l.Object)
	return l
}

// DefineNative satisfies natives.Heap. It follows the same push/pop
// protection the teacher's native registration uses around the table
// insert: both the name string and the native object are kept rooted on
// the stack across the Set call, in case table growth triggers
// allocation-driven work of its own later.
func (v *VM) DefineNative(name string, arity int, fn value.NativeFn) {
	nameStr := v.InternString(name)
	v.push(nameStr.Val())
	native := value.NewNative(name, arity, fn)
	v.registerObject(&native.Object)

	v.push(native.Val())
	v.globals.Set(nameStr, v.peek(0))
	v.pop()
	v.pop()
}

// --- mark phase ---

func (v *VM) markValue(val value.Value) {
	if val.IsObject() {
		v.markObject(val.AsObject())
	}
}

func (v *VM) markObject(o *value.Object) {
	if o == nil || o.IsMarked {
		return
	}
	o.IsMarked = true
	v.grayStack = append(v.grayStack, o)
}

func (v *VM) markTable(t *value.Table[value.Value]) {
	t.Each(func(key *value.OString, val value.Value) {
		v.markObject(&key.Object)
		v.markValue(val)
	})
}

func (v *VM) markRoots() {
	for i := 0; i < v.stackTop; i++ {
		v.markValue(v.stack[i])
	}
	for i := 0; i < v.frameCount; i++ {
		v.markObject(&v.frames[i].closure.Object)
	}
	for up := v.openUpvalues; up != nil; up = up.NextOpen {
		v.markObject(&up.Object)
	}
	v.markTable(v.globals)
	if v.initString != nil {
		v.markObject(&v.initString.Object)
	}
	if v.compilerMark != nil {
		v.compilerMark()
	}
}

func (v *VM) traceReferences() {
	for len(v.grayStack) > 0 {
		o := v.grayStack[len(v.grayStack)-1]
		v.grayStack = v.grayStack[:len(v.grayStack)-1]
		v.blackenObject(o)
	}
}

func (v *VM) blackenObject(o *value.Object) {
	switch o.Type {
	case value.ObjTypeClosure:
		cl := value.AsClosure(value.Obj(o))
		v.markObject(&cl.Function.Object)
		for _, up := range cl.Upvalues {
			if up != nil {
				v.markObject(&up.Object)
			}
		}
	case value.ObjTypeFunction:
		fn := value.AsFunction(value.Obj(o))
		if fn.Name != nil {
			v.markObject(&fn.Name.Object)
		}
		for _, c := range fn.Chunk.Constants {
			v.markValue(c)
		}
	case value.ObjTypeUpvalue:
		up := value.AsUpvalue(value.Obj(o))
		v.markValue(up.Closed)
	case value.ObjTypeClass:
		cls := value.AsClass(value.Obj(o))
		v.markObject(&cls.Name.Object)
		v.markTable(cls.Methods)
	case value.ObjTypeInstance:
		inst := value.AsInstance(value.Obj(o))
		v.markObject(&inst.Class.Object)
		v.markTable(inst.Fields)
	case value.ObjTypeBoundMethod:
		b := value.AsBoundMethod(value.Obj(o))
		v.markValue(b.Receiver)
		v.markObject(&b.Method.Object)
	case value.ObjTypeList:
		l := value.AsList(value.Obj(o))
		for _, item := range l.Items {
			v.markValue(item)
		}
	case value.ObjTypeString, value.ObjTypeNative:
		// leaf objects: no outgoing references to trace
	}
}

// --- sweep phase ---

func (v *VM) sweep() {
	var prev *value.Object
	obj := v.objects
	for obj != nil {
		if obj.IsMarked {
			obj.IsMarked = false
			prev = obj
			obj = obj.Next
			continue
		}
		unreached := obj
		obj = obj.Next
		v.bytesAllocated -= objectSize(unreached)
		if prev != nil {
			prev.Next = obj
		} else {
			v.objects = obj
		}
	}
}

// collectGarbage runs one full mark-sweep cycle: mark every root, trace
// the gray worklist to black, drop unreachable interned strings from
// the string table, sweep the object list, and double the byte
// threshold for the next cycle (spec §4.E step 5).
func (v *VM) collectGarbage() {
	v.markRoots()
	v.traceReferences()
	v.strings.RemoveWhite()
	v.sweep()
	v.nextGC = v.bytesAllocated * 2
}

// MarkObject satisfies compiler.Heap: the compiler's chain of
// funcCompilers holds the only reference to each in-progress OFunction
// until its enclosing CLOSURE instruction is emitted, so it must be
// rooted manually during compilation (spec §4.E "compiler roots").
func (v *VM) MarkObject(o *value.Object) { v.markObject(o) }

// Push and Pop satisfy compiler.Heap, letting the compiler apply the
// same push/pop acquisition discipline around its own constant-pool
// inserts that the VM uses internally.
func (v *VM) Push(val value.Value) { v.push(val) }
func (v *VM) Pop() value.Value     { return v.pop() }

// SetCompilerRoots satisfies compiler.Heap: the compiler registers its
// own mark callback for the duration of Compile so a GC triggered
// mid-compilation still finds every live OFunction in its chain.
func (v *VM) SetCompilerRoots(fn func()) { v.compilerMark = fn }
