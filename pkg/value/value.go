// Package value defines the runtime value and heap object model for glox.
//
// Architecture:
//
// A Value is a small tagged union over {Nil, Bool, Number, Object}. Numbers
// are IEEE-754 doubles; everything heap-allocated (strings, functions,
// closures, classes, instances, bound methods, natives, lists) is an
// Object reference. Values are passed by copy, the same way the teacher's
// bytecode package treats its constant-pool entries, except here the union
// is explicit instead of being smuggled through interface{}.
//
// Object layout:
//
// Every heap object embeds Object as its first field:
//
//	type OString struct {
//	    Object
//	    Chars string
//	    Hash  uint32
//	}
//
// Because Object is the first field, a pointer to any variant can be
// reinterpreted as a *Object (and back) via unsafe.Pointer — legal per the
// language spec's struct-layout guarantee for a pointer to a struct's first
// field. This is the same "object header" trick the spec's C original
// (zweix123/zlang, object.h) uses via raw pointer casts; Go just needs
// unsafe.Pointer to spell it instead of a cast between incompatible struct
// pointer types.
//
// Equality:
//
// Nil equals Nil; Bool equals Bool by value; Number equality follows
// IEEE-754 (NaN != NaN); Object equality is pointer identity, which is made
// semantic for strings by interning (see the vm package, which owns the
// heap and therefore the intern table).
package value

import (
	"strconv"
	"strings"
	"unsafe"
)

// ValueType discriminates the Value union.
type ValueType uint8

const (
	ValNil ValueType = iota
	ValBool
	ValNumber
	ValObject
)

// Value is a small, copyable tagged union.
type Value struct {
	Type    ValueType
	boolean bool
	number  float64
	obj     *Object
}

// Nil is the single nil value.
var Nil = Value{Type: ValNil}

func Bool(b bool) Value   { return Value{Type: ValBool, boolean: b} }
func Number(n float64) Value { return Value{Type: ValNumber, number: n} }
func Obj(o *Object) Value { return Value{Type: ValObject, obj: o} }

func (v Value) IsNil() bool    { return v.Type == ValNil }
func (v Value) IsBool() bool   { return v.Type == ValBool }
func (v Value) IsNumber() bool { return v.Type == ValNumber }
func (v Value) IsObject() bool { return v.Type == ValObject }

func (v Value) AsBool() bool      { return v.boolean }
func (v Value) AsNumber() float64 { return v.number }
func (v Value) AsObject() *Object { return v.obj }

// IsObjType reports whether v is a heap object of the given type.
func (v Value) IsObjType(t ObjType) bool {
	return v.Type == ValObject && v.obj != nil && v.obj.Type == t
}

// IsFalsey implements glox truthiness: nil and false are falsey, everything
// else (including 0 and "") is truthy.
func (v Value) IsFalsey() bool {
	return v.IsNil() || (v.IsBool() && !v.AsBool())
}

// Equal implements the cross-type equality rules of spec §3: cross-type
// comparisons are always false, Numbers compare by IEEE-754 (so NaN != NaN),
// Objects compare by identity.
func Equal(a, b Value) bool {
	if a.Type != b.Type {
		return false
	}
	switch a.Type {
	case ValNil:
		return true
	case ValBool:
		return a.boolean == b.boolean
	case ValNumber:
		return a.number == b.number
	case ValObject:
		return a.obj == b.obj
	default:
		return false
	}
}

// ObjType discriminates heap Object variants.
type ObjType uint8

const (
	ObjTypeString ObjType = iota
	ObjTypeFunction
	ObjTypeClosure
	ObjTypeUpvalue
	ObjTypeClass
	ObjTypeInstance
	ObjTypeBoundMethod
	ObjTypeNative
	ObjTypeList
)

func (t ObjType) String() string {
	switch t {
	case ObjTypeString:
		return "string"
	case ObjTypeFunction:
		return "function"
	case ObjTypeClosure:
		return "closure"
	case ObjTypeUpvalue:
		return "upvalue"
	case ObjTypeClass:
		return "class"
	case ObjTypeInstance:
		return "instance"
	case ObjTypeBoundMethod:
		return "bound method"
	case ObjTypeNative:
		return "native function"
	case ObjTypeList:
		return "list"
	default:
		return "unknown"
	}
}

// Object is the common header embedded as the first field of every heap
// variant. IsMarked is the GC's tri-color mark bit (black iff true and not
// on the gray worklist; white iff false); Next links every live object into
// the VM's intrusive allocation list so sweep can walk the whole heap
// without a separate registry.
type Object struct {
	Type     ObjType
	IsMarked bool
	Next     *Object
}

func asObject[T any](o *Object) *T {
	return (*T)(unsafe.Pointer(o))
}

// --- String ---

// OString is an immutable, interned byte sequence. Two distinct OString
// allocations are never equal by bytes+length (the VM's intern table
// guarantees that at construction time; see vm.InternString), so Object identity
// comparison is sufficient for string equality.
type OString struct {
	Object
	Chars string
	Hash  uint32
}

func AsString(v Value) *OString {
	return asObject[OString](v.obj)
}

func (s *OString) Val() Value { return Obj(&s.Object) }

// FNV1a computes the 32-bit FNV-1a hash used to key interned strings.
// Constants match zweix123/zlang's object.c hashString: offset basis
// 2166136261, prime 16777619.
func FNV1a(s string) uint32 {
	var hash uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		hash ^= uint32(s[i])
		hash *= 16777619
	}
	return hash
}

// --- Function ---

// OFunction is a compiled function body: its Chunk, declared arity and
// upvalue count, and an optional name (nil for the implicit top-level
// script function).
type OFunction struct {
	Object
	Arity        int
	UpvalueCount int
	Chunk        *Chunk
	Name         *OString
}

func NewFunction() *OFunction {
	return &OFunction{Object: Object{Type: ObjTypeFunction}, Chunk: NewChunk()}
}

func AsFunction(v Value) *OFunction { return asObject[OFunction](v.obj) }

func (f *OFunction) Val() Value { return Obj(&f.Object) }

// --- Upvalue ---

// OUpvalue is an indirection cell. While open it refers to a live slot on
// the VM's value stack by index (Location); once its scope exits, the VM
// copies the slot's Value into Closed, sets IsClosed, and the cell is
// self-contained.
type OUpvalue struct {
	Object
	Location int
	Closed   Value
	IsClosed bool
	NextOpen *OUpvalue // next entry in the VM's descending open-upvalue list
}

func NewUpvalue(stackIndex int) *OUpvalue {
	return &OUpvalue{Object: Object{Type: ObjTypeUpvalue}, Location: stackIndex}
}

func AsUpvalue(v Value) *OUpvalue { return asObject[OUpvalue](v.obj) }

// --- Closure ---

// OClosure binds a Function to a concrete array of Upvalues, one per
// upvalue the function's compiled body declared.
type OClosure struct {
	Object
	Function *OFunction
	Upvalues []*OUpvalue
}

func NewClosure(fn *OFunction) *OClosure {
	return &OClosure{
		Object:   Object{Type: ObjTypeClosure},
		Function: fn,
		Upvalues: make([]*OUpvalue, fn.UpvalueCount),
	}
}

func AsClosure(v Value) *OClosure { return asObject[OClosure](v.obj) }

func (c *OClosure) Val() Value { return Obj(&c.Object) }

// --- Class ---

// OClass holds the class name and its method table (String -> Closure,
// stored as Value so Table[Value] can be shared between globals, fields and
// methods). Inheritance is resolved at class-definition time: INHERIT
// copies every method of the superclass into the subclass's table, so
// method lookup at call time never walks a superclass chain.
type OClass struct {
	Object
	Name    *OString
	Methods *Table[Value]
}

func NewClass(name *OString) *OClass {
	return &OClass{Object: Object{Type: ObjTypeClass}, Name: name, Methods: NewTable[Value]()}
}

func AsClass(v Value) *OClass { return asObject[OClass](v.obj) }

func (c *OClass) Val() Value { return Obj(&c.Object) }

// --- Instance ---

// OInstance is a live object of some OClass, with its own field table.
type OInstance struct {
	Object
	Class  *OClass
	Fields *Table[Value]
}

func NewInstance(class *OClass) *OInstance {
	return &OInstance{Object: Object{Type: ObjTypeInstance}, Class: class, Fields: NewTable[Value]()}
}

func AsInstance(v Value) *OInstance { return asObject[OInstance](v.obj) }

func (i *OInstance) Val() Value { return Obj(&i.Object) }

// --- BoundMethod ---

// OBoundMethod pairs a receiver with one of its class's method closures,
// produced by property access that resolves to a method rather than a
// field (GET_PROPERTY's bindMethod fallback).
type OBoundMethod struct {
	Object
	Receiver Value
	Method   *OClosure
}

func NewBoundMethod(receiver Value, method *OClosure) *OBoundMethod {
	return &OBoundMethod{Object: Object{Type: ObjTypeBoundMethod}, Receiver: receiver, Method: method}
}

func AsBoundMethod(v Value) *OBoundMethod { return asObject[OBoundMethod](v.obj) }

func (b *OBoundMethod) Val() Value { return Obj(&b.Object) }

// --- Native ---

// NativeFn is a built-in callable. It receives exactly the arguments the
// call site pushed and returns either a result Value or a runtime error.
type NativeFn func(args []Value) (Value, error)

// ONative wraps a NativeFn with the name/arity metadata the VM's call
// protocol needs to arity-check and report errors against (-1 = variadic).
type ONative struct {
	Object
	Name  string
	Arity int
	Fn    NativeFn
}

func NewNative(name string, arity int, fn NativeFn) *ONative {
	return &ONative{Object: Object{Type: ObjTypeNative}, Name: name, Arity: arity, Fn: fn}
}

func AsNative(v Value) *ONative { return asObject[ONative](v.obj) }

func (n *ONative) Val() Value { return Obj(&n.Object) }

// --- List ---

// OList is a growable, order-preserving Value sequence supporting append,
// delete-at-index, indexed get/set and length (spec §3 List variant).
type OList struct {
	Object
	Items []Value
}

func NewList(items []Value) *OList {
	return &OList{Object: Object{Type: ObjTypeList}, Items: items}
}

func AsList(v Value) *OList { return asObject[OList](v.obj) }

func (l *OList) Val() Value { return Obj(&l.Object) }

// --- printing ---

// Stringify renders v the way PRINT and the "show" native do. It is the
// single source of truth for printed form so both call sites agree.
func Stringify(v Value) string {
	switch v.Type {
	case ValNil:
		return "nil"
	case ValBool:
		return strconv.FormatBool(v.boolean)
	case ValNumber:
		return strconv.FormatFloat(v.number, 'g', -1, 64)
	case ValObject:
		return stringifyObject(v.obj)
	default:
		return "?"
	}
}

func stringifyObject(o *Object) string {
	switch o.Type {
	case ObjTypeString:
		return asObject[OString](o).Chars
	case ObjTypeFunction:
		return functionName(asObject[OFunction](o))
	case ObjTypeClosure:
		return functionName(asObject[OClosure](o).Function)
	case ObjTypeUpvalue:
		return "upvalue"
	case ObjTypeClass:
		return asObject[OClass](o).Name.Chars
	case ObjTypeInstance:
		inst := asObject[OInstance](o)
		return inst.Class.Name.Chars + " instance"
	case ObjTypeBoundMethod:
		return functionName(asObject[OBoundMethod](o).Method.Function)
	case ObjTypeNative:
		return "<native fn " + asObject[ONative](o).Name + ">"
	case ObjTypeList:
		return stringifyList(asObject[OList](o))
	default:
		return "<object>"
	}
}

func functionName(fn *OFunction) string {
	if fn.Name == nil {
		return "<script>"
	}
	return "<fn " + fn.Name.Chars + ">"
}

func stringifyList(l *OList) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, item := range l.Items {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(Stringify(item))
	}
	b.WriteByte(']')
	return b.String()
}
