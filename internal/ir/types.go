// Package ir defines the typed SSA intermediate representation that every
// obfuscation pass reads and rewrites. It is the substrate the rest of the
// toolchain edits; outside a pass it is observed read-only.
package ir

import "fmt"

// Type is the common interface for every IR type.
type Type interface {
	String() string
	Equals(Type) bool
}

// IntType is a fixed-width integer type, signed or unsigned.
type IntType struct {
	Width  int
	Signed bool
}

func (t *IntType) String() string {
	if t.Signed {
		return fmt.Sprintf("i%d", t.Width)
	}
	return fmt.Sprintf("u%d", t.Width)
}

func (t *IntType) Equals(other Type) bool {
	o, ok := other.(*IntType)
	return ok && o.Width == t.Width && o.Signed == t.Signed
}

// PointerType points at a value of Elem type.
type PointerType struct {
	Elem Type
}

func (t *PointerType) String() string { return t.Elem.String() + "*" }

func (t *PointerType) Equals(other Type) bool {
	o, ok := other.(*PointerType)
	return ok && o.Elem.Equals(t.Elem)
}

// ArrayType is a fixed-length array of Elem.
type ArrayType struct {
	Elem Type
	Len  int
}

func (t *ArrayType) String() string { return fmt.Sprintf("[%d x %s]", t.Len, t.Elem.String()) }

func (t *ArrayType) Equals(other Type) bool {
	o, ok := other.(*ArrayType)
	return ok && o.Len == t.Len && o.Elem.Equals(t.Elem)
}

// FuncType is a function signature: ordered parameter types and a return type.
type FuncType struct {
	Params []Type
	Return Type
}

func (t *FuncType) String() string {
	s := "("
	for i, p := range t.Params {
		if i > 0 {
			s += ", "
		}
		s += p.String()
	}
	s += ") -> "
	if t.Return == nil {
		s += "void"
	} else {
		s += t.Return.String()
	}
	return s
}

func (t *FuncType) Equals(other Type) bool {
	o, ok := other.(*FuncType)
	if !ok || len(o.Params) != len(t.Params) {
		return false
	}
	for i := range t.Params {
		if !t.Params[i].Equals(o.Params[i]) {
			return false
		}
	}
	if (t.Return == nil) != (o.Return == nil) {
		return false
	}
	if t.Return != nil && !t.Return.Equals(o.Return) {
		return false
	}
	return true
}

// voidType marks the absence of a return value.
type voidType struct{}

func (voidType) String() string        { return "void" }
func (voidType) Equals(other Type) bool { _, ok := other.(voidType); return ok }

// Predefined scalar types shared by every module.
var (
	I1    Type = &IntType{Width: 1, Signed: false}
	I8    Type = &IntType{Width: 8, Signed: true}
	U8    Type = &IntType{Width: 8, Signed: false}
	I32   Type = &IntType{Width: 32, Signed: true}
	U32   Type = &IntType{Width: 32, Signed: false}
	I64   Type = &IntType{Width: 64, Signed: true}
	U64   Type = &IntType{Width: 64, Signed: false}
	Void  Type = voidType{}
	Int8P Type = &PointerType{Elem: I8}
)

// PointerTo interns a pointer-to-elem type. Interning keeps repeated
// GEP/decoder construction from allocating a fresh type object per use.
func (m *Module) PointerTo(elem Type) Type {
	return m.types.intern(&PointerType{Elem: elem})
}

// ArrayOf interns a fixed-length array type.
func (m *Module) ArrayOf(elem Type, length int) Type {
	return m.types.intern(&ArrayType{Elem: elem, Len: length})
}

// typeTable interns structurally-equal types so passes can compare types by
// pointer identity as well as by Equals.
type typeTable struct {
	seen []Type
}

func newTypeTable() *typeTable {
	return &typeTable{}
}

func (tt *typeTable) intern(t Type) Type {
	for _, existing := range tt.seen {
		if existing.Equals(t) {
			return existing
		}
	}
	tt.seen = append(tt.seen, t)
	return t
}
