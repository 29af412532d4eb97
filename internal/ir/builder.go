package ir

// Builder provides emit-style helpers for constructing a function's body,
// mirroring the incremental, current-block style a frontend lowering pass
// uses to generate SSA.
type Builder struct {
	fn      *Function
	current *Block
}

// NewBuilder starts building fn at its entry block, creating one if fn has
// none yet.
func NewBuilder(fn *Function) *Builder {
	cur := fn.Entry()
	if cur == nil {
		cur = fn.NewBlock("entry")
	}
	return &Builder{fn: fn, current: cur}
}

// Block returns the block the builder is currently appending to.
func (b *Builder) Block() *Block { return b.current }

// SetBlock redirects subsequent Emit* calls to block.
func (b *Builder) SetBlock(block *Block) { b.current = block }

// NewBlock creates a new block in the function without switching to it.
func (b *Builder) NewBlock(label string) *Block { return b.fn.NewBlock(label) }

func (b *Builder) emit(instr Instr) {
	b.current.Append(instr)
}

// EmitConst appends a Const instruction and returns its result handle.
func (b *Builder) EmitConst(t Type, value int64) ValueID {
	id := b.fn.NextValueID()
	b.emit(&Const{Result: id, Type: t, Value: value})
	return id
}

// EmitBinary appends a Binary instruction and returns its result handle.
func (b *Builder) EmitBinary(op BinOp, t Type, left, right ValueID) ValueID {
	id := b.fn.NextValueID()
	b.emit(&Binary{Result: id, Op: op, Left: left, Right: right, Type: t})
	return id
}

// EmitCompare appends a Compare instruction and returns its i1 result handle.
func (b *Builder) EmitCompare(pred CmpPred, left, right ValueID) ValueID {
	id := b.fn.NextValueID()
	b.emit(&Compare{Result: id, Pred: pred, Left: left, Right: right})
	return id
}

// EmitAlloca appends an Alloca instruction and returns the pointer it yields.
func (b *Builder) EmitAlloca(t Type) ValueID {
	id := b.fn.NextValueID()
	b.emit(&Alloca{Result: id, Type: t})
	return id
}

// EmitLoad appends a Load instruction and returns its result handle.
func (b *Builder) EmitLoad(t Type, addr ValueID) ValueID {
	id := b.fn.NextValueID()
	b.emit(&Load{Result: id, Addr: addr, Type: t})
	return id
}

// EmitStore appends a Store instruction.
func (b *Builder) EmitStore(addr, value ValueID) {
	b.emit(&Store{Addr: addr, Value: value})
}

// EmitGEP appends a GEP instruction and returns the computed pointer handle.
func (b *Builder) EmitGEP(elem Type, base, index ValueID) ValueID {
	id := b.fn.NextValueID()
	b.emit(&GEP{Result: id, Base: base, Index: index, Elem: elem})
	return id
}

// EmitCall appends a Call instruction and returns its result handle. A
// fresh handle is allocated even for a void target; callers ignore it.
func (b *Builder) EmitCall(target string, t Type, args ...ValueID) ValueID {
	id := b.fn.NextValueID()
	b.emit(&Call{Result: id, Target: target, Args: args, Type: t})
	return id
}

// EmitCast appends a Cast instruction and returns its result handle.
func (b *Builder) EmitCast(t Type, x ValueID) ValueID {
	id := b.fn.NextValueID()
	b.emit(&Cast{Result: id, X: x, Type: t})
	return id
}

// EmitGlobalAddr appends a GlobalAddr instruction and returns the address
// it yields.
func (b *Builder) EmitGlobalAddr(name string, t Type) ValueID {
	id := b.fn.NextValueID()
	b.emit(&GlobalAddr{Result: id, Name: name, Type: t})
	return id
}

// AddPhi appends a Phi to block's entry, returning its result handle.
func (b *Builder) AddPhi(block *Block, t Type, incoming ...PhiIncoming) ValueID {
	id := b.fn.NextValueID()
	block.Phis = append(block.Phis, &Phi{Result: id, Type: t, Incoming: incoming})
	return id
}

// Ret terminates the current block with a value-carrying return.
func (b *Builder) Ret(value ValueID) {
	b.current.SetTerm(&Return{Value: value, HasValue: true})
}

// RetVoid terminates the current block with a value-less return.
func (b *Builder) RetVoid() {
	b.current.SetTerm(&Return{HasValue: false})
}

// Br terminates the current block with an unconditional jump.
func (b *Builder) Br(target BlockID) {
	b.current.SetTerm(&Br{Target: target})
}

// CondBr terminates the current block with a conditional jump.
func (b *Builder) CondBr(cond ValueID, then, els BlockID) {
	b.current.SetTerm(&CondBr{Cond: cond, Then: then, Else: els})
}
