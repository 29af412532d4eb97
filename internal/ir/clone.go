package ir

// Clone produces a structurally independent copy of m. Cross-references
// inside a function (ValueID, BlockID) are plain integers and need no
// remapping; only the pointer-backed containers (slices of *Function,
// *Block, Instr) are duplicated. Each clone gets its own type table so
// fitness trials run on clones in parallel never share mutable state.
func (m *Module) Clone() *Module {
	clone := &Module{
		Name:  m.Name,
		types: m.types.cloneTable(),
	}
	if m.NamedMetadata != nil {
		clone.NamedMetadata = make(map[string][]string, len(m.NamedMetadata))
		for k, v := range m.NamedMetadata {
			cp := make([]string, len(v))
			copy(cp, v)
			clone.NamedMetadata[k] = cp
		}
	}
	clone.Globals = make([]*GlobalVariable, len(m.Globals))
	for i, g := range m.Globals {
		clone.Globals[i] = g.clone()
	}
	clone.Funcs = make([]*Function, len(m.Funcs))
	for i, fn := range m.Funcs {
		clone.Funcs[i] = fn.clone()
	}
	return clone
}

func (tt *typeTable) cloneTable() *typeTable {
	cp := make([]Type, len(tt.seen))
	copy(cp, tt.seen)
	return &typeTable{seen: cp}
}

func (g *GlobalVariable) clone() *GlobalVariable {
	init := make([]byte, len(g.Initializer))
	copy(init, g.Initializer)
	return &GlobalVariable{
		Name:        g.Name,
		Type:        g.Type,
		Constant:    g.Constant,
		Linkage:     g.Linkage,
		Initializer: init,
	}
}

func (fn *Function) clone() *Function {
	params := make([]Param, len(fn.Params))
	copy(params, fn.Params)
	cp := &Function{
		Name:           fn.Name,
		Params:         params,
		ReturnType:     fn.ReturnType,
		Linkage:        fn.Linkage,
		Declaration:    fn.Declaration,
		SourceLocation: fn.SourceLocation,
		nextValue:      fn.nextValue,
		nextBlock:      fn.nextBlock,
	}
	cp.Blocks = make([]*Block, len(fn.Blocks))
	for i, b := range fn.Blocks {
		cp.Blocks[i] = b.clone()
	}
	return cp
}

func (b *Block) clone() *Block {
	cp := &Block{ID: b.ID, Label: b.Label, Term: cloneTerm(b.Term)}
	cp.Phis = make([]*Phi, len(b.Phis))
	for i, p := range b.Phis {
		cp.Phis[i] = clonePhi(p)
	}
	cp.Instrs = make([]Instr, len(b.Instrs))
	for i, instr := range b.Instrs {
		cp.Instrs[i] = cloneInstr(instr)
	}
	return cp
}

func clonePhi(p *Phi) *Phi {
	incoming := make([]PhiIncoming, len(p.Incoming))
	copy(incoming, p.Incoming)
	return &Phi{loc: p.loc, Result: p.Result, Type: p.Type, Incoming: incoming}
}

func cloneInstr(instr Instr) Instr {
	switch i := instr.(type) {
	case *Const:
		cp := *i
		return &cp
	case *Binary:
		cp := *i
		return &cp
	case *Compare:
		cp := *i
		return &cp
	case *Alloca:
		cp := *i
		return &cp
	case *Load:
		cp := *i
		return &cp
	case *Store:
		cp := *i
		return &cp
	case *GEP:
		cp := *i
		return &cp
	case *Call:
		cp := *i
		args := make([]ValueID, len(i.Args))
		copy(args, i.Args)
		cp.Args = args
		return &cp
	case *Select:
		cp := *i
		return &cp
	case *Cast:
		cp := *i
		return &cp
	case *GlobalAddr:
		cp := *i
		return &cp
	case *Phi:
		return clonePhi(i)
	default:
		panic("ir: clone of unknown instruction type")
	}
}

func cloneTerm(term Term) Term {
	switch t := term.(type) {
	case nil:
		return nil
	case *Return:
		cp := *t
		return &cp
	case *Br:
		cp := *t
		return &cp
	case *CondBr:
		cp := *t
		return &cp
	case *Switch:
		cp := *t
		cp.Cases = make([]SwitchCase, len(t.Cases))
		copy(cp.Cases, t.Cases)
		return &cp
	case *Unreachable:
		cp := *t
		return &cp
	default:
		panic("ir: clone of unknown terminator type")
	}
}
