package ir

import "testing"

func straightLineFunc() *Function {
	fn := NewFunction("add_two", []Param{{ID: 0, Name: "x", Type: I32}}, I32)
	b := NewBuilder(fn)
	c := b.EmitConst(I32, 2)
	sum := b.EmitBinary(OpAdd, I32, 0, c)
	b.Ret(sum)
	return fn
}

func branchingFunc() *Function {
	fn := NewFunction("abs", []Param{{ID: 0, Name: "x", Type: I32}}, I32)
	b := NewBuilder(fn)
	entry := b.Block()
	neg := b.NewBlock("neg")
	pos := b.NewBlock("pos")
	join := b.NewBlock("join")

	zero := b.EmitConst(I32, 0)
	cond := b.EmitCompare(CmpLT, 0, zero)
	b.SetBlock(entry)
	b.CondBr(cond, neg.ID, pos.ID)

	b.SetBlock(neg)
	negVal := b.EmitBinary(OpSub, I32, zero, 0)
	b.Br(join.ID)

	b.SetBlock(pos)
	b.Br(join.ID)

	b.SetBlock(join)
	result := b.AddPhi(join, I32, PhiIncoming{Pred: neg.ID, Value: negVal}, PhiIncoming{Pred: pos.ID, Value: 0})
	b.Ret(result)

	return fn
}

func TestVerifyStraightLine(t *testing.T) {
	m := NewModule("test")
	m.Funcs = append(m.Funcs, straightLineFunc())
	if err := Verify(m); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerifyBranchingPhi(t *testing.T) {
	m := NewModule("test")
	m.Funcs = append(m.Funcs, branchingFunc())
	if err := Verify(m); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerifyRejectsMissingTerminator(t *testing.T) {
	fn := NewFunction("broken", nil, Void)
	fn.NewBlock("entry")
	m := NewModule("test")
	m.Funcs = append(m.Funcs, fn)
	if err := Verify(m); err == nil {
		t.Fatal("expected Verify to reject a block with no terminator")
	}
}

func TestVerifyRejectsIncompletePhi(t *testing.T) {
	fn := branchingFunc()
	join := fn.Block(fn.Blocks[3].ID)
	join.Phis[0].Incoming = join.Phis[0].Incoming[:1]
	m := NewModule("test")
	m.Funcs = append(m.Funcs, fn)
	if err := Verify(m); err == nil {
		t.Fatal("expected Verify to reject a phi missing a predecessor")
	}
}

func TestClonePreservesShapeAndIsIndependent(t *testing.T) {
	m := NewModule("test")
	m.Funcs = append(m.Funcs, branchingFunc())
	clone := m.Clone()

	if err := Verify(clone); err != nil {
		t.Fatalf("Verify(clone): %v", err)
	}
	if Measure(clone) != Measure(m) {
		t.Fatalf("clone metrics differ: got %+v, want %+v", Measure(clone), Measure(m))
	}

	clone.Funcs[0].Blocks[0].Instrs = append(clone.Funcs[0].Blocks[0].Instrs, &Const{Result: 99, Type: I32, Value: 7})
	if len(m.Funcs[0].Blocks[0].Instrs) == len(clone.Funcs[0].Blocks[0].Instrs) {
		t.Fatal("mutating clone instructions affected the original module")
	}
}

func TestPredecessorsAndSuccessors(t *testing.T) {
	fn := branchingFunc()
	preds := Predecessors(fn)
	join := fn.Blocks[3].ID
	if len(preds[join]) != 2 {
		t.Fatalf("join block should have 2 predecessors, got %d", len(preds[join]))
	}
	entry := fn.Blocks[0]
	succ := Successors(entry.Term)
	if len(succ) != 2 {
		t.Fatalf("entry block should have 2 successors, got %d", len(succ))
	}
}

func TestReachableSkipsOrphanBlocks(t *testing.T) {
	fn := straightLineFunc()
	orphan := fn.NewBlock("orphan")
	orphan.SetTerm(&Unreachable{})
	reachable := Reachable(fn)
	if reachable[orphan.ID] {
		t.Fatal("orphan block should not be reachable from entry")
	}
	if !reachable[fn.Blocks[0].ID] {
		t.Fatal("entry block should be reachable from itself")
	}
}

func TestTypeEquality(t *testing.T) {
	m := NewModule("test")
	a := m.PointerTo(I8)
	c := m.PointerTo(I8)
	if a != c {
		t.Fatal("PointerTo should intern structurally identical types to the same instance")
	}
	arr := m.ArrayOf(I8, 16)
	if !arr.Equals(&ArrayType{Elem: I8, Len: 16}) {
		t.Fatal("ArrayType.Equals should ignore instance identity")
	}
}

func TestBinOpStringCoversFullTaxonomy(t *testing.T) {
	ops := []BinOp{OpAdd, OpSub, OpMul, OpDiv, OpAnd, OpOr, OpXor, OpShl, OpLShr, OpAShr}
	want := []string{"add", "sub", "mul", "div", "and", "or", "xor", "shl", "lshr", "ashr"}
	for i, op := range ops {
		if got := op.String(); got != want[i] {
			t.Fatalf("BinOp(%d).String() = %q, want %q", op, got, want[i])
		}
	}
}

func TestInstrSourceLocDefaultsEmptyAndIsSettable(t *testing.T) {
	c := &Const{Result: 1, Type: I32, Value: 5}
	if c.SourceLoc() != "" {
		t.Fatalf("new instruction should have no source location, got %q", c.SourceLoc())
	}
	c.SetSourceLoc("file.src:3:4")
	if c.SourceLoc() != "file.src:3:4" {
		t.Fatalf("SetSourceLoc did not take effect, got %q", c.SourceLoc())
	}
}

func TestClonePreservesInstructionSourceLoc(t *testing.T) {
	fn := straightLineFunc()
	fn.Blocks[0].Instrs[0].SetSourceLoc("file.src:1:1")
	cp := fn.clone()
	if cp.Blocks[0].Instrs[0].SourceLoc() != "file.src:1:1" {
		t.Fatal("clone should preserve per-instruction source location")
	}
}

func TestFormatModuleIncludesFunctionsAndGlobals(t *testing.T) {
	m := NewModule("demo")
	m.Globals = append(m.Globals, &GlobalVariable{Name: "msg_enc", Type: m.ArrayOf(I8, 4), Constant: true, Initializer: []byte{1, 2, 3, 0}})
	m.Funcs = append(m.Funcs, straightLineFunc())
	out := FormatModule(m)
	if out == "" {
		t.Fatal("FormatModule returned empty output")
	}
}
