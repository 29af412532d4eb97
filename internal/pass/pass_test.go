package pass

import (
	"math/rand"
	"testing"

	"github.com/duskforge/obfusc/internal/diagnostics"
	"github.com/duskforge/obfusc/internal/ir"
	"github.com/duskforge/obfusc/internal/logging"
)

func addFunctionModule() *ir.Module {
	mod := ir.NewModule("test")
	fn := ir.NewFunction("add", []ir.Param{{ID: 0, Name: "a", Type: ir.I32}, {ID: 1, Name: "b", Type: ir.I32}}, ir.I32)
	b := ir.NewBuilder(fn)
	sum := b.EmitBinary(ir.OpAdd, ir.I32, 0, 1)
	b.Ret(sum)
	mod.Funcs = append(mod.Funcs, fn)
	return mod
}

func TestInstructionSubstitutionBitwiseIdentity(t *testing.T) {
	for a := int32(-5); a <= 5; a++ {
		for bv := int32(-5); bv <= 5; bv++ {
			got := int32((a ^ bv) + ((a & bv) << 1))
			if got != a+bv {
				t.Fatalf("add identity fails for a=%d b=%d: got %d want %d", a, bv, got, a+bv)
			}
			got = int32((a ^ bv) - ((^a & bv) << 1))
			if got != a-bv {
				t.Fatalf("sub identity fails for a=%d b=%d: got %d want %d", a, bv, got, a-bv)
			}
		}
	}
}

func TestInstructionSubstitutionRewritesAddSub(t *testing.T) {
	mod := addFunctionModule()
	p := NewInstructionSubstitution(rand.New(rand.NewSource(1)), nil)
	modified, err := p.Apply(mod)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !modified {
		t.Fatal("expected substitution to report a modification")
	}
	if err := ir.Verify(mod); err != nil {
		t.Fatalf("Verify after substitution: %v", err)
	}
	fn := mod.Funcs[0]
	for _, instr := range fn.Blocks[0].Instrs {
		if bin, ok := instr.(*ir.Binary); ok && bin.Op == ir.OpAdd && bin.Left == 0 && bin.Right == 1 {
			t.Fatal("original add instruction should have been replaced")
		}
	}
}

func TestInstructionSubstitutionSkipsNonPowerOfTwoMultiply(t *testing.T) {
	mod := ir.NewModule("test")
	fn := ir.NewFunction("mul3", []ir.Param{{ID: 0, Name: "a", Type: ir.I32}}, ir.I32)
	b := ir.NewBuilder(fn)
	three := b.EmitConst(ir.I32, 3)
	prod := b.EmitBinary(ir.OpMul, ir.I32, 0, three)
	b.Ret(prod)
	mod.Funcs = append(mod.Funcs, fn)

	p := NewInstructionSubstitution(rand.New(rand.NewSource(1)), nil)
	if _, err := p.Apply(mod); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	found := false
	for _, instr := range fn.Blocks[0].Instrs {
		if bin, ok := instr.(*ir.Binary); ok && bin.Result == prod {
			if bin.Op != ir.OpMul {
				t.Fatalf("multiply by non-power-of-two should be left untouched, got op %s", bin.Op)
			}
			found = true
		}
	}
	if !found {
		t.Fatal("expected the original multiply instruction to remain")
	}
}

func TestInstructionSubstitutionRewritesPowerOfTwoMultiply(t *testing.T) {
	mod := ir.NewModule("test")
	fn := ir.NewFunction("mul4", []ir.Param{{ID: 0, Name: "a", Type: ir.I32}}, ir.I32)
	b := ir.NewBuilder(fn)
	four := b.EmitConst(ir.I32, 4)
	prod := b.EmitBinary(ir.OpMul, ir.I32, 0, four)
	b.Ret(prod)
	mod.Funcs = append(mod.Funcs, fn)

	p := NewInstructionSubstitution(rand.New(rand.NewSource(1)), nil)
	if _, err := p.Apply(mod); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	for _, instr := range fn.Blocks[0].Instrs {
		if bin, ok := instr.(*ir.Binary); ok && bin.Result == prod {
			if bin.Op != ir.OpShl {
				t.Fatalf("multiply by power of two should become a shift, got %s", bin.Op)
			}
		}
	}
}

func diamondModule() *ir.Module {
	mod := ir.NewModule("test")
	fn := ir.NewFunction("diamond", []ir.Param{{ID: 0, Name: "x", Type: ir.I32}}, ir.Void)
	b := ir.NewBuilder(fn)
	entry := b.Block()
	left := b.NewBlock("left")
	right := b.NewBlock("right")
	exit := b.NewBlock("exit")

	zero := b.EmitConst(ir.I32, 0)
	cond := b.EmitCompare(ir.CmpLT, 0, zero)
	b.SetBlock(entry)
	b.CondBr(cond, left.ID, right.ID)

	b.SetBlock(left)
	b.Br(exit.ID)

	b.SetBlock(right)
	b.Br(exit.ID)

	b.SetBlock(exit)
	b.RetVoid()

	mod.Funcs = append(mod.Funcs, fn)
	return mod
}

func TestBogusControlFlowOpaquePredicateAlwaysTrue(t *testing.T) {
	for x := int32(-1000); x <= 1000; x++ {
		if ((x * (x + 1)) & 1) != 0 {
			t.Fatalf("opaque predicate false for x=%d", x)
		}
	}
}

func TestBogusControlFlowPreservesVerifiability(t *testing.T) {
	mod := diamondModule()
	before := ir.Measure(mod)
	p := NewBogusControlFlow(rand.New(rand.NewSource(7)), nil)
	// Reseed the pass's random source so the test is deterministic.
	bcf := p.(*bogusControlFlow)
	bcf.rng = rand.New(rand.NewSource(7))
	modified, err := p.Apply(mod)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := ir.Verify(mod); err != nil {
		t.Fatalf("Verify after bogus control flow: %v", err)
	}
	after := ir.Measure(mod)
	if modified && after.Blocks <= before.Blocks {
		t.Fatalf("expected block count to grow when modified: before=%d after=%d", before.Blocks, after.Blocks)
	}
}

func TestAntiAnalysisFakeJumpPredicateAlwaysFalse(t *testing.T) {
	for x := int32(-1000); x <= 1000; x++ {
		if (x & 1) == 2 {
			t.Fatalf("fake jump predicate should never be true, but was for x=%d", x)
		}
	}
}

func TestAntiAnalysisPreservesVerifiability(t *testing.T) {
	mod := diamondModule()
	p := NewAntiAnalysis(rand.New(rand.NewSource(3)), logging.New(testWriter{t}, logging.LevelDebug))
	if _, err := p.Apply(mod); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := ir.Verify(mod); err != nil {
		t.Fatalf("Verify after anti-analysis: %v", err)
	}
}

func TestAntiAnalysisNeverRenamesMain(t *testing.T) {
	mod := ir.NewModule("test")
	fn := ir.NewFunction("main", nil, ir.Void)
	fn.NewBlock("entry").SetTerm(&ir.Return{})
	mod.Funcs = append(mod.Funcs, fn)

	p := NewAntiAnalysis(rand.New(rand.NewSource(1)), nil)
	if _, err := p.Apply(mod); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if mod.Funcs[0].Name != "main" {
		t.Fatalf("main should never be renamed, got %q", mod.Funcs[0].Name)
	}
}

func TestAntiAnalysisScrubsInstructionSourceLocations(t *testing.T) {
	mod := addFunctionModule()
	fn := mod.Funcs[0]
	fn.SourceLocation = "add.src:1:1"
	entry := fn.Blocks[0]
	for _, instr := range entry.Instrs {
		instr.SetSourceLoc("add.src:1:12")
	}

	p := NewAntiAnalysis(rand.New(rand.NewSource(5)), nil)
	if _, err := p.Apply(mod); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if fn.SourceLocation != "" {
		t.Fatalf("expected function source location cleared, got %q", fn.SourceLocation)
	}
	for _, b := range fn.Blocks {
		for _, phi := range b.Phis {
			if phi.SourceLoc() != "" {
				t.Fatalf("expected phi source location cleared, got %q", phi.SourceLoc())
			}
		}
		for _, instr := range b.Instrs {
			if instr.SourceLoc() != "" {
				t.Fatalf("expected instruction source location cleared, got %q", instr.SourceLoc())
			}
		}
	}
}

func fiveBlockDiamond() *ir.Module {
	mod := ir.NewModule("test")
	fn := ir.NewFunction("shape", []ir.Param{{ID: 0, Name: "x", Type: ir.I32}}, ir.Void)
	b := ir.NewBuilder(fn)
	entry := b.Block()
	a := b.NewBlock("a")
	bb := b.NewBlock("b")
	c := b.NewBlock("c")
	exit := b.NewBlock("exit")

	zero := b.EmitConst(ir.I32, 0)
	cond := b.EmitCompare(ir.CmpLT, 0, zero)
	b.SetBlock(entry)
	b.CondBr(cond, a.ID, bb.ID)

	b.SetBlock(a)
	b.Br(c.ID)
	b.SetBlock(bb)
	b.Br(c.ID)
	b.SetBlock(c)
	b.Br(exit.ID)
	b.SetBlock(exit)
	b.RetVoid()

	mod.Funcs = append(mod.Funcs, fn)
	return mod
}

func TestControlFlowFlatteningNeverOrphansOriginalBlocks(t *testing.T) {
	mod := fiveBlockDiamond()
	fn := mod.Funcs[0]
	originalPredCount := make(map[ir.BlockID]int)
	preds := ir.Predecessors(fn)
	hadPred := make(map[ir.BlockID]bool)
	for id, ps := range preds {
		originalPredCount[id] = len(ps)
		hadPred[id] = len(ps) > 0
	}

	p := NewControlFlowFlattening(rand.New(rand.NewSource(1)), nil)
	modified, err := p.Apply(mod)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !modified {
		t.Fatal("expected the 5-block function to be flattened")
	}
	if err := ir.Verify(mod); err != nil {
		t.Fatalf("Verify after flattening: %v", err)
	}

	newPreds := ir.Predecessors(fn)
	for id, had := range hadPred {
		if !had {
			continue
		}
		if fn.Block(id) == nil {
			t.Fatalf("original block %d disappeared from the function", id)
		}
		if len(newPreds[id]) == 0 {
			t.Fatalf("original block %d lost all predecessors after flattening", id)
		}
	}
}

func TestControlFlowFlatteningSkipsSmallFunctions(t *testing.T) {
	mod := addFunctionModule()
	p := NewControlFlowFlattening(rand.New(rand.NewSource(1)), nil)
	modified, err := p.Apply(mod)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if modified {
		t.Fatal("a single-block function should never be flattened")
	}
}

func stringGlobalModule() *ir.Module {
	mod := ir.NewModule("test")
	mod.Globals = append(mod.Globals, &ir.GlobalVariable{
		Name:        "greeting",
		Type:        mod.ArrayOf(ir.I8, 6),
		Constant:    true,
		Initializer: []byte("Hello\x00"),
	})
	fn := ir.NewFunction("use_greeting", nil, mod.PointerTo(ir.I8))
	b := ir.NewBuilder(fn)
	addr := b.EmitGlobalAddr("greeting", mod.PointerTo(ir.I8))
	b.Ret(addr)
	mod.Funcs = append(mod.Funcs, fn)
	return mod
}

func TestStringConcealmentEncryptsAndRewritesUses(t *testing.T) {
	mod := stringGlobalModule()
	p := NewStringConcealment(rand.New(rand.NewSource(42)), nil)
	modified, err := p.Apply(mod)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !modified {
		t.Fatal("expected string concealment to modify the module")
	}
	if err := ir.Verify(mod); err != nil {
		t.Fatalf("Verify after string concealment: %v", err)
	}
	enc := mod.FindGlobal("greeting_enc")
	if enc == nil {
		t.Fatal("expected an encrypted sibling global")
	}
	for i, b := range "Hello\x00" {
		if enc.Initializer[i] == byte(b) && b != 0 {
			t.Fatalf("byte %d unchanged by encryption", i)
		}
	}
	fn := mod.Funcs[0]
	for _, instr := range fn.Blocks[0].Instrs {
		if ga, ok := instr.(*ir.GlobalAddr); ok && ga.Name == "greeting" {
			t.Fatal("use of the original global should have been rewritten")
		}
	}
}

func TestStringConcealmentIsIdempotent(t *testing.T) {
	mod := stringGlobalModule()
	p := NewStringConcealment(rand.New(rand.NewSource(42)), nil)
	if _, err := p.Apply(mod); err != nil {
		t.Fatalf("first Apply: %v", err)
	}
	before := len(mod.Globals)
	modified, err := p.Apply(mod)
	if err != nil {
		t.Fatalf("second Apply: %v", err)
	}
	if modified {
		t.Fatal("second application should not report any modification")
	}
	if len(mod.Globals) != before {
		t.Fatalf("second application changed the global count: before=%d after=%d", before, len(mod.Globals))
	}
}

func TestDriverRunEmptyIsIdentity(t *testing.T) {
	mod := addFunctionModule()
	before := ir.FormatModule(mod)
	report := Run(mod, nil, diagnostics.NewBag(), nil)
	if len(report.Outcomes) != 0 {
		t.Fatalf("expected no outcomes for an empty pass list, got %d", len(report.Outcomes))
	}
	if ir.FormatModule(mod) != before {
		t.Fatal("running an empty pass list should not change the module")
	}
}

func TestDriverRevertsOnPassFailure(t *testing.T) {
	mod := addFunctionModule()
	before := ir.FormatModule(mod)
	bag := diagnostics.NewBag()
	report := Run(mod, []Pass{failingPass{}}, bag, nil)
	if report.Outcomes[0].Modified || report.Outcomes[0].Err == nil {
		t.Fatal("expected the failing pass outcome to report an error")
	}
	if ir.FormatModule(mod) != before {
		t.Fatal("module should be reverted to its pre-pass state after a failing pass")
	}
	if !bag.HasErrors() {
		t.Fatal("expected a diagnostic to be recorded for the failing pass")
	}
}

type failingPass struct{}

func (failingPass) ID() ID       { return AntiAnalysis }
func (failingPass) Name() string { return "failing_pass" }
func (failingPass) Apply(mod *ir.Module) (bool, error) {
	mod.Funcs[0].Blocks[0].Term = nil
	return true, nil
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Logf("%s", p)
	return len(p), nil
}
