package pipeline

import "github.com/duskforge/obfusc/internal/ir"

// SampleModule builds a small but structurally varied module for
// exercising the pipeline without a real frontend: one string global and
// one branching arithmetic function, enough to give every pass except
// control-flow flattening something to act on. The phi in the function's
// join block makes it ineligible for flattening.
func SampleModule() *ir.Module {
	mod := ir.NewModule("sample")

	str := &ir.GlobalVariable{
		Name:        "greeting",
		Type:        mod.ArrayOf(ir.I8, 6),
		Constant:    true,
		Linkage:     ir.LinkageInternal,
		Initializer: []byte("Hello\x00"),
	}
	mod.Globals = append(mod.Globals, str)

	fn := ir.NewFunction("compute", []ir.Param{
		{ID: 0, Name: "a", Type: ir.I32},
		{ID: 1, Name: "b", Type: ir.I32},
	}, ir.I32)

	b := ir.NewBuilder(fn)
	entry := b.Block()
	onNeg := b.NewBlock("on_neg")
	onPos := b.NewBlock("on_pos")
	join := b.NewBlock("join")

	zero := b.EmitConst(ir.I32, 0)
	cond := b.EmitCompare(ir.CmpLT, 0, zero)
	b.SetBlock(entry)
	_ = b.EmitGlobalAddr(str.Name, mod.PointerTo(ir.I8))
	b.CondBr(cond, onNeg.ID, onPos.ID)

	b.SetBlock(onNeg)
	negSum := b.EmitBinary(ir.OpSub, ir.I32, 1, 0)
	b.Br(join.ID)

	b.SetBlock(onPos)
	posSum := b.EmitBinary(ir.OpAdd, ir.I32, 0, 1)
	b.Br(join.ID)

	b.SetBlock(join)
	result := b.AddPhi(join, ir.I32,
		ir.PhiIncoming{Pred: onNeg.ID, Value: negSum},
		ir.PhiIncoming{Pred: onPos.ID, Value: posSum},
	)
	b.Ret(result)

	mod.Funcs = append(mod.Funcs, fn)
	return mod
}
