package pass

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/duskforge/obfusc/internal/ir"
	"github.com/duskforge/obfusc/internal/logging"
)

// reservedPrefix marks function names this pass must never rename, the
// convention reserved for runtime intrinsics. String concealment's
// decoder_K functions do not carry it and are renamed like any other
// internal function.
const reservedPrefix = "rt_"

// debugMetadataSentinel marks named-metadata entries carrying debug info.
const debugMetadataSentinel = "dbg."

const (
	junkInsertProbability = 0.1
	fakeJumpProbability    = 0.15
)

type antiAnalysis struct {
	rng    *rand.Rand
	logger *logging.Logger
}

// NewAntiAnalysis builds the anti-analysis pass.
func NewAntiAnalysis(rng *rand.Rand, logger *logging.Logger) Pass {
	return &antiAnalysis{rng: rng, logger: logger}
}

func (p *antiAnalysis) ID() ID       { return AntiAnalysis }
func (p *antiAnalysis) Name() string { return AntiAnalysis.String() }

func (p *antiAnalysis) Apply(mod *ir.Module) (bool, error) {
	modified := false
	if p.renameSymbols(mod) {
		modified = true
	}
	if p.insertJunkInstructions(mod) {
		modified = true
	}
	if p.insertFakeJumps(mod) {
		modified = true
	}
	if p.scrubMetadata(mod) {
		modified = true
	}
	return modified, nil
}

func (p *antiAnalysis) renameSymbols(mod *ir.Module) bool {
	modified := false
	renamed := make(map[string]string)
	for _, fn := range mod.Funcs {
		if !eligibleForRename(fn, mod.Name) {
			continue
		}
		newName := fmt.Sprintf("f_%08x", p.rng.Uint32())
		renamed[fn.Name] = newName
		fn.Name = newName
		modified = true
	}
	if len(renamed) == 0 {
		return false
	}
	for _, fn := range mod.Funcs {
		for _, b := range fn.Blocks {
			for _, instr := range b.Instrs {
				if call, ok := instr.(*ir.Call); ok {
					if newName, ok := renamed[call.Target]; ok {
						call.Target = newName
					}
				}
			}
		}
	}
	return modified
}

func eligibleForRename(fn *ir.Function, entryPointName string) bool {
	if fn.Name == "main" || fn.Name == entryPointName {
		return false
	}
	if fn.Linkage == ir.LinkageExternal {
		return false
	}
	if strings.HasPrefix(fn.Name, reservedPrefix) {
		return false
	}
	return true
}

func (p *antiAnalysis) insertJunkInstructions(mod *ir.Module) bool {
	modified := false
	for _, fn := range mod.Funcs {
		if fn.Declaration {
			continue
		}
		for _, b := range fn.Blocks {
			out := make([]ir.Instr, 0, len(b.Instrs))
			for _, instr := range b.Instrs {
				out = append(out, instr)
				if p.rng.Float64() < junkInsertProbability {
					out = append(out, p.junkSequence(fn)...)
					modified = true
				}
			}
			b.Instrs = out
		}
	}
	return modified
}

// junkSequence builds a small self-contained, side-effect-free instruction
// sequence chosen uniformly from the four shapes the contract enumerates.
// Its final result is never consumed by anything else in the block, so a
// later dead-code elimination pass is free to remove it.
func (p *antiAnalysis) junkSequence(fn *ir.Function) []ir.Instr {
	lhs, rhs := fn.NextValueID(), fn.NextValueID()
	result := fn.NextValueID()
	seed := []ir.Instr{
		&ir.Const{Result: lhs, Type: ir.I32, Value: int64(p.rng.Intn(1 << 16))},
		&ir.Const{Result: rhs, Type: ir.I32, Value: int64(p.rng.Intn(1 << 16))},
	}
	switch p.rng.Intn(4) {
	case 0: // constant add+mul
		mid := fn.NextValueID()
		return append(seed,
			&ir.Binary{Result: mid, Op: ir.OpAdd, Left: lhs, Right: rhs, Type: ir.I32},
			&ir.Binary{Result: result, Op: ir.OpMul, Left: mid, Right: rhs, Type: ir.I32},
		)
	case 1: // stack alloc+store+load
		slot := fn.NextValueID()
		return append(seed,
			&ir.Alloca{Result: slot, Type: ir.I32},
			&ir.Store{Addr: slot, Value: lhs},
			&ir.Load{Result: result, Addr: slot, Type: ir.I32},
		)
	case 2: // shift-left+shift-right
		mid := fn.NextValueID()
		return append(seed,
			&ir.Binary{Result: mid, Op: ir.OpShl, Left: lhs, Right: rhs, Type: ir.I32},
			&ir.Binary{Result: result, Op: ir.OpLShr, Left: mid, Right: rhs, Type: ir.I32},
		)
	default: // constant compare
		return append(seed,
			&ir.Compare{Result: result, Pred: ir.CmpGE, Left: lhs, Right: rhs},
		)
	}
}

func (p *antiAnalysis) insertFakeJumps(mod *ir.Module) bool {
	modified := false
	for _, fn := range mod.Funcs {
		if fn.Declaration {
			continue
		}
		original := append([]*ir.Block(nil), fn.Blocks...)
		for _, b := range original {
			if len(b.Phis) != 0 {
				continue
			}
			if p.rng.Float64() >= fakeJumpProbability {
				continue
			}
			p.insertFakeJump(fn, b)
			modified = true
		}
	}
	return modified
}

// insertFakeJump splits b at a random point with a conditional branch on an
// opaque-false predicate; the false arm (always taken) continues into the
// rest of the original block, the true arm (never taken) leads to a fresh
// block ending in Unreachable.
func (p *antiAnalysis) insertFakeJump(fn *ir.Function, b *ir.Block) {
	idx := 0
	if len(b.Instrs) > 0 {
		idx = p.rng.Intn(len(b.Instrs) + 1)
	}
	prefix := b.Instrs[:idx]
	suffix := append([]ir.Instr(nil), b.Instrs[idx:]...)
	origTerm := b.Term

	x := int64(p.rng.Int31())
	xID := fn.NextValueID()
	oneID := fn.NextValueID()
	andID := fn.NextValueID()
	twoID := fn.NextValueID()
	condID := fn.NextValueID()
	predInstrs := []ir.Instr{
		&ir.Const{Result: xID, Type: ir.I32, Value: x},
		&ir.Const{Result: oneID, Type: ir.I32, Value: 1},
		&ir.Binary{Result: andID, Op: ir.OpAnd, Left: xID, Right: oneID, Type: ir.I32},
		&ir.Const{Result: twoID, Type: ir.I32, Value: 2},
		&ir.Compare{Result: condID, Pred: ir.CmpEQ, Left: andID, Right: twoID},
	}

	deadBlock := fn.NewBlock("fake_jump_dead")
	deadBlock.Term = &ir.Unreachable{}

	continueBlock := fn.NewBlock("fake_jump_continue")
	continueBlock.Instrs = suffix
	continueBlock.Term = origTerm

	b.Instrs = append(append([]ir.Instr(nil), prefix...), predInstrs...)
	b.Term = &ir.CondBr{Cond: condID, Then: deadBlock.ID, Else: continueBlock.ID}

	retargetPhiPredecessor(fn, b.ID, continueBlock.ID)
}

func (p *antiAnalysis) scrubMetadata(mod *ir.Module) bool {
	modified := false
	for _, fn := range mod.Funcs {
		if fn.SourceLocation != "" {
			fn.SourceLocation = ""
			modified = true
		}
		for _, b := range fn.Blocks {
			for _, phi := range b.Phis {
				if phi.SourceLoc() != "" {
					phi.SetSourceLoc("")
					modified = true
				}
			}
			for _, instr := range b.Instrs {
				if instr.SourceLoc() != "" {
					instr.SetSourceLoc("")
					modified = true
				}
			}
		}
	}
	for name := range mod.NamedMetadata {
		if strings.HasPrefix(name, debugMetadataSentinel) {
			delete(mod.NamedMetadata, name)
			modified = true
		}
	}
	return modified
}
