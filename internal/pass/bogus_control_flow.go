package pass

import (
	"math/rand"

	"github.com/duskforge/obfusc/internal/ir"
	"github.com/duskforge/obfusc/internal/logging"
)

// bogusSplitProbability is the per-eligible-block chance of insertion.
const bogusSplitProbability = 0.3

type bogusControlFlow struct {
	rng    *rand.Rand
	logger *logging.Logger
}

// NewBogusControlFlow builds the bogus control flow pass.
func NewBogusControlFlow(rng *rand.Rand, logger *logging.Logger) Pass {
	return &bogusControlFlow{rng: rng, logger: logger}
}

func (p *bogusControlFlow) ID() ID       { return BogusControlFlow }
func (p *bogusControlFlow) Name() string { return BogusControlFlow.String() }

func (p *bogusControlFlow) Apply(mod *ir.Module) (bool, error) {
	modified := false
	for _, fn := range mod.Funcs {
		if fn.Declaration {
			continue
		}
		original := append([]*ir.Block(nil), fn.Blocks...)
		for _, b := range original {
			if !eligibleForBogus(b) {
				continue
			}
			if p.rng.Float64() >= bogusSplitProbability {
				continue
			}
			p.splitBlock(fn, b)
			modified = true
		}
	}
	return modified, nil
}

func eligibleForBogus(b *ir.Block) bool {
	if len(b.Phis) != 0 {
		return false
	}
	switch b.Term.(type) {
	case *ir.Br, *ir.CondBr, *ir.Return:
		return true
	default:
		return false
	}
}

func (p *bogusControlFlow) splitBlock(fn *ir.Function, b *ir.Block) {
	idx := 0
	if len(b.Instrs) > 0 {
		idx = p.rng.Intn(len(b.Instrs) + 1)
	}
	prefix := b.Instrs[:idx]
	suffix := append([]ir.Instr(nil), b.Instrs[idx:]...)
	origTerm := b.Term

	condID, predInstrs := buildOpaqueTruePredicate(fn, p.rng)

	trueBlock := fn.NewBlock("bogus_true")
	falseBlock := fn.NewBlock("bogus_false")
	joinBlock := fn.NewBlock("bogus_join")

	b.Instrs = append(append([]ir.Instr(nil), prefix...), predInstrs...)
	b.Term = &ir.CondBr{Cond: condID, Then: trueBlock.ID, Else: falseBlock.ID}

	fillJunkSequence(fn, trueBlock, ir.OpAdd)
	trueBlock.Term = &ir.Br{Target: joinBlock.ID}

	fillJunkSequence(fn, falseBlock, ir.OpMul)
	falseBlock.Term = &ir.Br{Target: joinBlock.ID}

	joinBlock.Instrs = suffix
	joinBlock.Term = origTerm

	retargetPhiPredecessor(fn, b.ID, joinBlock.ID)
}

// buildOpaqueTruePredicate emits instructions computing
// ((x*(x+1)) mod 2) == 0 for a fresh random constant x, which holds for
// every integer x because x and x+1 are never both odd.
func buildOpaqueTruePredicate(fn *ir.Function, rng *rand.Rand) (ir.ValueID, []ir.Instr) {
	x := int64(rng.Int31())
	xID := fn.NextValueID()
	oneID := fn.NextValueID()
	xp1ID := fn.NextValueID()
	mulID := fn.NextValueID()
	modID := fn.NextValueID()
	zeroID := fn.NextValueID()
	condID := fn.NextValueID()
	instrs := []ir.Instr{
		&ir.Const{Result: xID, Type: ir.I32, Value: x},
		&ir.Const{Result: oneID, Type: ir.I32, Value: 1},
		&ir.Binary{Result: xp1ID, Op: ir.OpAdd, Left: xID, Right: oneID, Type: ir.I32},
		&ir.Binary{Result: mulID, Op: ir.OpMul, Left: xID, Right: xp1ID, Type: ir.I32},
		&ir.Binary{Result: modID, Op: ir.OpAnd, Left: mulID, Right: oneID, Type: ir.I32},
		&ir.Const{Result: zeroID, Type: ir.I32, Value: 0},
		&ir.Compare{Result: condID, Pred: ir.CmpEQ, Left: modID, Right: zeroID},
	}
	return condID, instrs
}

// fillJunkSequence fills block with a meaningless, side-effect-contained
// arithmetic sequence: an alloca/store/load pair feeding a binary op whose
// result is never consumed.
func fillJunkSequence(fn *ir.Function, block *ir.Block, op ir.BinOp) {
	slot := fn.NextValueID()
	c1 := fn.NextValueID()
	c2 := fn.NextValueID()
	loaded := fn.NextValueID()
	result := fn.NextValueID()
	block.Instrs = []ir.Instr{
		&ir.Alloca{Result: slot, Type: ir.I32},
		&ir.Const{Result: c1, Type: ir.I32, Value: 0},
		&ir.Store{Addr: slot, Value: c1},
		&ir.Load{Result: loaded, Addr: slot, Type: ir.I32},
		&ir.Const{Result: c2, Type: ir.I32, Value: 1},
		&ir.Binary{Result: result, Op: op, Left: loaded, Right: c2, Type: ir.I32},
	}
}

// retargetPhiPredecessor rewrites every phi incoming edge from oldPred to
// newPred, module-function-wide. Needed whenever a block's terminator is
// relocated to a new block so phi-predecessor invariants stay intact.
func retargetPhiPredecessor(fn *ir.Function, oldPred, newPred ir.BlockID) {
	for _, b := range fn.Blocks {
		for _, phi := range b.Phis {
			for i := range phi.Incoming {
				if phi.Incoming[i].Pred == oldPred {
					phi.Incoming[i].Pred = newPred
				}
			}
		}
	}
}
