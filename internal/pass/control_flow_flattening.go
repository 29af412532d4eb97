package pass

import (
	"math/rand"

	"github.com/duskforge/obfusc/internal/ir"
	"github.com/duskforge/obfusc/internal/logging"
)

// minFlattenBlocks is the smallest function size this pass will touch.
const minFlattenBlocks = 3

type controlFlowFlattening struct {
	rng    *rand.Rand
	logger *logging.Logger
}

// NewControlFlowFlattening builds the control-flow flattening pass.
func NewControlFlowFlattening(rng *rand.Rand, logger *logging.Logger) Pass {
	return &controlFlowFlattening{rng: rng, logger: logger}
}

func (p *controlFlowFlattening) ID() ID       { return ControlFlowFlattening }
func (p *controlFlowFlattening) Name() string { return ControlFlowFlattening.String() }

func (p *controlFlowFlattening) Apply(mod *ir.Module) (bool, error) {
	modified := false
	for _, fn := range mod.Funcs {
		if !eligibleForFlattening(fn) {
			continue
		}
		flattenFunction(fn)
		modified = true
		if p.logger != nil {
			p.logger.Debug("control_flow_flattening: flattened %s (%d blocks)", fn.Name, len(fn.Blocks))
		}
	}
	return modified, nil
}

func eligibleForFlattening(fn *ir.Function) bool {
	if fn.Declaration || fn.Name == "main" || len(fn.Blocks) < minFlattenBlocks {
		return false
	}
	entry := fn.Entry()
	if entry == nil || len(entry.Phis) != 0 {
		return false
	}
	for _, b := range fn.Blocks {
		if len(b.Phis) != 0 {
			// Flattening destroys the original predecessor structure that
			// phi incoming-edges depend on; functions with non-entry phis
			// are left to a future pass that rebuilds them against the
			// dispatcher edges.
			return false
		}
		if _, isSwitch := b.Term.(*ir.Switch); isSwitch {
			return false
		}
	}
	return true
}

func flattenFunction(fn *ir.Function) {
	entry := fn.Entry()
	original := append([]*ir.Block(nil), fn.Blocks...)

	stateSlot := fn.NextValueID()
	var retSlot ir.ValueID = ir.InvalidValue
	hasRetSlot := fn.ReturnType != ir.Void
	if hasRetSlot {
		retSlot = fn.NextValueID()
	}

	numberOf := make(map[ir.BlockID]int64, len(original))
	n := int64(1)
	for _, b := range original {
		if b.ID == entry.ID {
			continue
		}
		numberOf[b.ID] = n
		n++
	}

	dispatcher := fn.NewBlock("dispatcher")
	end := fn.NewBlock("end")

	entry.Instrs = append(entry.Instrs, &ir.Alloca{Result: stateSlot, Type: ir.I32})
	if hasRetSlot {
		entry.Instrs = append(entry.Instrs, &ir.Alloca{Result: retSlot, Type: fn.ReturnType})
	}

	dispatchVal := fn.NextValueID()
	dispatcher.Instrs = []ir.Instr{
		&ir.Load{Result: dispatchVal, Addr: stateSlot, Type: ir.I32},
	}
	cases := make([]ir.SwitchCase, 0, len(numberOf))
	for _, b := range original {
		if b.ID == entry.ID {
			continue
		}
		cases = append(cases, ir.SwitchCase{Value: numberOf[b.ID], Target: b.ID})
	}
	dispatcher.Term = &ir.Switch{Cond: dispatchVal, Cases: cases, Default: end.ID}

	if hasRetSlot {
		endVal := fn.NextValueID()
		end.Instrs = []ir.Instr{
			&ir.Load{Result: endVal, Addr: retSlot, Type: fn.ReturnType},
		}
		end.Term = &ir.Return{Value: endVal, HasValue: true}
	} else {
		end.Term = &ir.Return{HasValue: false}
	}

	for _, b := range original {
		flattenBlockTerminator(fn, b, dispatcher.ID, end.ID, entry.ID, stateSlot, retSlot, hasRetSlot, numberOf)
	}
}

func flattenBlockTerminator(fn *ir.Function, b *ir.Block, dispatcherID, endID, entryID ir.BlockID, stateSlot, retSlot ir.ValueID, hasRetSlot bool, numberOf map[ir.BlockID]int64) {
	switch t := b.Term.(type) {
	case *ir.Br:
		if t.Target == entryID {
			return
		}
		storeState(fn, b, stateSlot, numberOf[t.Target])
		b.Term = &ir.Br{Target: dispatcherID}
	case *ir.CondBr:
		thenBlock := trampoline(fn, "flatten_then", t.Then, entryID, dispatcherID, stateSlot, numberOf)
		elseBlock := trampoline(fn, "flatten_else", t.Else, entryID, dispatcherID, stateSlot, numberOf)
		b.Term = &ir.CondBr{Cond: t.Cond, Then: thenBlock, Else: elseBlock}
	case *ir.Return:
		if hasRetSlot && t.HasValue {
			b.Instrs = append(b.Instrs, &ir.Store{Addr: retSlot, Value: t.Value})
		}
		b.Term = &ir.Br{Target: endID}
	default:
		// Unreachable and anything else created by an earlier pass is left
		// as-is; it has no dispatcher-relevant successors.
	}
}

func storeState(fn *ir.Function, b *ir.Block, stateSlot ir.ValueID, number int64) {
	constID := fn.NextValueID()
	b.Instrs = append(b.Instrs,
		&ir.Const{Result: constID, Type: ir.I32, Value: number},
		&ir.Store{Addr: stateSlot, Value: constID},
	)
}

// trampoline returns the block id control should branch to in place of
// target: target itself when it is the function entry (an out-of-loop
// edge the dispatcher doesn't model), otherwise a fresh block that stores
// target's dispatch number and jumps into the dispatcher.
func trampoline(fn *ir.Function, label string, target, entryID, dispatcherID ir.BlockID, stateSlot ir.ValueID, numberOf map[ir.BlockID]int64) ir.BlockID {
	if target == entryID {
		return entryID
	}
	block := fn.NewBlock(label)
	storeState(fn, block, stateSlot, numberOf[target])
	block.Term = &ir.Br{Target: dispatcherID}
	return block.ID
}
