package ir

import "fmt"

// Verify checks the well-formedness invariants every pass must preserve:
// each block has exactly one terminator, every Phi's incoming set matches
// the block's actual predecessor set, and every referenced block ID exists
// within the function. It does not check value-level type consistency;
// that is the frontend's responsibility before the module enters this
// pipeline.
func Verify(m *Module) error {
	globals := make(map[string]bool, len(m.Globals))
	for _, g := range m.Globals {
		globals[g.Name] = true
	}
	for _, fn := range m.Funcs {
		if fn.Declaration {
			continue
		}
		if err := verifyFunction(fn); err != nil {
			return fmt.Errorf("function %s: %w", fn.Name, err)
		}
		if err := verifyGlobalRefs(fn, globals); err != nil {
			return fmt.Errorf("function %s: %w", fn.Name, err)
		}
	}
	return nil
}

func verifyGlobalRefs(fn *Function, globals map[string]bool) error {
	for _, b := range fn.Blocks {
		for _, instr := range b.Instrs {
			if ga, ok := instr.(*GlobalAddr); ok && !globals[ga.Name] {
				return fmt.Errorf("block %d references undefined global %q", b.ID, ga.Name)
			}
		}
	}
	return nil
}

func verifyFunction(fn *Function) error {
	if len(fn.Blocks) == 0 {
		return fmt.Errorf("defined function has no blocks")
	}
	ids := make(map[BlockID]bool, len(fn.Blocks))
	for _, b := range fn.Blocks {
		if ids[b.ID] {
			return fmt.Errorf("duplicate block id %d", b.ID)
		}
		ids[b.ID] = true
	}
	preds := Predecessors(fn)
	for _, b := range fn.Blocks {
		if b.Term == nil {
			return fmt.Errorf("block %d has no terminator", b.ID)
		}
		for _, succ := range Successors(b.Term) {
			if !ids[succ] {
				return fmt.Errorf("block %d terminator targets unknown block %d", b.ID, succ)
			}
		}
		if err := verifyPhis(b, preds[b.ID]); err != nil {
			return fmt.Errorf("block %d: %w", b.ID, err)
		}
	}
	return nil
}

func verifyPhis(b *Block, preds []BlockID) error {
	if len(b.Phis) == 0 {
		return nil
	}
	predSet := make(map[BlockID]bool, len(preds))
	for _, p := range preds {
		predSet[p] = true
	}
	for _, phi := range b.Phis {
		incomingSet := make(map[BlockID]bool, len(phi.Incoming))
		for _, in := range phi.Incoming {
			incomingSet[in.Pred] = true
		}
		if len(incomingSet) != len(predSet) {
			return fmt.Errorf("phi %%t%d has %d incoming blocks, want %d", phi.Result, len(incomingSet), len(predSet))
		}
		for pred := range predSet {
			if !incomingSet[pred] {
				return fmt.Errorf("phi %%t%d missing incoming value for predecessor b%d", phi.Result, pred)
			}
		}
	}
	return nil
}
