package ir

// Successors returns the blocks a terminator can transfer control to, in a
// deterministic order. Passes that need to walk or rewrite the control-flow
// graph build on this rather than re-deriving it from each Term type.
func Successors(term Term) []BlockID {
	switch t := term.(type) {
	case *Return, *Unreachable:
		return nil
	case *Br:
		return []BlockID{t.Target}
	case *CondBr:
		return []BlockID{t.Then, t.Else}
	case *Switch:
		ids := make([]BlockID, 0, len(t.Cases)+1)
		for _, c := range t.Cases {
			ids = append(ids, c.Target)
		}
		return append(ids, t.Default)
	default:
		return nil
	}
}

// Predecessors computes, for every block in fn, the set of blocks whose
// terminator can transfer control directly into it. The result is rebuilt
// on each call since passes mutate terminators freely between calls.
func Predecessors(fn *Function) map[BlockID][]BlockID {
	preds := make(map[BlockID][]BlockID, len(fn.Blocks))
	for _, b := range fn.Blocks {
		preds[b.ID] = nil
	}
	for _, b := range fn.Blocks {
		if b.Term == nil {
			continue
		}
		for _, succ := range Successors(b.Term) {
			preds[succ] = append(preds[succ], b.ID)
		}
	}
	return preds
}

// Reachable returns the set of block IDs reachable from fn's entry block.
func Reachable(fn *Function) map[BlockID]bool {
	seen := make(map[BlockID]bool)
	entry := fn.Entry()
	if entry == nil {
		return seen
	}
	stack := []BlockID{entry.ID}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] {
			continue
		}
		seen[id] = true
		b := fn.Block(id)
		if b == nil || b.Term == nil {
			continue
		}
		for _, succ := range Successors(b.Term) {
			if !seen[succ] {
				stack = append(stack, succ)
			}
		}
	}
	return seen
}
