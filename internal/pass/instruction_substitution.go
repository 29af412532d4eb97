package pass

import (
	"math/bits"
	"math/rand"

	"github.com/duskforge/obfusc/internal/ir"
	"github.com/duskforge/obfusc/internal/logging"
)

// maxSubstitutionWidth bounds the integer width this pass will touch; wider
// operands are left alone rather than risk a platform-word mismatch.
const maxSubstitutionWidth = 64

type instructionSubstitution struct {
	rng    *rand.Rand
	logger *logging.Logger
}

// NewInstructionSubstitution builds the instruction substitution pass.
func NewInstructionSubstitution(rng *rand.Rand, logger *logging.Logger) Pass {
	return &instructionSubstitution{rng: rng, logger: logger}
}

func (p *instructionSubstitution) ID() ID       { return InstructionSubstitution }
func (p *instructionSubstitution) Name() string { return InstructionSubstitution.String() }

func (p *instructionSubstitution) Apply(mod *ir.Module) (bool, error) {
	modified := false
	for _, fn := range mod.Funcs {
		if fn.Declaration {
			continue
		}
		for _, b := range fn.Blocks {
			if rewriteBlock(fn, b) {
				modified = true
			}
		}
	}
	return modified, nil
}

func rewriteBlock(fn *ir.Function, b *ir.Block) bool {
	modified := false
	out := make([]ir.Instr, 0, len(b.Instrs))
	for idx, instr := range b.Instrs {
		bin, ok := instr.(*ir.Binary)
		if !ok || !eligibleType(bin.Type) {
			out = append(out, instr)
			continue
		}
		switch bin.Op {
		case ir.OpAdd:
			out = append(out, substituteAdd(fn, bin)...)
			modified = true
		case ir.OpSub:
			out = append(out, substituteSub(fn, bin)...)
			modified = true
		case ir.OpMul:
			replacement, ok := substituteMul(fn, bin, b.Instrs[:idx])
			if !ok {
				out = append(out, instr)
				continue
			}
			out = append(out, replacement...)
			modified = true
		default:
			out = append(out, instr)
		}
	}
	b.Instrs = out
	return modified
}

func eligibleType(t ir.Type) bool {
	it, ok := t.(*ir.IntType)
	return ok && it.Width <= maxSubstitutionWidth
}

// substituteAdd rewrites a+b as (a^b) + ((a&b)<<1), a textbook bitwise
// identity that holds across all two's-complement overflow behavior.
func substituteAdd(fn *ir.Function, bin *ir.Binary) []ir.Instr {
	t := bin.Type
	xorID := fn.NextValueID()
	andID := fn.NextValueID()
	oneID := fn.NextValueID()
	shlID := fn.NextValueID()
	return []ir.Instr{
		&ir.Binary{Result: xorID, Op: ir.OpXor, Left: bin.Left, Right: bin.Right, Type: t},
		&ir.Binary{Result: andID, Op: ir.OpAnd, Left: bin.Left, Right: bin.Right, Type: t},
		&ir.Const{Result: oneID, Type: t, Value: 1},
		&ir.Binary{Result: shlID, Op: ir.OpShl, Left: andID, Right: oneID, Type: t},
		&ir.Binary{Result: bin.Result, Op: ir.OpAdd, Left: xorID, Right: shlID, Type: t},
	}
}

// substituteSub rewrites a-b as (a^b) - ((~a&b)<<1). ~a is synthesized as
// a xor -1, the all-ones mask for the operand's width.
func substituteSub(fn *ir.Function, bin *ir.Binary) []ir.Instr {
	t := bin.Type
	allOnesID := fn.NextValueID()
	notAID := fn.NextValueID()
	xorID := fn.NextValueID()
	andID := fn.NextValueID()
	oneID := fn.NextValueID()
	shlID := fn.NextValueID()
	return []ir.Instr{
		&ir.Const{Result: allOnesID, Type: t, Value: -1},
		&ir.Binary{Result: notAID, Op: ir.OpXor, Left: bin.Left, Right: allOnesID, Type: t},
		&ir.Binary{Result: xorID, Op: ir.OpXor, Left: bin.Left, Right: bin.Right, Type: t},
		&ir.Binary{Result: andID, Op: ir.OpAnd, Left: notAID, Right: bin.Right, Type: t},
		&ir.Const{Result: oneID, Type: t, Value: 1},
		&ir.Binary{Result: shlID, Op: ir.OpShl, Left: andID, Right: oneID, Type: t},
		&ir.Binary{Result: bin.Result, Op: ir.OpSub, Left: xorID, Right: shlID, Type: t},
	}
}

// substituteMul rewrites a*c into a<<log2(c) when c is a power-of-two
// constant found among the preceding instructions in the same block;
// otherwise it reports ok=false and the multiply is left untouched, per
// the contract's explicit skip for non-power-of-two multipliers.
func substituteMul(fn *ir.Function, bin *ir.Binary, preceding []ir.Instr) ([]ir.Instr, bool) {
	c, isConst := constValue(bin.Right, preceding)
	if !isConst {
		c, isConst = constValue(bin.Left, preceding)
		if !isConst {
			return nil, false
		}
		bin = &ir.Binary{Result: bin.Result, Op: bin.Op, Left: bin.Right, Right: bin.Left, Type: bin.Type}
	}
	if c <= 0 || c&(c-1) != 0 {
		return nil, false
	}
	shiftAmount := bits.TrailingZeros64(uint64(c))
	shiftID := fn.NextValueID()
	return []ir.Instr{
		&ir.Const{Result: shiftID, Type: bin.Type, Value: int64(shiftAmount)},
		&ir.Binary{Result: bin.Result, Op: ir.OpShl, Left: bin.Left, Right: shiftID, Type: bin.Type},
	}, true
}

func constValue(id ir.ValueID, preceding []ir.Instr) (int64, bool) {
	for i := len(preceding) - 1; i >= 0; i-- {
		if c, ok := preceding[i].(*ir.Const); ok && c.Result == id {
			return c.Value, true
		}
	}
	return 0, false
}
