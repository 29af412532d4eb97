package pass

import (
	"math/rand"
	"strings"

	"github.com/duskforge/obfusc/internal/ir"
	"github.com/duskforge/obfusc/internal/logging"
)

// encSuffix marks an already-obfuscated global so a second run of this
// pass leaves it alone, satisfying the round-trip idempotence law.
const encSuffix = "_enc"

const decoderBufferSize = 1024

// stringConcealment replaces constant C-string globals with an XOR-encrypted
// blob plus a decoder function synthesized once per distinct key.
type stringConcealment struct {
	rng    *rand.Rand
	logger *logging.Logger
}

// NewStringConcealment builds the string concealment pass with its own
// random source.
func NewStringConcealment(rng *rand.Rand, logger *logging.Logger) Pass {
	return &stringConcealment{rng: rng, logger: logger}
}

func (p *stringConcealment) ID() ID        { return StringConcealment }
func (p *stringConcealment) Name() string  { return StringConcealment.String() }

func (p *stringConcealment) Apply(mod *ir.Module) (bool, error) {
	modified := false

	candidates := make([]*ir.GlobalVariable, 0)
	for _, g := range mod.Globals {
		if isCandidateString(g) {
			candidates = append(candidates, g)
		}
	}
	if len(candidates) == 0 {
		return false, nil
	}

	decoderByKey := existingDecoders(mod)

	for _, g := range candidates {
		key := int64(1 + p.rng.Intn(255)) // non-zero 8-bit key
		encName := g.Name + encSuffix
		if mod.FindGlobal(encName) != nil {
			continue // already concealed in an earlier invocation
		}

		encBytes := make([]byte, len(g.Initializer))
		for i, b := range g.Initializer {
			encBytes[i] = b ^ byte(key)
		}
		elemType := g.Type.(*ir.ArrayType).Elem
		encGlobal := &ir.GlobalVariable{
			Name:        encName,
			Type:        mod.ArrayOf(elemType, len(encBytes)),
			Constant:    true,
			Linkage:     ir.LinkagePrivate,
			Initializer: encBytes,
		}
		mod.Globals = append(mod.Globals, encGlobal)

		decoderName, ok := decoderByKey[key]
		if !ok {
			decoderName = p.synthesizeDecoder(mod, key)
			decoderByKey[key] = decoderName
		}

		rewriteGlobalUses(mod, g.Name, encName, decoderName)
		modified = true
		if p.logger != nil {
			p.logger.Debug("string_concealment: concealed %s with key %d via %s", g.Name, key, decoderName)
		}
	}

	return modified, nil
}

func isCandidateString(g *ir.GlobalVariable) bool {
	if !g.Constant {
		return false
	}
	if strings.HasSuffix(g.Name, encSuffix) {
		return false
	}
	arr, ok := g.Type.(*ir.ArrayType)
	if !ok || !arr.Elem.Equals(ir.I8) {
		return false
	}
	if len(g.Initializer) < 2 {
		return false
	}
	return g.Initializer[len(g.Initializer)-1] == 0
}

// existingDecoders scans the module for previously-synthesized decoders so
// a second pass invocation reuses rather than duplicates them.
func existingDecoders(mod *ir.Module) map[int64]string {
	found := make(map[int64]string)
	for _, fn := range mod.Funcs {
		var key int64
		if n, err := parseDecoderKey(fn.Name); err == nil {
			key = n
			found[key] = fn.Name
		}
	}
	return found
}

func parseDecoderKey(name string) (int64, error) {
	const prefix = "decoder_"
	if !strings.HasPrefix(name, prefix) {
		return 0, errNotDecoder
	}
	var key int64
	_, err := fmtSscan(name[len(prefix):], &key)
	return key, err
}

// synthesizeDecoder builds decoder_K: given a pointer into an XOR-encrypted
// byte stream, decode it into a fixed-size stack buffer and return a
// pointer to it, stopping at the first encrypted byte equal to K (the
// encrypted form of the plaintext zero terminator).
func (p *stringConcealment) synthesizeDecoder(mod *ir.Module, key int64) string {
	name := "decoder_" + itoa(key)
	ptrI8 := mod.PointerTo(ir.I8)
	fn := ir.NewFunction(name, []ir.Param{{ID: 0, Name: "src", Type: ptrI8}}, ptrI8)
	fn.Linkage = ir.LinkageInternal

	b := ir.NewBuilder(fn)
	entry := b.Block()
	check := b.NewBlock("check")
	body := b.NewBlock("body")
	term := b.NewBlock("term")
	cont := b.NewBlock("cont")
	end := b.NewBlock("end")

	b.SetBlock(entry)
	buf := b.EmitAlloca(mod.ArrayOf(ir.I8, decoderBufferSize))
	idx := b.EmitAlloca(ir.I32)
	zero := b.EmitConst(ir.I32, 0)
	b.EmitStore(idx, zero)
	b.Br(check.ID)

	b.SetBlock(check)
	i := b.EmitLoad(ir.I32, idx)
	bound := b.EmitConst(ir.I32, decoderBufferSize)
	inBounds := b.EmitCompare(ir.CmpLT, i, bound)
	b.CondBr(inBounds, body.ID, end.ID)

	b.SetBlock(body)
	srcAddr := b.EmitGEP(ir.I8, fn.Params[0].ID, i)
	c := b.EmitLoad(ir.I8, srcAddr)
	k := b.EmitConst(ir.I8, key)
	isTerm := b.EmitCompare(ir.CmpEQ, c, k)
	b.CondBr(isTerm, term.ID, cont.ID)

	b.SetBlock(term)
	zeroByte := b.EmitConst(ir.I8, 0)
	zeroAddr := b.EmitGEP(ir.I8, buf, i)
	b.EmitStore(zeroAddr, zeroByte)
	b.Br(end.ID)

	b.SetBlock(cont)
	dec := b.EmitBinary(ir.OpXor, ir.I8, c, k)
	destAddr := b.EmitGEP(ir.I8, buf, i)
	b.EmitStore(destAddr, dec)
	one := b.EmitConst(ir.I32, 1)
	next := b.EmitBinary(ir.OpAdd, ir.I32, i, one)
	b.EmitStore(idx, next)
	b.Br(check.ID)

	b.SetBlock(end)
	b.Ret(buf)

	mod.Funcs = append(mod.Funcs, fn)
	return name
}

// rewriteGlobalUses replaces every GlobalAddr(origName) with a call to
// decoderName applied to a GlobalAddr(encName), so loads that previously
// read the plaintext global now run through the decoder instead.
func rewriteGlobalUses(mod *ir.Module, origName, encName, decoderName string) {
	ptrI8 := mod.PointerTo(ir.I8)
	for _, fn := range mod.Funcs {
		for _, blk := range fn.Blocks {
			for i := 0; i < len(blk.Instrs); i++ {
				ga, ok := blk.Instrs[i].(*ir.GlobalAddr)
				if !ok || ga.Name != origName {
					continue
				}
				encAddr := fn.NextValueID()
				call := fn.NextValueID()
				blk.Instrs[i] = &ir.GlobalAddr{Result: encAddr, Name: encName, Type: ptrI8}
				blk.Instrs = insertAfter(blk.Instrs, i, &ir.Call{
					Result: call,
					Target: decoderName,
					Args:   []ir.ValueID{encAddr},
					Type:   ptrI8,
				})
				replaceValueUses(fn, ga.Result, call)
				i++ // skip the call just inserted
			}
		}
	}
}

func insertAfter(instrs []ir.Instr, i int, add ir.Instr) []ir.Instr {
	out := make([]ir.Instr, 0, len(instrs)+1)
	out = append(out, instrs[:i+1]...)
	out = append(out, add)
	out = append(out, instrs[i+1:]...)
	return out
}
