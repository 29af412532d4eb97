package pass

import (
	"errors"
	"fmt"

	"github.com/duskforge/obfusc/internal/ir"
)

var errNotDecoder = errors.New("pass: not a decoder function name")

func itoa(n int64) string {
	return fmt.Sprintf("%d", n)
}

func fmtSscan(s string, out *int64) (int, error) {
	return fmt.Sscan(s, out)
}

// replaceValueUses rewrites every operand in fn equal to oldID to newID.
// String concealment uses it to retarget uses after replacing an
// instruction's result with a different computation.
func replaceValueUses(fn *ir.Function, oldID, newID ir.ValueID) {
	if oldID == newID {
		return
	}
	rewrite := func(v ir.ValueID) ir.ValueID {
		if v == oldID {
			return newID
		}
		return v
	}
	for _, b := range fn.Blocks {
		for _, phi := range b.Phis {
			for i := range phi.Incoming {
				phi.Incoming[i].Value = rewrite(phi.Incoming[i].Value)
			}
		}
		for _, instr := range b.Instrs {
			switch ins := instr.(type) {
			case *ir.Binary:
				ins.Left = rewrite(ins.Left)
				ins.Right = rewrite(ins.Right)
			case *ir.Compare:
				ins.Left = rewrite(ins.Left)
				ins.Right = rewrite(ins.Right)
			case *ir.Load:
				ins.Addr = rewrite(ins.Addr)
			case *ir.Store:
				ins.Addr = rewrite(ins.Addr)
				ins.Value = rewrite(ins.Value)
			case *ir.GEP:
				ins.Base = rewrite(ins.Base)
				ins.Index = rewrite(ins.Index)
			case *ir.Call:
				for i := range ins.Args {
					ins.Args[i] = rewrite(ins.Args[i])
				}
			case *ir.Select:
				ins.Cond = rewrite(ins.Cond)
				ins.TrueVal = rewrite(ins.TrueVal)
				ins.FalseVal = rewrite(ins.FalseVal)
			case *ir.Cast:
				ins.X = rewrite(ins.X)
			}
		}
		switch t := b.Term.(type) {
		case *ir.Return:
			if t.HasValue {
				t.Value = rewrite(t.Value)
			}
		case *ir.CondBr:
			t.Cond = rewrite(t.Cond)
		case *ir.Switch:
			t.Cond = rewrite(t.Cond)
		}
	}
}
