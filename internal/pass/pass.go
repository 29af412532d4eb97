// Package pass implements the transformation framework and the five
// concrete obfuscation passes that rewrite an ir.Module in place.
package pass

import (
	"math/rand"

	"github.com/duskforge/obfusc/internal/ir"
	"github.com/duskforge/obfusc/internal/logging"
)

// ID identifies one of the fixed set of concrete passes. The optimizer's
// genome alphabet is exactly this set; the table is explicit rather than
// built from runtime discovery, per the framework's registry contract.
type ID int

const (
	StringConcealment ID = iota
	InstructionSubstitution
	BogusControlFlow
	ControlFlowFlattening
	AntiAnalysis

	NumPasses = int(AntiAnalysis) + 1
)

func (id ID) String() string {
	switch id {
	case StringConcealment:
		return "string_concealment"
	case InstructionSubstitution:
		return "instruction_substitution"
	case BogusControlFlow:
		return "bogus_control_flow"
	case ControlFlowFlattening:
		return "control_flow_flattening"
	case AntiAnalysis:
		return "anti_analysis"
	default:
		return "unknown_pass"
	}
}

// Pass is the single capability every transformation exposes: given a
// mutable module, perform zero or more edits and report whether anything
// changed. Passes perform no I/O and must leave the module well-formed on
// return, even when they decline to touch a particular function.
type Pass interface {
	ID() ID
	Name() string
	Apply(mod *ir.Module) (bool, error)
}

// New constructs the concrete pass for id, seeding its private random
// source from seed. Each pass owns its generator; nothing is shared across
// passes or across fitness trials.
func New(id ID, seed int64, logger *logging.Logger) (Pass, error) {
	rng := rand.New(rand.NewSource(seed))
	switch id {
	case StringConcealment:
		return NewStringConcealment(rng, logger), nil
	case InstructionSubstitution:
		return NewInstructionSubstitution(rng, logger), nil
	case BogusControlFlow:
		return NewBogusControlFlow(rng, logger), nil
	case ControlFlowFlattening:
		return NewControlFlowFlattening(rng, logger), nil
	case AntiAnalysis:
		return NewAntiAnalysis(rng, logger), nil
	default:
		return nil, errUnknownPass(id)
	}
}

type errUnknownPass ID

func (e errUnknownPass) Error() string {
	return "pass: unknown pass id " + ID(e).String()
}
