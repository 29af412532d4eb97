package evolve

import (
	"github.com/duskforge/obfusc/internal/diagnostics"
	"github.com/duskforge/obfusc/internal/ir"
	"github.com/duskforge/obfusc/internal/logging"
	"github.com/duskforge/obfusc/internal/pass"
)

// lengthPenaltyThreshold and its multiplier, and the diversity bonus
// threshold and multiplier, are the fitness modifiers from the contract.
const (
	lengthPenaltyThreshold = 6
	lengthPenaltyFactor    = 0.9
	diversityThreshold     = 3
	diversityBonusFactor   = 1.1
)

// evaluate runs genes against a deep clone of mod and scores the result.
// Every call operates on its own clone; mod itself is never mutated by
// fitness evaluation. A genome that cannot be resolved to passes is
// contained here: the caller receives fitness 0 and an OptimizerError
// diagnostic, never an aborted search. A pass that fails while running is
// reverted by pass.Run, and the clone is scored as it stands afterwards.
func evaluate(mod *ir.Module, genes []pass.ID, seed int64, bag *diagnostics.Bag, logger *logging.Logger) float64 {
	clone := mod.Clone()
	before := ir.Measure(clone)

	passes, err := pass.Sequence(genes, seed, logger)
	if err != nil {
		recordOptimizerError(bag, err)
		return 0
	}
	report := pass.Run(clone, passes, bag, logger)
	after := report.After

	return score(before, after, genes)
}

func score(before, after ir.Metrics, genes []pass.ID) float64 {
	addedFunctions := after.Functions - before.Functions
	blockDelta := after.Blocks - before.Blocks
	if blockDelta < 0 {
		blockDelta = -blockDelta
	}
	security := clamp(50+float64(addedFunctions)*5+float64(blockDelta)*2, 0, 100)

	performanceImpact := 0.0
	if before.Instructions > 0 {
		ratio := float64(after.Instructions)/float64(before.Instructions) - 1
		if ratio > 0 {
			performanceImpact = clamp(ratio*50, 0, 100)
		}
	}

	complexity := clamp(0.5*float64(after.Instructions)+2*float64(after.Blocks)+10*float64(after.Functions), 0, 100)

	fitness := 0.5*security + 0.3*(100-performanceImpact) + 0.2*complexity

	if len(genes) > lengthPenaltyThreshold {
		fitness *= lengthPenaltyFactor
	}
	if distinctGeneCount(genes) >= diversityThreshold {
		fitness *= diversityBonusFactor
	}
	return clamp(fitness, 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func recordOptimizerError(bag *diagnostics.Bag, err error) {
	if bag == nil {
		return
	}
	bag.Add(diagnostics.Wrap(diagnostics.OptimizerError, "fitness evaluation failed on a clone", err))
}
