package evolve

import "github.com/duskforge/obfusc/internal/pass"

// Params configures the evolutionary search. Zero-valued fields are
// replaced by DefaultParams' values by NewOptimizer.
type Params struct {
	PopulationSize int
	Generations    int
	MutationRate   float64
	CrossoverRate  float64
	TournamentSize int
	ElitismRatio   float64

	// AllowedGenes restricts the pass alphabet a genome may draw from.
	// Nil means the full fixed alphabet (every pass.ID).
	AllowedGenes []pass.ID
}

// DefaultParams matches the contract's stated defaults: population 50,
// 100 generations, 10% mutation, 80% crossover, tournament size 3, 10%
// elitism.
func DefaultParams() Params {
	return Params{
		PopulationSize: 50,
		Generations:    100,
		MutationRate:   0.1,
		CrossoverRate:  0.8,
		TournamentSize: 3,
		ElitismRatio:   0.1,
	}
}

func (p Params) withDefaults() Params {
	d := DefaultParams()
	if p.PopulationSize <= 0 {
		p.PopulationSize = d.PopulationSize
	}
	if p.Generations <= 0 {
		p.Generations = d.Generations
	}
	if p.MutationRate <= 0 {
		p.MutationRate = d.MutationRate
	}
	if p.CrossoverRate <= 0 {
		p.CrossoverRate = d.CrossoverRate
	}
	if p.TournamentSize <= 0 {
		p.TournamentSize = d.TournamentSize
	}
	if p.ElitismRatio <= 0 {
		p.ElitismRatio = d.ElitismRatio
	}
	return p
}
