package evolve

import (
	"math/rand"
	"sort"

	"github.com/duskforge/obfusc/internal/diagnostics"
	"github.com/duskforge/obfusc/internal/ir"
	"github.com/duskforge/obfusc/internal/logging"
	"github.com/duskforge/obfusc/internal/pass"
)

const (
	minInitialGenomeLength = 3
	maxInitialGenomeLength = 7
	minGenomeLength        = 2
	maxGenomeLength        = 10

	pointMutationChance  = 0.1
	insertMutationChance = 0.1
	deleteMutationChance = 0.1
)

// Optimizer runs the population-based search described by the contract.
// It owns its own random source, seeded independently of every pass it
// spawns, so two optimizer runs never share mutable state.
type Optimizer struct {
	params Params
	rng    *rand.Rand
	logger *logging.Logger
	bag    *diagnostics.Bag
}

// NewOptimizer builds an Optimizer seeded from seed.
func NewOptimizer(params Params, seed int64, bag *diagnostics.Bag, logger *logging.Logger) *Optimizer {
	return &Optimizer{
		params: params.withDefaults(),
		rng:    rand.New(rand.NewSource(seed)),
		logger: logger,
		bag:    bag,
	}
}

// Run searches for a high-fitness pass sequence against mod, returning the
// fittest genome found. mod itself is never mutated; every trial runs on a
// fresh clone.
func (o *Optimizer) Run(mod *ir.Module) Genome {
	population := o.initializePopulation()
	o.evaluateAll(mod, population)

	best := population[fittestIndex(population)].Clone()
	for gen := 0; gen < o.params.Generations; gen++ {
		sort.Slice(population, func(i, j int) bool { return population[i].Fitness > population[j].Fitness })

		eliteCount := int(o.params.ElitismRatio * float64(o.params.PopulationSize))
		next := make([]Genome, 0, o.params.PopulationSize)
		for i := 0; i < eliteCount && i < len(population); i++ {
			next = append(next, population[i].Clone())
		}

		for len(next) < o.params.PopulationSize {
			parent1 := o.tournamentSelect(population)
			parent2 := o.tournamentSelect(population)

			var child Genome
			if o.rng.Float64() < o.params.CrossoverRate {
				child = o.crossover(parent1, parent2)
			} else {
				child = parent1.Clone()
			}
			if o.rng.Float64() < o.params.MutationRate {
				o.mutate(&child)
			}
			o.evaluateOne(mod, &child)
			next = append(next, child)
		}

		population = next
		genBestIdx := fittestIndex(population)
		genBest := population[genBestIdx].Fitness
		if genBest > best.Fitness {
			best = population[genBestIdx].Clone()
		}
		if o.logger != nil {
			o.logger.Debug("evolve: generation %d best=%.2f best_ever=%.2f", gen, genBest, best.Fitness)
		}
	}

	return best
}

func fittestIndex(population []Genome) int {
	best := 0
	for i, g := range population {
		if g.Fitness > population[best].Fitness {
			best = i
		}
	}
	return best
}

func (o *Optimizer) initializePopulation() []Genome {
	population := make([]Genome, o.params.PopulationSize)
	for i := range population {
		length := minInitialGenomeLength + o.rng.Intn(maxInitialGenomeLength-minInitialGenomeLength+1)
		genes := make([]pass.ID, length)
		for j := range genes {
			genes[j] = o.randomGene()
		}
		population[i] = Genome{Genes: genes}
	}
	return population
}

// randomGene draws uniformly from the configured allowed alphabet, or
// the full fixed pass set when none was configured.
func (o *Optimizer) randomGene() pass.ID {
	if len(o.params.AllowedGenes) == 0 {
		return pass.ID(o.rng.Intn(pass.NumPasses))
	}
	return o.params.AllowedGenes[o.rng.Intn(len(o.params.AllowedGenes))]
}

func (o *Optimizer) evaluateAll(mod *ir.Module, population []Genome) {
	for i := range population {
		o.evaluateOne(mod, &population[i])
	}
}

func (o *Optimizer) evaluateOne(mod *ir.Module, g *Genome) {
	g.Fitness = evaluate(mod, g.Genes, o.rng.Int63(), o.bag, o.logger)
}

// tournamentSelect picks T individuals uniformly and returns the fittest.
func (o *Optimizer) tournamentSelect(population []Genome) Genome {
	best := population[o.rng.Intn(len(population))]
	for i := 1; i < o.params.TournamentSize; i++ {
		candidate := population[o.rng.Intn(len(population))]
		if candidate.Fitness > best.Fitness {
			best = candidate
		}
	}
	return best
}

// crossover performs single-point crossover at a uniformly-chosen cut.
func (o *Optimizer) crossover(p1, p2 Genome) Genome {
	shorter := len(p1.Genes)
	if len(p2.Genes) < shorter {
		shorter = len(p2.Genes)
	}
	if shorter < 2 {
		return p1.Clone()
	}
	cut := 1 + o.rng.Intn(shorter-1)
	genes := make([]pass.ID, 0, cut+len(p2.Genes)-cut)
	genes = append(genes, p1.Genes[:cut]...)
	genes = append(genes, p2.Genes[cut:]...)
	return Genome{Genes: genes}
}

// mutate applies each operator independently with its own per-gene/slot
// probability, per the contract's "each independently applied" wording.
func (o *Optimizer) mutate(g *Genome) {
	for i := range g.Genes {
		if o.rng.Float64() < pointMutationChance {
			g.Genes[i] = o.randomGene()
		}
	}
	if o.rng.Float64() < insertMutationChance && len(g.Genes) < maxGenomeLength {
		pos := o.rng.Intn(len(g.Genes) + 1)
		gene := o.randomGene()
		genes := make([]pass.ID, 0, len(g.Genes)+1)
		genes = append(genes, g.Genes[:pos]...)
		genes = append(genes, gene)
		genes = append(genes, g.Genes[pos:]...)
		g.Genes = genes
	}
	if o.rng.Float64() < deleteMutationChance && len(g.Genes) > minGenomeLength {
		pos := o.rng.Intn(len(g.Genes))
		g.Genes = append(append([]pass.ID(nil), g.Genes[:pos]...), g.Genes[pos+1:]...)
	}
}
