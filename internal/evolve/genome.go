// Package evolve implements the evolutionary search over pass-sequence
// genomes: population-based search with tournament selection, single-point
// crossover, and multi-operator mutation.
package evolve

import "github.com/duskforge/obfusc/internal/pass"

// Genome is one candidate pass sequence paired with its most recently
// evaluated fitness.
type Genome struct {
	Genes   []pass.ID
	Fitness float64
}

// Clone returns a gene-independent copy of g.
func (g Genome) Clone() Genome {
	genes := make([]pass.ID, len(g.Genes))
	copy(genes, g.Genes)
	return Genome{Genes: genes, Fitness: g.Fitness}
}

func distinctGeneCount(genes []pass.ID) int {
	seen := make(map[pass.ID]bool, len(genes))
	for _, g := range genes {
		seen[g] = true
	}
	return len(seen)
}
