// Package pipeline orchestrates the full obfuscation run: propose a pass
// sequence via the evolutionary optimizer, apply the winner to the real
// module, and record the resulting artifact's integrity on the ledger.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/duskforge/obfusc/internal/config"
	"github.com/duskforge/obfusc/internal/diagnostics"
	"github.com/duskforge/obfusc/internal/evolve"
	"github.com/duskforge/obfusc/internal/ir"
	"github.com/duskforge/obfusc/internal/ledger"
	"github.com/duskforge/obfusc/internal/logging"
	"github.com/duskforge/obfusc/internal/pass"
)

// Result is the single top-level outcome of a pipeline invocation, per
// the error-handling design's "single top-level result with a success
// flag, an error message, and an attached diagnostic bundle."
type Result struct {
	Success      bool
	ErrorMessage string
	Genome       []pass.ID
	PassReport   *pass.Report
	Verification *ledger.Result
	Diagnostics  []*diagnostics.Diagnostic
}

// Pipeline wires the optimizer, pass framework, and ledger recorder
// together. Every Run starts a fresh diagnostic bag, and the optimizer
// and passes it creates each own their own random source, so nothing is
// shared between invocations.
type Pipeline struct {
	cfg    config.Config
	logger *logging.Logger
	bag    *diagnostics.Bag
}

// New constructs a Pipeline from cfg.
func New(cfg config.Config, logger *logging.Logger) *Pipeline {
	return &Pipeline{cfg: cfg, logger: logger, bag: diagnostics.NewBag()}
}

// Run executes one full invocation against mod (assumed well-formed,
// delivered by the external frontend) and, if the ledger is enabled and
// artifactPath is non-empty, submits that path's hash to the ledger. mod
// is mutated in place with the winning genome; a clone is used for every
// fitness trial.
func (p *Pipeline) Run(ctx context.Context, mod *ir.Module, artifactPath string) Result {
	p.bag = diagnostics.NewBag()
	if err := ir.Verify(mod); err != nil {
		p.bag.Add(diagnostics.Wrap(diagnostics.FrontendError, "input module failed well-formedness check", err))
		return p.fail("input module is not well-formed: " + err.Error())
	}

	genome := p.selectGenome(mod)
	p.logf("selected genome %v", genome)

	passes, err := pass.Sequence(genome, time.Now().UnixNano(), p.logger)
	if err != nil {
		p.bag.Add(diagnostics.Wrap(diagnostics.OptimizerError, "winning genome could not be resolved to passes", err))
		return p.fail("invalid pass sequence: " + err.Error())
	}

	report := pass.Run(mod, passes, p.bag, p.logger)
	if err := ir.Verify(mod); err != nil {
		p.bag.Add(diagnostics.Wrap(diagnostics.PassError, "module failed well-formedness check after final run", err))
		return p.fail("obfuscated module is not well-formed: " + err.Error())
	}

	result := Result{
		Success:     true,
		Genome:      genome,
		PassReport:  report,
		Diagnostics: p.bag.All(),
	}

	if p.cfg.Ledger.Enabled && artifactPath != "" {
		verification, err := p.recordIntegrity(ctx, artifactPath)
		if err != nil {
			p.bag.Add(diagnostics.Wrap(diagnostics.LedgerSubmitError, "integrity recording failed", err))
		} else {
			result.Verification = &verification
		}
		result.Diagnostics = p.bag.All()
	}

	return result
}

// selectGenome runs the evolutionary optimizer with the configured
// parameters and returns the fittest genome found, restricted to the
// enabled-pass alphabet.
func (p *Pipeline) selectGenome(mod *ir.Module) []pass.ID {
	params := evolve.DefaultParams()
	params.Generations = p.cfg.GeneticGenerations
	params.MutationRate = p.cfg.MutationRate
	params.CrossoverRate = p.cfg.CrossoverRate
	params.AllowedGenes = p.cfg.EnabledPasses()

	optimizer := evolve.NewOptimizer(params, time.Now().UnixNano(), p.bag, p.logger)
	best := optimizer.Run(mod)
	return best.Genes
}

func (p *Pipeline) recordIntegrity(ctx context.Context, artifactPath string) (ledger.Result, error) {
	recorder := ledger.NewRecorder(p.cfg.Ledger, p.bag, p.logger)
	if err := recorder.Initialize(ctx); err != nil {
		return ledger.Result{}, fmt.Errorf("ledger initialize: %w", err)
	}
	return recorder.VerifyBinary(ctx, artifactPath)
}

func (p *Pipeline) fail(message string) Result {
	return Result{Success: false, ErrorMessage: message, Diagnostics: p.bag.All()}
}

func (p *Pipeline) logf(format string, args ...any) {
	if p.logger != nil {
		p.logger.Info(format, args...)
	}
}
