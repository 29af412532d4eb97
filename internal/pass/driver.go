package pass

import (
	"github.com/duskforge/obfusc/internal/diagnostics"
	"github.com/duskforge/obfusc/internal/ir"
	"github.com/duskforge/obfusc/internal/logging"
)

// Outcome reports what happened when a single pass ran.
type Outcome struct {
	Name     string
	Modified bool
	Err      error
}

// Report is the aggregate result of running a pass list: per-pass outcomes
// plus structural metrics measured before and after the whole run.
type Report struct {
	Outcomes []Outcome
	Before   ir.Metrics
	After    ir.Metrics
}

// Run executes passes against mod in order. Running an empty pass list is
// the identity function on the module. If a pass leaves the module
// ill-formed, the driver reverts mod to its pre-pass state, records a
// PassError diagnostic, and continues with the next pass — one
// mis-behaving transformation never aborts the whole run.
func Run(mod *ir.Module, passes []Pass, bag *diagnostics.Bag, logger *logging.Logger) *Report {
	report := &Report{Before: ir.Measure(mod)}
	for _, p := range passes {
		snapshot := mod.Clone()
		modified, err := p.Apply(mod)
		outcome := Outcome{Name: p.Name(), Modified: modified}
		if err == nil {
			err = ir.Verify(mod)
			if err != nil {
				err = diagnostics.Wrap(diagnostics.PassError, "pass "+p.Name()+" produced an ill-formed module", err)
			}
		} else {
			err = diagnostics.Wrap(diagnostics.PassError, "pass "+p.Name()+" failed", err)
		}
		if err != nil {
			*mod = *snapshot
			outcome.Err = err
			outcome.Modified = false
			if bag != nil {
				bag.Add(err.(*diagnostics.Diagnostic))
			}
			if logger != nil {
				logger.Warn("pass %s reverted: %v", p.Name(), err)
			}
		} else if logger != nil {
			logger.Debug("pass %s: modified=%v", p.Name(), modified)
		}
		report.Outcomes = append(report.Outcomes, outcome)
	}
	report.After = ir.Measure(mod)
	return report
}

// Sequence resolves a genome of pass IDs into concrete Pass instances,
// each seeded independently from base so repeated IDs in one genome still
// get distinct random streams.
func Sequence(ids []ID, base int64, logger *logging.Logger) ([]Pass, error) {
	passes := make([]Pass, 0, len(ids))
	for i, id := range ids {
		p, err := New(id, base+int64(i)*104729, logger)
		if err != nil {
			return nil, err
		}
		passes = append(passes, p)
	}
	return passes, nil
}
