// Package transpiler drives whole builds: it fans translation units out
// to a bounded worker pool, runs each unit through the lifter and the
// code generator, and aggregates modules, manifests, and diagnostics.
package transpiler

import (
	"context"
	"runtime"

	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/w2k-star-forks/zksync-compiler-solidity/codegen"
	"github.com/w2k-star-forks/zksync-compiler-solidity/diag"
	"github.com/w2k-star-forks/zksync-compiler-solidity/evmla"
	"github.com/w2k-star-forks/zksync-compiler-solidity/ir"
	"github.com/w2k-star-forks/zksync-compiler-solidity/lifter"
	"github.com/w2k-star-forks/zksync-compiler-solidity/optable"
	"github.com/w2k-star-forks/zksync-compiler-solidity/regions"
)

// Unit is one contract code section to translate. Exactly one of Asm
// and Func is set: Asm for the legacy-assembly form, Func for the
// structured form.
type Unit struct {
	Name    string
	Context optable.CodeContext

	Asm  []evmla.Instruction
	Func *ir.Function
}

type Config struct {
	// TableVersion pins the opcode semantic table; empty selects the
	// current default.
	TableVersion string
	// Jobs bounds the worker pool; zero means one worker per CPU.
	Jobs int
}

// Result is the outcome of one unit. A failed unit still carries its
// diagnostics; Module and Manifest are only valid when Failed is false.
type Result struct {
	Name        string
	Module      string
	Manifest    regions.Manifest
	Diagnostics []diag.Diagnostic
	Failed      bool
}

// Build translates all units. Results come back in input order
// regardless of scheduling, and a failing unit never cancels its
// siblings: every unit reports its own diagnostics. The returned error
// summarizes failures; per-unit detail stays in the results.
func Build(ctx context.Context, cfg Config, units []Unit) ([]Result, error) {
	jobs := cfg.Jobs
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}
	table := optable.New(cfg.TableVersion)

	log.Debug("starting build", "units", len(units), "jobs", jobs, "table", table.Version())

	results := make([]Result, len(units))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i := range units {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = translate(table, units[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	failed := 0
	for _, r := range results {
		if r.Failed {
			failed++
		}
	}
	if failed > 0 {
		return results, errors.Errorf("%d of %d units failed to translate", failed, len(units))
	}
	return results, nil
}

// translate runs the full pipeline for one unit. Each unit owns its
// sink, layout, and function; nothing mutable crosses unit boundaries.
func translate(table *optable.Table, u Unit) Result {
	sink := diag.NewSink()
	res := Result{Name: u.Name}

	fail := func() Result {
		res.Diagnostics = sink.Diagnostics()
		res.Failed = true
		return res
	}

	f := u.Func
	if u.Asm != nil {
		graph := evmla.BuildGraph(u.Asm, sink)
		if sink.HasErrors() {
			return fail()
		}
		lifted, ok := lifter.New(table, u.Context, sink).Lift(u.Name, graph)
		if !ok {
			return fail()
		}
		f = lifted
	}
	if f == nil {
		sink.Errorf(diag.CodeMalformedInput, diag.SourceLocation{},
			"unit %q carries no code", u.Name)
		return fail()
	}

	layout := regions.NewLayout()
	gen := codegen.New(table, u.Context, layout, sink)
	mod, ok := gen.Generate(f)
	if !ok {
		return fail()
	}

	// Deploy code must assign every immutable it declares; runtime code
	// reading a slot the constructor never wrote would otherwise see
	// garbage.
	if u.Context == optable.ContextDeploy {
		if err := layout.CheckImmutables(); err != nil {
			sink.Errorf(diag.CodeRegionLayoutViolation, diag.SourceLocation{}, "%v", err)
			return fail()
		}
	}

	res.Module = mod.String()
	res.Manifest = regions.Manifest{
		TableVersion:        table.Version(),
		ImmutableCount:      layout.ImmutableCount(),
		HeapOffset:          layout.HeapOffset(),
		FactoryDependencies: gen.FactoryDependencies(),
	}
	res.Diagnostics = sink.Diagnostics()

	log.Debug("unit translated", "unit", u.Name, "context", u.Context.String(),
		"diags", sink.Len())
	return res
}
