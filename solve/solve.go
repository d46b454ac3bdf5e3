// Package solve is the numerical MILP collaborator spec.md §6
// describes as external to the core: it accepts a milp.CompiledModel
// and returns a status plus a per-variable valuation. spec.md treats
// the solver itself as a replaceable collaborator; this package ships
// one concrete implementation (branch-and-bound over an LP relaxation)
// rather than shelling out to CBC, per SPEC_FULL.md's "gonum enrichment"
// decision.
package solve

import (
	"context"

	"github.com/devskill-org/ems-core/milp"
)

// Status mirrors the solver status enumeration spec.md §4.5 names.
type Status string

const (
	StatusOptimal    Status = "optimal"
	StatusInfeasible Status = "infeasible"
	StatusUnbounded  Status = "unbounded"
	StatusUndefined  Status = "undefined"
	StatusNotSolved  Status = "not_solved"
	StatusUnknown    Status = "unknown"
)

// Result is a Solver's response. Values is indexed the same way as
// milp.CompiledModel.VarNames; a nil or short Values slice is
// tolerated by milp.CompiledModel.ValueOf, which resolves missing
// entries to 0 (spec.md §4.5: "empty valuations resolve to 0.0").
type Result struct {
	Status    Status
	Objective float64
	Values    []float64
}

// Solver is the external collaborator spec.md §6 names: it must accept
// continuous and binary variables, linear constraints with an affine
// objective, and return the enumerated status set deterministically
// when deterministic mode is requested.
type Solver interface {
	Solve(ctx context.Context, m *milp.CompiledModel) (Result, error)
}
