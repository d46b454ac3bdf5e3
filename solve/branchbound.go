package solve

import (
	"context"
	"math"

	"github.com/devskill-org/ems-core/milp"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// defaultNodeLimit bounds the branch-and-bound search so a
// pathological horizon (many binaries) terminates deterministically
// with the best integer-feasible solution found rather than hanging.
const defaultNodeLimit = 20000

const integralityTolerance = 1e-6

// BranchAndBound is a Solver that relaxes binary variables to
// continuous [0,1] bounds, solves the LP relaxation with gonum's
// primal simplex, and branches on the most-fractional binary variable
// until every binary is integral (or the node budget is exhausted).
// It runs single-threaded and is deterministic for a given model, per
// spec.md §6.
type BranchAndBound struct {
	// NodeLimit caps the number of relaxations explored; zero uses
	// defaultNodeLimit.
	NodeLimit int
	// Tol is the simplex feasibility tolerance; zero or negative uses
	// 1e-9.
	Tol float64
}

type bbNode struct {
	lower, upper []float64
}

func (s BranchAndBound) Solve(ctx context.Context, m *milp.CompiledModel) (Result, error) {
	n := len(m.VarNames)
	if n == 0 {
		return Result{Status: StatusUndefined}, nil
	}

	nodeLimit := s.NodeLimit
	if nodeLimit <= 0 {
		nodeLimit = defaultNodeLimit
	}
	tol := s.Tol
	if tol <= 0 {
		tol = 1e-9
	}

	rootLower := append([]float64(nil), m.LowerBound...)
	rootUpper := append([]float64(nil), m.UpperBound...)

	stack := []bbNode{{lower: rootLower, upper: rootUpper}}

	bestObj := math.Inf(1)
	var bestX []float64
	sawFeasible := false
	sawAnyRelaxation := false
	explored := 0

	for len(stack) > 0 {
		if explored >= nodeLimit {
			break
		}
		if err := ctx.Err(); err != nil {
			return Result{Status: StatusUnknown}, err
		}

		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		explored++

		rel, err := buildRelaxation(m, node.lower, node.upper)
		if err != nil {
			continue // infeasible bounds for this node, prune
		}

		obj, x, err := lp.Simplex(rel.c, rel.a, rel.b, tol, nil)
		if err != nil {
			continue // infeasible or unbounded sub-relaxation, prune
		}
		sawAnyRelaxation = true
		// The relaxation solves for x - lower; add back c'lower so obj
		// is the model objective and comparable across nodes.
		for j := 0; j < n; j++ {
			obj += m.Objective[j] * node.lower[j]
		}

		if obj >= bestObj {
			continue // bound: relaxation can't beat the incumbent
		}

		xReal := make([]float64, n)
		for j := 0; j < n; j++ {
			xReal[j] = x[j] + node.lower[j]
		}

		branchVar, fracValue := mostFractionalBinary(m, xReal, node.lower, node.upper)
		if branchVar < 0 {
			// Every binary is integral: this relaxation is a feasible
			// MILP solution.
			bestObj = obj
			bestX = xReal
			sawFeasible = true
			continue
		}

		floorLower := append([]float64(nil), node.lower...)
		floorUpper := append([]float64(nil), node.upper...)
		floorUpper[branchVar] = 0
		floorLower[branchVar] = 0

		ceilLower := append([]float64(nil), node.lower...)
		ceilUpper := append([]float64(nil), node.upper...)
		ceilLower[branchVar] = 1
		ceilUpper[branchVar] = 1

		// Push the branch closer to the relaxed value first so a
		// depth-first search finds a good incumbent early.
		if fracValue >= 0.5 {
			stack = append(stack, bbNode{lower: floorLower, upper: floorUpper}, bbNode{lower: ceilLower, upper: ceilUpper})
		} else {
			stack = append(stack, bbNode{lower: ceilLower, upper: ceilUpper}, bbNode{lower: floorLower, upper: floorUpper})
		}
	}

	if !sawAnyRelaxation {
		return Result{Status: StatusInfeasible}, nil
	}
	if !sawFeasible {
		return Result{Status: StatusNotSolved, Objective: 0}, nil
	}
	return Result{Status: StatusOptimal, Objective: bestObj, Values: bestX}, nil
}

// mostFractionalBinary returns the index of the binary variable whose
// relaxed value is furthest from 0 or 1 (and not yet fixed by the
// node's bounds), or -1 if every binary is already integral.
func mostFractionalBinary(m *milp.CompiledModel, x, lower, upper []float64) (int, float64) {
	best := -1
	bestDist := integralityTolerance
	for j, isBinary := range m.IsBinary {
		if !isBinary || lower[j] == upper[j] {
			continue
		}
		frac := x[j] - math.Floor(x[j])
		dist := math.Min(frac, 1-frac)
		if dist > bestDist {
			bestDist = dist
			best = j
		}
	}
	if best < 0 {
		return -1, 0
	}
	return best, x[best] - math.Floor(x[best])
}
