package solve

import (
	"context"
	"testing"

	"github.com/devskill-org/ems-core/milp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBranchAndBound_PureContinuous exercises a trivial LP with no
// binaries: minimize x s.t. x >= 3, x <= 10.
func TestBranchAndBound_PureContinuous(t *testing.T) {
	b := milp.NewModelBuilder()
	x := b.AddContinuous("x", 0, 10)
	b.AddConstraint("lower", map[milp.Var]float64{x: 1}, milp.GE, 3)
	b.AddObjectiveTerm(x, 1)
	m := b.Compile()

	s := BranchAndBound{}
	res, err := s.Solve(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, StatusOptimal, res.Status)
	assert.InDelta(t, 3.0, m.ValueOf(res.Values, "x"), 1e-6)
	assert.InDelta(t, 3.0, res.Objective, 1e-6)
}

// TestBranchAndBound_Binary forces a binary decision: minimize cost
// where a binary "on" variable unlocks a cheaper continuous variable.
func TestBranchAndBound_Binary(t *testing.T) {
	b := milp.NewModelBuilder()
	on := b.AddBinary("on")
	p := b.AddContinuous("p", 0, 5)
	b.AddConstraint("cap", map[milp.Var]float64{p: 1, on: -5}, milp.LE, 0)
	b.AddConstraint("need", map[milp.Var]float64{p: 1}, milp.GE, 2)
	b.AddObjectiveTerm(p, 1)
	b.AddObjectiveTerm(on, 10)
	m := b.Compile()

	s := BranchAndBound{}
	res, err := s.Solve(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, StatusOptimal, res.Status)
	assert.InDelta(t, 1.0, m.ValueOf(res.Values, "on"), 1e-6)
	assert.InDelta(t, 2.0, m.ValueOf(res.Values, "p"), 1e-6)
}

func TestBranchAndBound_Infeasible(t *testing.T) {
	b := milp.NewModelBuilder()
	x := b.AddContinuous("x", 0, 1)
	b.AddConstraint("impossible", map[milp.Var]float64{x: 1}, milp.GE, 5)
	b.AddObjectiveTerm(x, 1)
	m := b.Compile()

	s := BranchAndBound{}
	res, err := s.Solve(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, StatusInfeasible, res.Status)
}
