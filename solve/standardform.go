package solve

import (
	"fmt"

	"github.com/devskill-org/ems-core/milp"
	"gonum.org/v1/gonum/mat"
)

// relaxation is one LP relaxation in standard form (min c'x s.t. Ax=b,
// x>=0), built by shifting every original variable x_j by its current
// lower bound (y_j = x_j - lower_j) and turning every inequality and
// box-upper-bound into an equality with a slack/surplus column. Only
// the first nReal columns of the solution correspond to the model's
// variables; the rest are slacks discarded after solving.
type relaxation struct {
	c     []float64
	a     *mat.Dense
	b     []float64
	nReal int
	lower []float64
}

// buildRelaxation materializes the standard-form LP for m under the
// given (possibly branch-tightened) bounds.
func buildRelaxation(m *milp.CompiledModel, lower, upper []float64) (*relaxation, error) {
	nReal := len(m.VarNames)
	for j := 0; j < nReal; j++ {
		if lower[j] > upper[j]+1e-9 {
			return nil, fmt.Errorf("solve: empty bound range for %s", m.VarNames[j])
		}
	}

	numIneq := 0
	for _, s := range m.Sense {
		if s != milp.EQ {
			numIneq++
		}
	}
	// One upper-bound row + slack per variable, plus one slack per
	// inequality constraint.
	totalCols := nReal*2 + numIneq
	totalRows := len(m.Coeffs) + nReal

	a := mat.NewDense(totalRows, totalCols, nil)
	bvec := make([]float64, totalRows)
	row := 0
	ineqSlack := 0

	for i, coeffs := range m.Coeffs {
		rhs := m.RHS[i]
		for j, coeff := range coeffs {
			rhs -= coeff * lower[j]
			a.Set(row, j, coeff)
		}
		switch m.Sense[i] {
		case milp.LE:
			a.Set(row, nReal+ineqSlack, 1)
			ineqSlack++
		case milp.GE:
			a.Set(row, nReal+ineqSlack, -1)
			ineqSlack++
		case milp.EQ:
			// No slack column.
		}
		bvec[row] = rhs
		row++
	}

	// Box upper-bound rows, one per variable, always present (every
	// milp-declared variable carries a finite upper bound).
	upperSlackBase := nReal + numIneq
	for j := 0; j < nReal; j++ {
		a.Set(row, j, 1)
		a.Set(row, upperSlackBase+j, 1)
		bvec[row] = upper[j] - lower[j]
		row++
	}

	c := make([]float64, totalCols)
	for j, coeff := range m.Objective {
		c[j] = coeff
	}

	return &relaxation{c: c, a: a, b: bvec, nReal: nReal, lower: lower}, nil
}
