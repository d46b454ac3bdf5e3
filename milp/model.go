// Package milp builds a mixed-integer linear program from plant
// configuration, a horizon, and resolved forecast series (spec.md
// §4.5). It owns variable/constraint/objective bookkeeping; the actual
// numerical solve is delegated to the solve package's Solver
// collaborator (spec.md §1, §9: "the numerical solver itself is an
// external collaborator").
package milp

import "fmt"

// Sense is a constraint's comparison operator.
type Sense int

const (
	LE Sense = iota
	GE
	EQ
)

// Var is an opaque handle to a decision variable. The zero value
// refers to the first declared variable; handles are only meaningful
// against the ModelBuilder that issued them.
type Var struct {
	index int
}

func (v Var) Index() int { return v.index }

type variable struct {
	name       string
	lower      float64
	upper      float64
	isBinary   bool
}

type constraint struct {
	name   string
	coeffs map[int]float64
	sense  Sense
	rhs    float64
}

// ModelBuilder accumulates variables, constraints, and an objective.
// A fresh builder is created per compile and discarded after
// extraction (spec.md §3 Ownership).
type ModelBuilder struct {
	vars        []variable
	constraints []constraint
	objective   map[int]float64
}

// NewModelBuilder returns an empty builder.
func NewModelBuilder() *ModelBuilder {
	return &ModelBuilder{objective: make(map[int]float64)}
}

// AddContinuous declares a continuous variable bounded [lower, upper].
func (b *ModelBuilder) AddContinuous(name string, lower, upper float64) Var {
	idx := len(b.vars)
	b.vars = append(b.vars, variable{name: name, lower: lower, upper: upper})
	return Var{index: idx}
}

// AddBinary declares a {0,1} variable.
func (b *ModelBuilder) AddBinary(name string) Var {
	idx := len(b.vars)
	b.vars = append(b.vars, variable{name: name, lower: 0, upper: 1, isBinary: true})
	return Var{index: idx}
}

// AddConstraint adds Σ coeffs[v]·v {sense} rhs.
func (b *ModelBuilder) AddConstraint(name string, terms map[Var]float64, sense Sense, rhs float64) {
	coeffs := make(map[int]float64, len(terms))
	for v, c := range terms {
		coeffs[v.index] = coeffs[v.index] + c
	}
	b.constraints = append(b.constraints, constraint{name: name, coeffs: coeffs, sense: sense, rhs: rhs})
}

// AddObjectiveTerm accumulates a coefficient into the minimization
// objective for v (repeated calls for the same v sum their
// contributions, matching how the compiler layers cost + tie-break
// terms onto the same variable).
func (b *ModelBuilder) AddObjectiveTerm(v Var, coeff float64) {
	b.objective[v.index] += coeff
}

// NumVars returns the number of declared variables.
func (b *ModelBuilder) NumVars() int { return len(b.vars) }

// CompiledModel is the immutable, solver-facing view of a built model.
type CompiledModel struct {
	VarNames   []string
	LowerBound []float64
	UpperBound []float64
	IsBinary   []bool
	Objective  []float64 // dense, length NumVars

	// Constraints in sparse row form: Coeffs[i] maps a variable index
	// to its coefficient in row i.
	Coeffs []map[int]float64
	Sense  []Sense
	RHS    []float64

	// names maps a variable's declared name back to its Var for
	// extraction after solving.
	names map[string]int
}

// Compile freezes the builder into a CompiledModel for handoff to a
// Solver. The builder must not be reused afterward.
func (b *ModelBuilder) Compile() *CompiledModel {
	n := len(b.vars)
	m := &CompiledModel{
		VarNames:   make([]string, n),
		LowerBound: make([]float64, n),
		UpperBound: make([]float64, n),
		IsBinary:   make([]bool, n),
		Objective:  make([]float64, n),
		names:      make(map[string]int, n),
	}
	for i, v := range b.vars {
		m.VarNames[i] = v.name
		m.LowerBound[i] = v.lower
		m.UpperBound[i] = v.upper
		m.IsBinary[i] = v.isBinary
		m.names[v.name] = i
	}
	for idx, coeff := range b.objective {
		m.Objective[idx] = coeff
	}
	for _, c := range b.constraints {
		m.Coeffs = append(m.Coeffs, c.coeffs)
		m.Sense = append(m.Sense, c.sense)
		m.RHS = append(m.RHS, c.rhs)
	}
	return m
}

// ValueOf extracts varName's value from a solved valuation vector,
// returning 0 if the variable is unknown (spec.md §4.5: "empty
// valuations resolve to 0.0 for continuous variables").
func (m *CompiledModel) ValueOf(values []float64, varName string) float64 {
	idx, ok := m.names[varName]
	if !ok || idx >= len(values) {
		return 0
	}
	return values[idx]
}

func (m *CompiledModel) String() string {
	return fmt.Sprintf("milp.CompiledModel{vars=%d constraints=%d}", len(m.VarNames), len(m.Coeffs))
}
