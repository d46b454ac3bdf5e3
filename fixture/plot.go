package fixture

import (
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/devskill-org/ems-core/plan"
)

// Plot renders out's grid import/export series to a deterministic
// image at path (spec.md §4.9 "deterministic plot image for
// pixel-level drift detection"). The plot carries no timestamps or
// other wall-clock-derived text, so two runs over identical inputs
// produce byte-identical files.
func Plot(out plan.Output, path string) error {
	p := plot.New()
	p.Title.Text = "ems plan"
	p.X.Label.Text = "slot"
	p.Y.Label.Text = "kW"

	importPts := make(plotter.XYs, len(out.Slots))
	exportPts := make(plotter.XYs, len(out.Slots))
	for i, s := range out.Slots {
		importPts[i] = plotter.XY{X: float64(i), Y: s.ImportKw}
		exportPts[i] = plotter.XY{X: float64(i), Y: s.ExportKw}
	}

	if err := plotutil.AddLines(p,
		"import", importPts,
		"export", exportPts,
	); err != nil {
		return err
	}

	return p.Save(8*vg.Inch, 4*vg.Inch, path)
}
