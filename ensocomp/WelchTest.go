package ensocomp

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Welch の t 検定 (等分散を仮定しない2標本 t 検定, 両側)
//
// a, b のいずれかが2標本未満の場合は t, p ともに NaN を返します。
// NaN を含む標本の結果は NaN になります。
func WelchTTest(a []float64, b []float64) (t float64, p float64) {
	na, nb := float64(len(a)), float64(len(b))
	if len(a) < 2 || len(b) < 2 {
		return math.NaN(), math.NaN()
	}

	// 不偏分散 (N-1)
	ma, va := stat.MeanVariance(a, nil)
	mb, vb := stat.MeanVariance(b, nil)

	sa := va / na
	sb := vb / nb
	se2 := sa + sb
	diff := ma - mb
	if math.IsNaN(se2) || math.IsNaN(diff) {
		return math.NaN(), math.NaN()
	}

	if se2 == 0 {
		// 両群とも定数
		if diff == 0 {
			return math.NaN(), math.NaN()
		}
		return math.Copysign(math.Inf(1), diff), 0
	}

	t = diff / math.Sqrt(se2)

	// Welch-Satterthwaite の自由度
	df := se2 * se2 / (sa*sa/(na-1) + sb*sb/(nb-1))

	tDist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	p = 2 * tDist.CDF(-math.Abs(t))
	if p > 1 {
		p = 1
	}
	return t, p
}
