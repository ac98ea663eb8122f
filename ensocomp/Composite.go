package ensocomp

import (
	"math"

	"github.com/hhkbp2/go-logging"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// 位相ごとのコンポジット構成年
type CompositeGroup struct {
	Phase   Phase
	Years   []int        //12月の年
	Members []*mat.Dense //各年の DJF 平均降水量 nlat x nlon
	nlat    int
	nlon    int
}

// (年数, nlat, nlon)
func (g *CompositeGroup) Shape() (int, int, int) {
	return len(g.Members), g.nlat, g.nlon
}

// 構成年の平均。構成年がない場合はすべて NaN
func (g *CompositeGroup) Mean() *mat.Dense {
	mean := mat.NewDense(g.nlat, g.nlon, nil)
	if len(g.Members) == 0 {
		fillNaN(mean)
		return mean
	}
	for _, m := range g.Members {
		mean.Add(mean, m)
	}
	mean.Scale(1/float64(len(g.Members)), mean)
	return mean
}

// 格子点 (i, j) の各年の値
func (g *CompositeGroup) sample(i int, j int, buf []float64) []float64 {
	buf = buf[:0]
	for _, m := range g.Members {
		buf = append(buf, m.At(i, j))
	}
	return buf
}

// """位相 phase に分類された各年の DJF 平均降水量を集めます。
// Args:
//
//	field(*PrecipField): 月別の格子点降水量
//	phase(Phase): 位相
//	years([]int): 12月の年
//	progress(func()): 1年処理するごとに呼ばれる。nil可
//
// Returns:
//
//	*CompositeGroup: 構成年の DJF 平均降水量
//
// Notes:
//
//	各月は field の時刻軸から年月で検索します。
//	指数と降水量の時刻軸がずれている場合はエラーになります。
//
// """
func BuildComposite(field *PrecipField, phase Phase, years []int, progress func()) (*CompositeGroup, error) {
	logger := logging.GetLogger(loggerName)

	nlat, nlon := field.Dims()
	g := &CompositeGroup{
		Phase:   phase,
		Years:   append([]int{}, years...),
		Members: make([]*mat.Dense, 0, len(years)),
		nlat:    nlat,
		nlon:    nlon,
	}

	for _, year := range years {
		djf := mat.NewDense(nlat, nlon, nil)
		for _, ym := range DJFMonths(year) {
			step, ok := field.StepOf(ym)
			if !ok {
				return nil, errors.Errorf("%s year %d: precipitation field has no data for %s", phase, year, ym)
			}
			djf.Add(djf, field.Steps[step])
		}
		djf.Scale(1.0/3.0, djf)
		g.Members = append(g.Members, djf)
		logger.Debugf("コンポジット %s: %d年12月-%d年2月", phase, year, year+1)
		if progress != nil {
			progress()
		}
	}
	return g, nil
}

// コンポジット解析の結果
type CompositeResult struct {
	Lat      []float64
	Lon      []float64
	Positive *CompositeGroup
	Negative *CompositeGroup

	PosMean *mat.Dense //正位相の平均
	NegMean *mat.Dense //負位相の平均
	Diff    *mat.Dense //PosMean - NegMean
	T       *mat.Dense //Welch の t 値
	P       *mat.Dense //Welch の t 検定の p 値 (両側)
}

// """正位相と負位相のコンポジットの差と有意確率を計算します。
// Args:
//
//	lat([]float64): 緯度
//	lon([]float64): 経度
//	pos(*CompositeGroup): 正位相
//	neg(*CompositeGroup): 負位相
//
// Returns:
//
//	*CompositeResult: 平均・差・t値・p値
//
// """
func CompareGroups(lat []float64, lon []float64, pos *CompositeGroup, neg *CompositeGroup) (*CompositeResult, error) {
	_, plat, plon := pos.Shape()
	_, nlat, nlon := neg.Shape()
	if plat != nlat || plon != nlon {
		return nil, errors.Errorf("grid shape mismatch: positive %dx%d, negative %dx%d", plat, plon, nlat, nlon)
	}
	if len(lat) != nlat || len(lon) != nlon {
		return nil, errors.Errorf("grid shape mismatch: field %dx%d, coordinates %dx%d", nlat, nlon, len(lat), len(lon))
	}

	res := &CompositeResult{
		Lat:      lat,
		Lon:      lon,
		Positive: pos,
		Negative: neg,
		PosMean:  pos.Mean(),
		NegMean:  neg.Mean(),
		Diff:     mat.NewDense(nlat, nlon, nil),
		T:        mat.NewDense(nlat, nlon, nil),
		P:        mat.NewDense(nlat, nlon, nil),
	}
	res.Diff.Sub(res.PosMean, res.NegMean)

	a := make([]float64, 0, len(pos.Members))
	b := make([]float64, 0, len(neg.Members))
	for i := 0; i < nlat; i++ {
		for j := 0; j < nlon; j++ {
			a = pos.sample(i, j, a)
			b = neg.sample(i, j, b)
			t, p := WelchTTest(a, b)
			res.T.Set(i, j, t)
			res.P.Set(i, j, p)
		}
	}
	return res, nil
}

func fillNaN(m *mat.Dense) {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			m.Set(i, j, math.NaN())
		}
	}
}
